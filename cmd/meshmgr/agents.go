package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/metadata"
	"github.com/mattjoyce/meshmgr/internal/registry"
)

type agentRow struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Module      string   `json:"module"`
	Description string   `json:"description"`
	Tools       []string `json:"tools,omitempty"`
	Disabled    bool     `json:"disabled"`
	Published   bool     `json:"published"`
}

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect registered agents",
	}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in and exec agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := log.New(cmd.ErrOrStderr(), cfg.Service.LogLevel, cfg.Service.LogFormat)
			tbl, err := registry.New(cfg, logger).Table()
			if err != nil {
				return err
			}

			rows := make([]agentRow, 0, tbl.Len())
			for _, id := range tbl.IDs() {
				d, _ := tbl.Get(id)
				rows = append(rows, describe(cmd.Context(), d, cfg.Agents))
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			printAgents(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.AddCommand(list)
	return cmd
}

func describe(ctx context.Context, d agent.Descriptor, cfg config.AgentsConfig) agentRow {
	h := d.New()
	defer func() { _ = h.Cleanup(ctx) }()

	row := agentRow{
		ID:          d.ID,
		Source:      string(d.Source),
		Module:      d.Module,
		Description: h.Metadata().Description,
		Disabled:    slices.Contains(cfg.Disabled, d.ID),
		Published:   metadata.Publishable(d.ID, cfg.MetadataDenylist),
	}
	for _, t := range agent.ToolsOf(h) {
		row.Tools = append(row.Tools, t.Function.Name)
	}
	return row
}

func printAgents(w io.Writer, rows []agentRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No agents registered.")
		return
	}
	bold := color.New(color.Bold)
	for _, r := range rows {
		status := color.GreenString("enabled")
		if r.Disabled {
			status = color.YellowString("disabled")
		}
		bold.Fprintf(w, "%s", r.ID)
		fmt.Fprintf(w, "  [%s, %s]", r.Source, status)
		if !r.Published {
			fmt.Fprintf(w, " %s", color.HiBlackString("(not published)"))
		}
		fmt.Fprintln(w)
		if r.Description != "" {
			fmt.Fprintf(w, "    %s\n", r.Description)
		}
		if len(r.Tools) > 0 {
			fmt.Fprintf(w, "    tools: %v\n", r.Tools)
		}
	}
}
