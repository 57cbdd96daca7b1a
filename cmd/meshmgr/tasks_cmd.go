package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/inspect"
	"github.com/mattjoyce/meshmgr/internal/journal"
)

var errNoJournal = errors.New("task journal disabled (set journal.path)")

func newTasksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Read the local task journal",
	}

	var (
		agentID string
		limit   int
		asJSON  bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "Show recently processed tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := openJournal(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), agentID, limit)
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []journal.Entry{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printTasks(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	list.Flags().StringVar(&agentID, "agent", "", "Only show tasks for this agent")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of tasks")
	list.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	var inspectJSON bool
	inspectCmd := &cobra.Command{
		Use:   "inspect <task-id>",
		Short: "Show every task that shares an origin with the given task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer j.Close()

			build := inspect.BuildReport
			if inspectJSON {
				build = inspect.BuildJSONReport
			}
			report, err := build(cmd.Context(), j, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report)
			if inspectJSON {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")

	cmd.AddCommand(list, inspectCmd)
	return cmd
}

func openJournal(ctx context.Context, configPath string) (*journal.Journal, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Journal.Path == "" {
		return nil, errNoJournal
	}
	return journal.Open(ctx, cfg.Journal.Path)
}

func printTasks(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no tasks recorded")
		return
	}
	for _, e := range entries {
		status := color.GreenString("ok")
		if !e.Success {
			status = color.RedString("failed")
		}
		submitted := ""
		if !e.Submitted {
			submitted = color.YellowString(" (not submitted)")
		}
		fmt.Fprintf(w, "%s  %-20s %-24s %s%s\n",
			e.CompletedAt.Local().Format("2006-01-02 15:04:05"), e.AgentID, e.TaskID, status, submitted)
		if e.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", e.Error)
		}
	}
}
