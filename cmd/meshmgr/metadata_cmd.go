package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/registry"
)

var errNoMetadataStore = errors.New("no metadata store configured (set metadata.store to file or s3)")

func newMetadataCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage the shared agent metadata document",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Publish agent metadata without starting any poll loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := log.New(cmd.ErrOrStderr(), cfg.Service.LogLevel, cfg.Service.LogFormat)

			store, err := registry.OpenStore(cmd.Context(), cfg.Metadata)
			if err != nil {
				return err
			}
			if store == nil {
				return errNoMetadataStore
			}

			reg := registry.New(cfg, logger, registry.WithStore(store))
			handlers, err := reg.Handlers()
			if err != nil {
				return err
			}
			res, err := reg.SyncMetadata(cmd.Context(), handlers)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Uploaded {
				fmt.Fprintf(out, "%s %s is up to date (%d agents)\n", color.GreenString("✓"), store, res.Agents)
				return nil
			}
			fmt.Fprintf(out, "%s uploaded %s (%d agents)\n", color.GreenString("✓"), store, res.Agents)
			printChange(out, "added", res.Added)
			printChange(out, "updated", res.Updated)
			printChange(out, "removed", res.Removed)
			return nil
		},
	})
	return cmd
}

func printChange(w io.Writer, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(w, "  %-8s %s\n", label+":", strings.Join(ids, ", "))
}
