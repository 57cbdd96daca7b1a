package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/doctor"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/registry"
)

var errConfigInvalid = errors.New("configuration has errors")

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var jsonOut bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Load the configuration and check it against the registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", color.RedString("✗"), err)
				return err
			}

			res := doctor.New(cfg, registry.New(cfg, log.Discard())).Validate()
			if jsonOut {
				report, err := doctor.FormatJSON(res)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, report)
			} else {
				fmt.Fprintf(out, "%s configuration loaded\n", color.GreenString("✓"))
				fmt.Fprintf(out, "  server:   %s\n", cfg.Mesh.ServerURL)
				fmt.Fprintf(out, "  poll:     %s\n", cfg.Mesh.PollInterval)
				fmt.Fprintf(out, "  metadata: %s\n", cfg.Metadata.Store)
				if cfg.Journal.Path != "" {
					fmt.Fprintf(out, "  journal:  %s\n", cfg.Journal.Path)
				}
				if cfg.API.Enabled {
					fmt.Fprintf(out, "  api:      %s\n", cfg.API.Listen)
				}
				fmt.Fprint(out, doctor.FormatHuman(res))
			}
			if !res.Valid {
				return errConfigInvalid
			}
			return nil
		},
	}
	check.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	cmd.AddCommand(check)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			redacted := *cfg
			redacted.Mesh.AuthToken = redact(cfg.Mesh.AuthToken)
			redacted.Metadata.S3.AccessKey = redact(cfg.Metadata.S3.AccessKey)
			redacted.Metadata.S3.SecretKey = redact(cfg.Metadata.S3.SecretKey)
			redacted.API.Token = redact(cfg.API.Token)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&redacted); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
