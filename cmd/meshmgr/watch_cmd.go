package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/tui/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var apiURL, token string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open a live dashboard of a running manager",
		Long: `watch follows a running meshmgr through its admin API. The address and
token default to api.listen and api.token from the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if apiURL == "" {
				apiURL = adminURL(cfg.API.Listen)
			}
			if token == "" {
				token = cfg.API.Token
			}
			return watch.Run(apiURL, token)
		},
	}
	cmd.Flags().StringVar(&apiURL, "url", "", "Admin API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Admin API bearer token")
	return cmd
}

// adminURL turns a listen address into a URL a client can dial.
func adminURL(listen string) string {
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		return listen
	}
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen
}
