// Command meshmgr runs task handlers against a mesh dispatch server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "meshmgr",
		Short: "Mesh agent manager",
		Long: `meshmgr polls a mesh dispatch server on behalf of every registered agent,
runs each task through the matching handler and submits the result.

Configuration comes from built-in defaults, an optional YAML file and
environment variables such as PROTOCOL_V2_SERVER_URL and
PROTOCOL_V2_AUTH_TOKEN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file or directory")

	root.AddCommand(
		newStartCmd(opts),
		newAgentsCmd(opts),
		newMetadataCmd(opts),
		newConfigCmd(opts),
		newTasksCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return root
}
