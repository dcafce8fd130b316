package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/nodegraph/provisioner/internal/cli/ui"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

type rootOptions struct {
	configFile string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "provisioner",
		Short: "Provision the graph schema and bootstrap credential of a deployment",
		Long: `provisioner reconciles the declared node types with the schema already live
in the graph store, applies the unified schema, mirrors it into the lookup
tables and stores the bootstrap user's credential.

The deployment and bootstrap user are read from DEPLOYMENT_NAME and
BOOTSTRAP_USER_NAME, or from provisioner.yaml.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a provisioner.yaml config file")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		noColor, _ := rootCmd.PersistentFlags().GetBool("no-color")
		ui.WriteError(os.Stderr, err, noColor)
		os.Exit(1)
	}
}
