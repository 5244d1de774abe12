package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tabwall",
		Short: "Side-by-side wall of chat sites with one prompt box",
		Long: `TabWall shows several chat sites as a horizontally scrolling wall of panels
in one browser and sends a single prompt (optionally with a file) to any of them.
Panels are configured in a JSON, YAML or TOML panel file; host settings come from
TABWALL_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version
	root.SetVersionTemplate(versionTemplate())

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("tabwall %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("tabwall %s\n", version)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionTemplate())
		},
	}
}
