// Distributed trace viewer
// Browses spans from a trace query API or an export file as call trees and timelines
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := newApp()

	root := &cobra.Command{
		Use:   "clicktrace",
		Short: "Browse distributed traces as call trees and timelines",
		Long: "Browse distributed traces as call trees and timelines.\n\n" +
			"Traces come from a query API (--endpoint) or an export file (--file).\n" +
			"Export files may be backend JSON, stdouttrace JSON lines or OTLP JSON.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	a.bindFlags(root)

	root.AddCommand(servicesCmd(a))
	root.AddCommand(operationsCmd(a))
	root.AddCommand(tracesCmd(a))
	root.AddCommand(showCmd(a))
	root.AddCommand(filtersCmd(a))
	root.AddCommand(serveCmd(a))
	root.AddCommand(versionCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "clicktrace %s (commit: %s, built: %s)\n", version, commit, buildTime)
		},
	}
}
