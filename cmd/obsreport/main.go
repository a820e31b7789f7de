// Package main provides the obsreport CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joss/obsreport/internal/logging"
)

var (
	version   = "0.1.0"
	storeKind string
	jsonOut   bool
	noColor   bool
	logLevel  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "obsreport",
		Short: "Turn observation photos and notes into a numbered report",
		Long: `obsreport analyzes observation items (text, optionally with a photo) with a
generative provider, merges the answers into an ordered, grouped, numbered
outline, and stores progress and the final report.

  obsreport run job.yaml          analyze a manifest
  obsreport run ./photos          analyze a directory of images
  obsreport watch <run-id>        follow a run live
  obsreport show <run-id>         print the final report`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if logLevel != "" {
				logging.SetLevel(logging.Level(logLevel))
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Snapshot store: sqlite, graph, memory (default $OBSREPORT_STORE or sqlite)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddGroup(
		&cobra.Group{ID: "runs", Title: "Runs:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
	)

	for _, c := range []*cobra.Command{runCmd()} {
		c.GroupID = "runs"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{statusCmd(), showCmd(), watchCmd(), metricsCmd(), doctorCmd()} {
		c.GroupID = "inspect"
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "obsreport %s\n", version)
		},
	}
}
