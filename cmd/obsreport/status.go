package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/render"
	"github.com/joss/obsreport/internal/store"
	"github.com/joss/obsreport/internal/tui"
)

func statusCmd() *cobra.Command {
	var limit int
	var status string

	cmd := newCommand(CommandConfig{
		Use:   "status [run-id]",
		Short: "Show the latest snapshot of a run, or list runs",
		Args:  cobra.MaximumNArgs(1),
		RunFunc: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			r := render.Auto(os.Stdout)
			if len(args) == 1 {
				snap, err := st.GetSnapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), snap)
				}
				printText(cmd.OutOrStdout(), r.Snapshot(snap))
				return nil
			}

			f := store.DefaultFilter().WithLimit(limit)
			if status != "" {
				f = f.WithStatus(domain.Status(status))
			}
			snaps, err := st.ListSnapshots(cmd.Context(), f)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), snaps)
			}
			printText(cmd.OutOrStdout(), r.Runs(snaps))
			return nil
		},
	})
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().StringVar(&status, "status", "", "Only list runs in this status")
	return cmd
}

func showCmd() *cobra.Command {
	var format string

	cmd := newCommand(CommandConfig{
		Use:   "show <run-id>",
		Short: "Print the final report of a completed run",
		Args:  cobra.ExactArgs(1),
		RunFunc: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			rep, err := st.GetReport(cmd.Context(), args[0])
			if err != nil {
				if store.IsNotFound(err) {
					return fmt.Errorf("run %s has no report yet; try 'obsreport status %s'", args[0], args[0])
				}
				return err
			}
			if jsonOut {
				format = "json"
			}
			opts := &runOptions{format: format}
			return writeReport(cmd, opts, rep.Sections)
		},
	})
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, markdown, json")
	return cmd
}

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := newCommand(CommandConfig{
		Use:   "watch <run-id>",
		Short: "Follow a run's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunFunc: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := tui.Watch(cmd.Context(), st, args[0], interval)
			if err != nil {
				return err
			}
			if snap != nil && snap.Status.Terminal() {
				printText(cmd.OutOrStdout(), render.Auto(os.Stdout).Snapshot(snap))
			}
			return nil
		},
	})
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Poll interval")
	return cmd
}
