package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/obsreport/internal/metrics"
	"github.com/joss/obsreport/internal/runtime"
	"github.com/joss/obsreport/internal/store"
)

func metricsCmd() *cobra.Command {
	var addr string

	cmd := newCommand(CommandConfig{
		Use:   "metrics",
		Short: "Serve Prometheus metrics for stored runs",
		Long: `Serve /metrics, /health and /ready until interrupted. Besides the process
counters, obsreport_runs reports the number of stored runs per status.`,
		Args: cobra.NoArgs,
		RunFunc: func(cmd *cobra.Command, args []string) error {
			sm := runtime.NewShutdownManager(cmd.Context(), runtime.DefaultShutdownTimeout)
			stop := sm.ListenForSignals()
			defer stop()

			st, err := openStore(sm.Context())
			if err != nil {
				return err
			}
			sm.Register("store", func(context.Context) error { return st.Close() })

			m := metrics.Global()
			m.RegisterGaugeVec("obsreport_runs", "Stored runs by status", "status", func() map[string]float64 {
				counts, err := store.CountByStatus(context.Background(), st)
				if err != nil {
					cliLog.Warn("count_runs_failed", nil, err)
					return nil
				}
				return counts
			})

			srv := metrics.NewServer(addr, m)
			srv.Handle("/ready", readinessChecks(st, "").Handler())
			if err := srv.Start(); err != nil {
				return err
			}
			sm.Register("metrics", srv.Stop)
			fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on http://%s/metrics\n", srv.Addr())

			<-sm.Context().Done()
			return sm.Shutdown()
		},
	})
	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address")
	return cmd
}
