package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/internal/health"
	"github.com/joss/obsreport/internal/render"
)

// readinessChecks builds the checks shared by doctor and the metrics /ready route.
func readinessChecks(st health.Pinger, providerID string) *health.Checker {
	env := config.Env()
	if providerID == "" {
		providerID = env.Provider
	}
	c := health.NewChecker(5 * time.Second)
	c.Add("data_dir", health.DirCheck(config.HomeDir()))
	c.Add("provider", health.CredentialCheck(providerID, providerKey(providerID)))
	if st != nil {
		c.Add("store", health.PingCheck(st, 250*time.Millisecond))
	}
	if env.ConfigFile != "" {
		c.Add("config_file", health.FileCheck(env.ConfigFile))
	}
	return c
}

func providerKey(id string) string {
	env := config.Env()
	switch id {
	case "openai", "gpt":
		return env.OpenAIKey
	case "google", "gemini":
		return env.GoogleKey
	case "anthropic", "claude":
		return env.AnthropicKey
	}
	return ""
}

func doctorCmd() *cobra.Command {
	var providerID string

	cmd := newCommand(CommandConfig{
		Use:   "doctor",
		Short: "Check that the store, data directory and provider credentials are usable",
		Args:  cobra.NoArgs,
		RunFunc: func(cmd *cobra.Command, args []string) error {
			var pinger health.Pinger
			st, err := openStore(cmd.Context())
			if err != nil {
				cliLog.Warn("doctor_store_unavailable", nil, err)
			} else {
				defer st.Close()
				pinger = st
			}

			c := readinessChecks(pinger, providerID)
			if pinger == nil {
				c.Add("store", func(context.Context) health.ComponentStatus {
					return health.ComponentStatus{Status: health.StatusError, Error: err.Error()}
				})
			}
			report := c.Run(cmd.Context())

			if jsonOut {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				w := render.NewWriter(cmd.OutOrStdout())
				w.Header("readiness (%s)", report.Status)
				for _, name := range report.Names() {
					comp := report.Components[name]
					mark := color.GreenString("✓")
					switch comp.Status {
					case health.StatusDegraded:
						mark = color.YellowString("!")
					case health.StatusError:
						mark = color.RedString("✗")
					}
					if comp.Error != "" {
						w.Item("%s %-12s %s  %s", mark, name, comp.Status, render.Truncate(comp.Error, 80))
					} else {
						w.Item("%s %-12s %s", mark, name, comp.Status)
					}
				}
			}
			if report.Status == health.Unhealthy {
				return fmt.Errorf("environment is %s", report.Status)
			}
			return nil
		},
	})
	cmd.Flags().StringVarP(&providerID, "provider", "p", "", "Provider to check (default $OBSREPORT_PROVIDER)")
	return cmd
}
