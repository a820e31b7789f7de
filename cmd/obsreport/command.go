package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/obsreport/internal/logging"
	"github.com/joss/obsreport/internal/store"
)

var cliLog = logging.New("cli")

// CommandFunc defines the function signature for command execution.
type CommandFunc func(cmd *cobra.Command, args []string) error

// CommandConfig holds configuration for creating standardized commands.
type CommandConfig struct {
	Use     string
	Short   string
	Long    string
	Args    cobra.PositionalArgs
	Example string
	Aliases []string
	RunFunc CommandFunc
}

// newCommand creates a command that logs its outcome and prints errors to
// stderr. A panic is logged with its stack and reported as an error.
func newCommand(cfg CommandConfig) *cobra.Command {
	return &cobra.Command{
		Use:     cfg.Use,
		Short:   cfg.Short,
		Long:    cfg.Long,
		Args:    cfg.Args,
		Example: cfg.Example,
		Aliases: cfg.Aliases,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			rh := logging.NewRecoveryHandler("cli")
			err := rh.WrapError(func() error { return cfg.RunFunc(cmd, args) })
			if err != nil {
				cliLog.Error("command_failed", map[string]interface{}{"command": cmd.Name()}, err)
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}
			cliLog.Debug("command_done", map[string]interface{}{
				"command":     cmd.Name(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			return nil
		},
	}
}

// openStore opens the backend chosen by --store.
func openStore(ctx context.Context) (store.RunStore, error) {
	s, err := store.Open(ctx, storeKind)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printText(w io.Writer, s string) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	fmt.Fprint(w, s)
}
