package store

import (
	"context"
	"fmt"

	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/internal/graph"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendGraph  = "graph"
	BackendMemory = "memory"
)

// Open returns the backend named kind. An empty kind uses OBSREPORT_STORE.
func Open(ctx context.Context, kind string) (RunStore, error) {
	if kind == "" {
		kind = config.Env().Store
	}
	switch kind {
	case BackendSQLite:
		return NewSQLite(config.HomeDir())
	case BackendGraph:
		db, err := graph.Dial(ctx, graph.ConfigFromEnv())
		if err != nil {
			return nil, fmt.Errorf("graph store: %w", err)
		}
		return NewGraph(db), nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}
