// Package graph talks to a Bolt-speaking graph database (Memgraph or Neo4j).
// The run store and the knowledge index depend on Driver only.
package graph

import (
	"context"
	"time"

	"github.com/joss/obsreport/internal/config"
)

// Driver is the query surface used by graph-backed components.
type Driver interface {
	// Execute runs a read query and collects every row.
	Execute(ctx context.Context, query string, params map[string]any) ([]Record, error)
	// ExecuteWrite runs MERGE/SET/DELETE and waits for the summary.
	ExecuteWrite(ctx context.Context, query string, params map[string]any) error
	Ping(ctx context.Context) error
	Close() error
}

// Config locates the database.
type Config struct {
	URI      string
	Username string
	Password string

	// Attempts bounds Dial; each failed attempt doubles the pause (100ms, 200ms, ...).
	Attempts    int
	DialTimeout time.Duration
}

// ConfigFromEnv reads NEO4J_URI, NEO4J_USER and NEO4J_PASSWORD.
func ConfigFromEnv() Config {
	env := config.Env()
	return Config{
		URI:         env.Neo4jURI,
		Username:    env.Neo4jUser,
		Password:    env.Neo4jPassword,
		Attempts:    3,
		DialTimeout: 2 * time.Second,
	}
}
