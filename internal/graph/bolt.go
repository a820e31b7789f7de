package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/joss/obsreport/internal/logging"
)

var log = logging.New("graph")

// Bolt implements Driver with the neo4j driver.
type Bolt struct {
	driver neo4j.DriverWithContext
	uri    string
}

// Open builds a driver without dialing. Unsupported URI schemes fail here.
func Open(cfg Config) (*Bolt, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	d, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("graph driver for %s: %w", cfg.URI, err)
	}
	return &Bolt{driver: d, uri: cfg.URI}, nil
}

// Dial opens and pings, retrying transient failures up to cfg.Attempts times.
func Dial(ctx context.Context, cfg Config) (*Bolt, error) {
	attempts := max(cfg.Attempts, 1)
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var lastErr error
	for i := range attempts {
		b, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err = b.Ping(pctx)
		cancel()
		if err == nil {
			return b, nil
		}
		b.Close()
		lastErr = err
		if !Transient(err) || i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(100<<i) * time.Millisecond):
		}
	}
	log.Warn("graph_unavailable", map[string]any{"uri": cfg.URI, "attempts": attempts}, lastErr)
	return nil, fmt.Errorf("graph unavailable at %s: %w", cfg.URI, lastErr)
}

func (b *Bolt) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
}

// Execute implements Driver.
func (b *Bolt) Execute(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	s := b.session(ctx, neo4j.AccessModeRead)
	defer s.Close(ctx)

	res, err := s.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("graph read: %w", err)
	}
	var rows []Record
	for res.Next(ctx) {
		rows = append(rows, Record(res.Record().AsMap()))
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("graph read: %w", err)
	}
	return rows, nil
}

// ExecuteWrite implements Driver.
func (b *Bolt) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	s := b.session(ctx, neo4j.AccessModeWrite)
	defer s.Close(ctx)

	res, err := s.Run(ctx, query, params)
	if err == nil {
		_, err = res.Consume(ctx)
	}
	if err != nil {
		return fmt.Errorf("graph write: %w", err)
	}
	return nil
}

// Ping verifies the server answers.
func (b *Bolt) Ping(ctx context.Context) error {
	return b.driver.VerifyConnectivity(ctx)
}

// Close releases pooled connections.
func (b *Bolt) Close() error {
	return b.driver.Close(context.Background())
}

var transientMarkers = []string{"connection refused", "connection reset", "no such host", "i/o timeout", "EOF"}

// Transient reports whether err looks like a network failure worth retrying.
// Authentication and query errors are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if neo4j.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

var _ Driver = (*Bolt)(nil)
