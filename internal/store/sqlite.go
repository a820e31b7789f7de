package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/obsreport/internal/domain"
)

// SQLite stores snapshots and reports in a single database file.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ RunStore = (*SQLite)(nil)

// DefaultDBName is the file created under the data directory.
const DefaultDBName = "obsreport.db"

// NewSQLite opens (creating if needed) the database in dataDir.
func NewSQLite(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBName)
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLite{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		processed INTEGER NOT NULL DEFAULT 0,
		expected INTEGER NOT NULL DEFAULT 0,
		final INTEGER NOT NULL DEFAULT 0,
		sections_json TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_snapshots_status ON snapshots(status);

	CREATE TABLE IF NOT EXISTS reports (
		run_id TEXT PRIMARY KEY,
		items INTEGER NOT NULL DEFAULT 0,
		sections_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path is the database file location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Snapshot operations

func (s *SQLite) PutSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if snap.RunID == "" {
		return ErrInvalidID
	}
	sectionsJSON, err := json.Marshal(snap.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, status, message, processed, expected, final, sections_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			processed = excluded.processed,
			expected = excluded.expected,
			final = excluded.final,
			sections_json = excluded.sections_json,
			updated_at = excluded.updated_at
	`, snap.RunID, string(snap.Status), snap.Message, snap.Processed, snap.Expected,
		snap.Final, string(sectionsJSON), formatTime(snap.UpdatedAt))
	return err
}

const snapshotColumns = `run_id, status, message, processed, expected, final, sections_json, updated_at`

func (s *SQLite) GetSnapshot(ctx context.Context, runID string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE run_id = ?`, runID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(KindSnapshot, runID)
	}
	return snap, err
}

func (s *SQLite) ListSnapshots(ctx context.Context, filter Filter) ([]*domain.Snapshot, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*domain.Snapshot, error) {
	var (
		snap         domain.Snapshot
		status       string
		sectionsJSON sql.NullString
		updatedAt    string
	)
	if err := row.Scan(&snap.RunID, &status, &snap.Message, &snap.Processed, &snap.Expected,
		&snap.Final, &sectionsJSON, &updatedAt); err != nil {
		return nil, err
	}
	snap.Status = domain.Status(status)
	snap.UpdatedAt = parseTime(updatedAt)
	if sectionsJSON.Valid && sectionsJSON.String != "" {
		if err := json.Unmarshal([]byte(sectionsJSON.String), &snap.Sections); err != nil {
			return nil, fmt.Errorf("decode sections of %s: %w", snap.RunID, err)
		}
	}
	return &snap, nil
}

// Report operations

func (s *SQLite) PutReport(ctx context.Context, report domain.Report) error {
	if report.RunID == "" {
		return ErrInvalidID
	}
	sectionsJSON, err := json.Marshal(report.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (run_id, items, sections_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			items = excluded.items,
			sections_json = excluded.sections_json,
			created_at = excluded.created_at
	`, report.RunID, report.Items, string(sectionsJSON), formatTime(report.CreatedAt))
	return err
}

func (s *SQLite) GetReport(ctx context.Context, runID string) (*domain.Report, error) {
	var (
		r            domain.Report
		sectionsJSON string
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, items, sections_json, created_at FROM reports WHERE run_id = ?
	`, runID).Scan(&r.RunID, &r.Items, &sectionsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(KindReport, runID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sectionsJSON), &r.Sections); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// timeLayout is fixed width so ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
