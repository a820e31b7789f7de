package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/graph"
)

// Graph persists runs as ObservationRun nodes, each final report as an
// ObservationReport node linked by HAS_REPORT.
type Graph struct {
	db graph.Driver
}

var _ RunStore = (*Graph)(nil)

func NewGraph(db graph.Driver) *Graph {
	return &Graph{db: db}
}

func (g *Graph) PutSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if snap.RunID == "" {
		return ErrInvalidID
	}
	sectionsJSON, err := json.Marshal(snap.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}

	query := `
		MERGE (run:ObservationRun {run_id: $run_id})
		SET run.status = $status,
			run.message = $message,
			run.processed = $processed,
			run.expected = $expected,
			run.final = $final,
			run.sections_json = $sections_json,
			run.updated_at = $updated_at
	`
	err = g.db.ExecuteWrite(ctx, query, map[string]any{
		"run_id":        snap.RunID,
		"status":        string(snap.Status),
		"message":       snap.Message,
		"processed":     snap.Processed,
		"expected":      snap.Expected,
		"final":         snap.Final,
		"sections_json": string(sectionsJSON),
		"updated_at":    formatTime(snap.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

const runReturn = `
	RETURN run.run_id AS run_id, run.status AS status, run.message AS message,
		run.processed AS processed, run.expected AS expected, run.final AS final,
		run.sections_json AS sections_json, run.updated_at AS updated_at
`

func (g *Graph) GetSnapshot(ctx context.Context, runID string) (*domain.Snapshot, error) {
	records, err := g.db.Execute(ctx, `MATCH (run:ObservationRun {run_id: $run_id})`+runReturn,
		map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(records) == 0 {
		return nil, notFound(KindSnapshot, runID)
	}
	return snapshotFromRecord(records[0])
}

func (g *Graph) ListSnapshots(ctx context.Context, filter Filter) ([]*domain.Snapshot, error) {
	params := map[string]any{}
	query := `MATCH (run:ObservationRun)`
	if filter.Status != "" {
		query += ` WHERE run.status = $status`
		params["status"] = string(filter.Status)
	}
	query += runReturn + ` ORDER BY updated_at DESC`
	if filter.Offset > 0 {
		query += ` SKIP $offset`
		params["offset"] = filter.Offset
	}
	if filter.Limit > 0 {
		query += ` LIMIT $limit`
		params["limit"] = filter.Limit
	}

	records, err := g.db.Execute(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]*domain.Snapshot, 0, len(records))
	for _, rec := range records {
		snap, err := snapshotFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func snapshotFromRecord(rec graph.Record) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		RunID:     rec.String("run_id"),
		Status:    domain.Status(rec.String("status")),
		Message:   rec.String("message"),
		Processed: rec.Int("processed"),
		Expected:  rec.Int("expected"),
		Final:     rec.Bool("final"),
		UpdatedAt: parseTime(rec.String("updated_at")),
	}
	if raw := rec.String("sections_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Sections); err != nil {
			return nil, fmt.Errorf("decode sections of %s: %w", snap.RunID, err)
		}
	}
	return snap, nil
}

func (g *Graph) PutReport(ctx context.Context, report domain.Report) error {
	if report.RunID == "" {
		return ErrInvalidID
	}
	sectionsJSON, err := json.Marshal(report.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}

	query := `
		MERGE (run:ObservationRun {run_id: $run_id})
		MERGE (run)-[:HAS_REPORT]->(rep:ObservationReport {run_id: $run_id})
		SET rep.items = $items,
			rep.sections_json = $sections_json,
			rep.created_at = $created_at
	`
	err = g.db.ExecuteWrite(ctx, query, map[string]any{
		"run_id":        report.RunID,
		"items":         report.Items,
		"sections_json": string(sectionsJSON),
		"created_at":    formatTime(report.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (g *Graph) GetReport(ctx context.Context, runID string) (*domain.Report, error) {
	records, err := g.db.Execute(ctx, `
		MATCH (rep:ObservationReport {run_id: $run_id})
		RETURN rep.run_id AS run_id, rep.items AS items,
			rep.sections_json AS sections_json, rep.created_at AS created_at
	`, map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if len(records) == 0 {
		return nil, notFound(KindReport, runID)
	}
	rec := records[0]
	r := &domain.Report{
		RunID:     rec.String("run_id"),
		Items:     rec.Int("items"),
		CreatedAt: parseTime(rec.String("created_at")),
	}
	if err := json.Unmarshal([]byte(rec.String("sections_json")), &r.Sections); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return r, nil
}

func (g *Graph) Ping(ctx context.Context) error { return g.db.Ping(ctx) }

func (g *Graph) Close() error { return g.db.Close() }
