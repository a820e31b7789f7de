// Package ingest loads work items and reference notes from disk.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joss/obsreport/internal/domain"
	"github.com/joss/obsreport/internal/knowledge"
	"github.com/joss/obsreport/internal/logging"
)

// chunkChars bounds one reference chunk handed to the retriever.
const chunkChars = 800

// Input is everything a run reads from disk.
type Input struct {
	Items []domain.WorkItem
	// Notes are reference documents fed to the knowledge retriever.
	Notes []knowledge.Doc
}

// Stats summarizes a load.
type Stats struct {
	Items  int `json:"items"`
	Images int `json:"images"`
	Notes  int `json:"notes"`
	Chunks int `json:"chunks"`
}

// Load reads a manifest file, or a directory of images when path is a directory.
func Load(path string) (*Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if info.IsDir() {
		return FromDirectory(path)
	}
	return FromManifest(path)
}

// Stats counts what was loaded.
func (in *Input) Stats() Stats {
	s := Stats{Items: len(in.Items), Notes: len(in.Notes)}
	for _, it := range in.Items {
		if it.HasImage() {
			s.Images++
		}
	}
	return s
}

// Index splits every note into chunks and adds them to r. It returns the
// number of chunks indexed.
func (in *Input) Index(ctx context.Context, r *knowledge.Retriever) (int, error) {
	var docs []knowledge.Doc
	for _, n := range in.Notes {
		for i, chunk := range knowledge.Split(n.Text, chunkChars) {
			docs = append(docs, knowledge.Doc{
				ID:     fmt.Sprintf("%s#%d", n.ID, i),
				Text:   chunk,
				Source: n.Source,
			})
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := r.Add(ctx, docs...); err != nil {
		return 0, fmt.Errorf("ingest: index notes: %w", err)
	}
	logging.FromContext(ctx, "ingest").Info("notes_indexed", map[string]interface{}{
		"notes":  len(in.Notes),
		"chunks": len(docs),
	})
	return len(docs), nil
}

// readNote loads one reference file as a Doc keyed by its path.
func readNote(path string) (knowledge.Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return knowledge.Doc{}, fmt.Errorf("read note %s: %w", path, err)
	}
	return knowledge.Doc{
		ID:     filepath.ToSlash(path),
		Text:   strings.TrimSpace(string(data)),
		Source: filepath.Base(path),
	}, nil
}

// resolve makes a local reference relative to base; URLs pass through.
func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || isURL(ref) || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(base, ref)
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
