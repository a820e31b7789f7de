package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/joss/obsreport/internal/graph"
)

// Doc is one retrievable text fragment.
type Doc struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Hit is a search result.
type Hit struct {
	Doc   Doc
	Score float32
}

// Index stores embedded docs and answers nearest-neighbour queries.
type Index interface {
	Add(ctx context.Context, doc Doc, vector []float32) error
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)
}

// MemoryIndex is an in-process brute-force cosine index.
type MemoryIndex struct {
	mu      sync.RWMutex
	docs    []Doc
	vectors [][]float32
	byID    map[string]int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byID: make(map[string]int)}
}

// Add inserts doc or replaces the entry with the same ID.
func (m *MemoryIndex) Add(ctx context.Context, doc Doc, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[doc.ID]; ok {
		m.docs[i], m.vectors[i] = doc, vector
		return nil
	}
	m.byID[doc.ID] = len(m.docs)
	m.docs = append(m.docs, doc)
	m.vectors = append(m.vectors, vector)
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.docs))
	for i, v := range m.vectors {
		hits = append(hits, Hit{Doc: m.docs[i], Score: Cosine(vector, v)})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len is the number of stored docs.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// GraphIndex stores docs as ContextChunk nodes and ranks them with a
// Cypher cosine computation.
type GraphIndex struct {
	db graph.Driver
}

func NewGraphIndex(db graph.Driver) *GraphIndex {
	return &GraphIndex{db: db}
}

func (g *GraphIndex) Add(ctx context.Context, doc Doc, vector []float32) error {
	query := `
		MERGE (c:ContextChunk {id: $id})
		SET c.text = $text,
			c.source = $source,
			c.vector = $vector
	`
	vec := make([]float64, len(vector))
	for i, x := range vector {
		vec[i] = float64(x)
	}
	err := g.db.ExecuteWrite(ctx, query, map[string]any{
		"id":     doc.ID,
		"text":   doc.Text,
		"source": doc.Source,
		"vector": vec,
	})
	if err != nil {
		return fmt.Errorf("store chunk %s: %w", doc.ID, err)
	}
	return nil
}

func (g *GraphIndex) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		MATCH (c:ContextChunk)
		WHERE c.vector IS NOT NULL AND size(c.vector) = size($vector)
		WITH c, $vector AS target
		WITH c,
			 reduce(dot = 0.0, i IN range(0, size(c.vector)-1) | dot + c.vector[i] * target[i]) AS dot_product,
			 reduce(ss_a = 0.0, x IN c.vector | ss_a + x*x) AS norm_a_sq,
			 reduce(ss_b = 0.0, y IN target | ss_b + y*y) AS norm_b_sq
		WITH c, dot_product, sqrt(norm_a_sq) * sqrt(norm_b_sq) AS denominator
		WITH c, CASE WHEN denominator = 0 THEN 0 ELSE dot_product / denominator END AS score
		ORDER BY score DESC
		LIMIT $limit
		RETURN c.id AS id, c.text AS text, c.source AS source, score
	`
	vec := make([]float64, len(vector))
	for i, x := range vector {
		vec[i] = float64(x)
	}
	records, err := g.db.Execute(ctx, query, map[string]any{"vector": vec, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	hits := make([]Hit, 0, len(records))
	for _, rec := range records {
		hits = append(hits, Hit{
			Doc: Doc{
				ID:     rec.String("id"),
				Text:   rec.String("text"),
				Source: rec.String("source"),
			},
			Score: float32(rec.Float("score")),
		})
	}
	return hits, nil
}
