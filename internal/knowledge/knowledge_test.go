package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/obsreport/internal/graph"
)

func TestLocalEmbedderUnitNorm(t *testing.T) {
	e := NewLocalEmbedder(384)
	emb, err := e.Embed(context.Background(), "Water stain on the north wall ceiling")
	require.NoError(t, err)
	require.Len(t, emb, 384)

	var sum float32
	for _, v := range emb {
		sum += v * v
	}
	assert.InDelta(t, 1.0, sum, 0.01)

	empty, err := e.Embed(context.Background(), "!")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 384), empty)
}

func TestLocalEmbedderSimilarity(t *testing.T) {
	e := NewLocalEmbedder(384)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "cracked concrete slab near the garage door")
	b, _ := e.Embed(ctx, "cracked concrete slab by the garage")
	c, _ := e.Embed(ctx, "electrical panel missing breaker labels")
	assert.Greater(t, Cosine(a, b), Cosine(a, c))

	again, _ := e.Embed(ctx, "cracked concrete slab near the garage door")
	assert.Equal(t, a, again)
}

func TestCosineEdgeCases(t *testing.T) {
	assert.Equal(t, float32(0), Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, float32(0), Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
}

func TestMemoryIndexSearchAndReplace(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, Doc{ID: "a", Text: "alpha"}, []float32{1, 0}))
	require.NoError(t, idx.Add(ctx, Doc{ID: "b", Text: "beta"}, []float32{0, 1}))
	require.NoError(t, idx.Add(ctx, Doc{ID: "c", Text: "gamma"}, []float32{0.7, 0.7}))

	hits, err := idx.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Doc.ID)
	assert.Equal(t, "c", hits[1].Doc.ID)

	require.NoError(t, idx.Add(ctx, Doc{ID: "a", Text: "alpha v2"}, []float32{0, 1}))
	assert.Equal(t, 3, idx.Len())
	hits, _ = idx.Search(ctx, []float32{0, 1}, 1)
	assert.Contains(t, []string{"alpha v2", "beta"}, hits[0].Doc.Text)
}

type fakeDriver struct {
	records []graph.Record
	err     error
	queries []string
	params  []map[string]any
}

func (f *fakeDriver) Execute(ctx context.Context, q string, p map[string]any) ([]graph.Record, error) {
	f.queries = append(f.queries, q)
	f.params = append(f.params, p)
	return f.records, f.err
}

func (f *fakeDriver) ExecuteWrite(ctx context.Context, q string, p map[string]any) error {
	f.queries = append(f.queries, q)
	f.params = append(f.params, p)
	return f.err
}

func (f *fakeDriver) Close() error                   { return nil }
func (f *fakeDriver) Ping(ctx context.Context) error { return nil }

func TestGraphIndex(t *testing.T) {
	db := &fakeDriver{records: []graph.Record{
		{"id": "n1", "text": "roof flashing notes", "source": "notes.md", "score": 0.9},
	}}
	idx := NewGraphIndex(db)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, Doc{ID: "n1", Text: "roof flashing notes"}, []float32{0.5, 0.5}))
	assert.Contains(t, db.queries[0], "MERGE (c:ContextChunk")
	assert.Equal(t, []float64{0.5, 0.5}, db.params[0]["vector"])

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "notes.md", hits[0].Doc.Source)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)
	assert.Equal(t, 3, db.params[1]["limit"])

	db.err = errors.New("connection refused")
	_, err = idx.Search(ctx, []float32{1, 0}, 3)
	assert.Error(t, err)
}

type failingIndex struct{}

func (failingIndex) Add(context.Context, Doc, []float32) error { return errors.New("down") }
func (failingIndex) Search(context.Context, []float32, int) ([]Hit, error) {
	return nil, errors.New("down")
}

func TestRetrieverBestEffort(t *testing.T) {
	r := NewRetriever(nil, failingIndex{})
	assert.Empty(t, r.Retrieve(context.Background(), "anything", 3))
	assert.Error(t, r.Add(context.Background(), Doc{ID: "x", Text: "y"}))
}

func TestRetrieverRanksRelevantNotes(t *testing.T) {
	r := NewRetriever(nil, nil)
	ctx := context.Background()
	require.NoError(t, r.Add(ctx,
		Doc{ID: "1", Text: "Gutters must be cleared of debris before winter."},
		Doc{ID: "2", Text: "Smoke detectors are required in every bedroom."},
		Doc{ID: "3", Text: "Gutter downspouts should discharge away from the foundation."},
	))
	got := r.Retrieve(ctx, "gutter debris and downspouts", 2)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0], "utter")
	assert.Empty(t, r.Retrieve(ctx, "   ", 2))
	assert.Empty(t, r.Retrieve(ctx, "gutter", 0))
}

func TestOpenAIEmbedderBatches(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		requests.Add(1)
		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.Input), embedBatchSize)

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			// reverse order on the wire; Index restores it
			j := len(req.Input) - 1 - i
			var n float32
			fmt.Sscanf(req.Input[j], "t%f", &n)
			data[i] = item{Embedding: []float32{n}, Index: j}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("k", server.URL, "")
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	out, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, 250)
	assert.EqualValues(t, 3, requests.Load())
	assert.Equal(t, []float32{0}, out[0])
	assert.Equal(t, []float32{249}, out[249])
	assert.Equal(t, 1536, e.Dimensions())
}

func TestOpenAIEmbedderStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	_, err := NewOpenAIEmbedder("k", server.URL+"/v1/", "text-embedding-3-large").Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "429"))
}

func TestSplit(t *testing.T) {
	text := "First sentence here. Second one is a bit longer. Third. Fourth sentence closes it."
	chunks := Split(text, 40)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 40, c)
	}
	assert.Equal(t, "First sentence here.", chunks[0])
	assert.Equal(t, strings.Join(chunks, " "), "First sentence here. Second one is a bit longer. Third. Fourth sentence closes it.")
	assert.Nil(t, Split("", 10))
}
