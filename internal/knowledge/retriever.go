package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joss/obsreport/internal/logging"
)

// Retriever answers context queries for the analysis stage. Retrieve is
// best-effort: it never returns an error, only fewer (or no) results.
type Retriever struct {
	embedder Embedder
	index    Index
	minScore float32
	log      *logging.Logger
}

// NewRetriever wires an embedder to an index. Nil arguments fall back to
// LocalEmbedder and MemoryIndex.
func NewRetriever(embedder Embedder, index Index) *Retriever {
	if embedder == nil {
		embedder = NewLocalEmbedder(0)
	}
	if index == nil {
		index = NewMemoryIndex()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		minScore: 0.05,
		log:      logging.New("knowledge"),
	}
}

// Add embeds and stores docs.
func (r *Retriever) Add(ctx context.Context, docs ...Doc) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed docs: %w", err)
	}
	for i, d := range docs {
		if vectors[i] == nil {
			continue
		}
		if err := r.index.Add(ctx, d, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Retrieve returns up to topK doc texts most similar to query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) []string {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	start := time.Now()
	log := r.log.WithRun(logging.RunIDFromContext(ctx))

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Warn("retrieve_embed_failed", nil, err)
		return nil
	}
	hits, err := r.index.Search(ctx, vec, topK)
	if err != nil {
		log.Warn("retrieve_search_failed", nil, err)
		return nil
	}

	var out []string
	for _, h := range hits {
		if h.Score < r.minScore || h.Doc.Text == "" {
			continue
		}
		out = append(out, h.Doc.Text)
	}
	log.TimedEvent("retrieve", start, map[string]interface{}{"hits": len(out), "top_k": topK})
	return out
}

// Split breaks text into chunks of at most maxChars on sentence boundaries.
// A single sentence longer than maxChars becomes its own chunk.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 1000
	}
	var chunks []string
	var cur strings.Builder
	for _, sentence := range strings.Split(text, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if !strings.HasSuffix(sentence, ".") {
			sentence += "."
		}
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > maxChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
