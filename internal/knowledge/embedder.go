// Package knowledge retrieves contextual text for analysis prompts.
package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// LocalEmbedder builds embeddings by feature hashing. No network, stable
// across processes, good enough to rank a few hundred notes.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a local embedder; dims defaults to 384.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &LocalEmbedder{dims: dims}
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Embed hashes each token into three signed positions, weighted by
// log term frequency, plus character bigrams for longer tokens.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, e.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return embedding, nil
	}

	tf := make(map[string]int)
	for _, token := range tokens {
		tf[token]++
	}

	for token, count := range tf {
		weight := float32(1.0 + math.Log(float64(count)))
		for seed, scale := range []float32{1, 0.5, 0.25} {
			h := hashString(token, uint64(seed))
			addSigned(embedding, h, weight*scale)
		}
		if len(token) > 3 {
			for i := 0; i < len(token)-1; i++ {
				addSigned(embedding, hashString(token[i:i+2], 3), 0.1)
			}
		}
	}

	normalize(embedding)
	return embedding, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int {
	return e.dims
}

func addSigned(v []float32, h uint64, w float32) {
	pos := int(h % uint64(len(v)))
	if h&1 == 0 {
		v[pos] += w
	} else {
		v[pos] -= w
	}
}

func tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, m := range matches {
		if len(m) >= 2 {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

func hashString(s string, seed uint64) uint64 {
	h := fnv.New64a()
	h.Write([]byte{byte(seed), byte(seed >> 8)})
	h.Write([]byte(s))
	return h.Sum64()
}

func normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(float64(sum)))
	for i := range v {
		v[i] /= norm
	}
}

// Cosine returns the cosine similarity of two vectors of equal length.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
