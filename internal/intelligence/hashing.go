package intelligence

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashDimension matches the all-MiniLM-L6-v2 output size so a
// collection can switch between the local and hashed embedders without a
// dimension change.
const DefaultHashDimension = 384

// HashEmbedder produces deterministic bag-of-words vectors by feature hashing.
// It needs no model server and is used for tests and offline runs.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder with the given dimension
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Model returns the embedder name
func (h *HashEmbedder) Model() string { return "hash" }

// Dimension returns the vector length
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed returns the unit-length hashed vector for text
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

// EmbedBatch embeds each text independently
func (h *HashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	acc := make([]float64, h.dim)

	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(acc, tok, 1)
		if i > 0 {
			h.add(acc, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}

	vec := make([]float32, h.dim)
	if norm == 0 {
		// Texts without tokens still need a valid direction for cosine distance.
		vec[xxhash.Sum64String(text)%uint64(h.dim)] = 1
		return vec
	}

	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (h *HashEmbedder) add(acc []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
