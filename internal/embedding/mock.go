package embedding

import (
	"strings"
)

// MockEmbedder produces deterministic embeddings from word histograms.
// Texts sharing vocabulary get similar vectors, so similarity search behaves
// plausibly in tests without an Ollama instance.
type MockEmbedder struct {
	Dim int
}

// NewMockEmbedder returns a mock embedder with the given dimensionality.
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &MockEmbedder{Dim: dim}
}

// Embed hashes each word into a bucket and counts occurrences.
func (m *MockEmbedder) Embed(text string) ([]float64, error) {
	vec := make([]float64, m.Dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint32 = 2166136261
		for i := 0; i < len(word); i++ {
			h ^= uint32(word[i])
			h *= 16777619
		}
		vec[h%uint32(m.Dim)]++
	}
	return vec, nil
}
