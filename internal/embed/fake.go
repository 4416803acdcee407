package embed

import (
	"context"
	"hash/fnv"
)

// Fake is a deterministic embedder for tests: it hashes the input text
// into a fixed-dimension vector so the same text always yields the same
// vector, and distinct texts (almost always) yield distinguishable
// vectors, without any network or model dependency. It lives in a
// regular file rather than export_test.go because index, migration,
// and dispatch all construct one in their own tests, and a
// test-only file isn't visible outside this package.
type Fake struct {
	dim int
}

var _ Embedder = (*Fake)(nil)

// NewFake creates a deterministic test embedder producing vectors of
// the given dimension.
func NewFake(dim int) *Fake {
	if dim <= 0 {
		dim = 8
	}
	return &Fake{dim: dim}
}

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return hashVector(text, f.dim), nil
}

func (f *Fake) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t, f.dim)
	}
	return out, nil
}

func (f *Fake) Dimension() int { return f.dim }

// hashVector derives a small deterministic vector from text using FNV
// hashes of successive salted copies, cheap and dependency-free.
func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		h := fnv.New32a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		vec[i] = float32(h.Sum32()%10000) / 10000
	}
	return vec
}
