package provider

import (
	"context"
	"crypto/sha256"
	"math"
)

// Local is a deterministic offline provider. It derives a stable
// pseudo-embedding from the text hash: not semantically meaningful, but
// consistent, which is what offline development and tests need.
type Local struct {
	model string
}

// NewLocal creates the local provider.
func NewLocal() (*Local, error) {
	return &Local{model: "local-embeddings"}, nil
}

func (l *Local) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, LocalDimension)
	hash := sha256.Sum256([]byte(text))
	for i := 0; i < LocalDimension; i++ {
		vector[i] = float32(hash[i%len(hash)]) / 255.0
	}
	return NormalizeVector(vector), nil
}

func (l *Local) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := l.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (l *Local) Dimension() int {
	return LocalDimension
}

func (l *Local) Name() string {
	return NameLocal
}

func (l *Local) Model() string {
	return l.model
}

func (l *Local) Configured() bool {
	return true
}

func (l *Local) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
