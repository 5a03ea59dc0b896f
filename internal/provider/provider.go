package provider

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// Provider names
const (
	NameOpenAI = "openai"
	NameJina   = "jina"
	NameLocal  = "local"

	// Default models
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"

	// Dimensions
	OpenAIDimension = 1536
	JinaDimension   = 1024
	LocalDimension  = 384

	// Hard item cap per provider request. The orchestrator splits
	// batches well below this; it is the provider-side safety limit.
	MaxBatchSize = 100
)

// Environment variables consulted by the factory
const (
	EnvProvider     = "EMBEDGATE_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOpenAIBase   = "OPENAI_BASE_URL"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvModel        = "EMBEDGATE_EMBED_MODEL"
)

// Client is the embedding provider capability. Implementations are
// stateless and differ only in endpoint, auth and request shaping; no
// caller depends on provider-specific fields beyond the vector and its
// length. Resilience (cache, retry, circuit breaking) lives above this
// interface, not inside it.
type Client interface {
	// GenerateEmbedding generates a single embedding for the given text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch generates embeddings for multiple texts in one call.
	// The result preserves input order exactly.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for this provider.
	Dimension() int

	// Name returns the provider name.
	Name() string

	// Model returns the model name.
	Model() string

	// Configured reports whether the provider has everything it needs
	// (credentials, endpoint) to serve calls.
	Configured() bool

	// Close releases any resources held by the provider.
	Close() error
}

// ValidateText rejects a single-item request with empty text.
func ValidateText(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatch rejects empty batches, over-large batches and batches
// containing empty items.
func ValidateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
