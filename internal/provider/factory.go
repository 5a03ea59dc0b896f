package provider

import (
	"fmt"
	"os"
	"strings"
)

// Config holds explicit provider configuration.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// New creates a provider from explicit configuration.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case NameOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case NameJina:
		return NewJina(cfg.APIKey, cfg.Model)
	case NameLocal:
		return NewLocal()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// NewFromEnv creates a provider based on environment variables.
// Priority:
// 1. EMBEDGATE_PROVIDER (openai, jina, local)
// 2. Check for API keys: OPENAI_API_KEY, JINA_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Client, error) {
	name := strings.ToLower(os.Getenv(EnvProvider))
	openaiKey := os.Getenv(EnvOpenAIAPIKey)
	jinaKey := os.Getenv(EnvJinaAPIKey)
	model := os.Getenv(EnvModel)

	if name != "" {
		return New(Config{
			Provider: name,
			APIKey:   keyFor(name, openaiKey, jinaKey),
			BaseURL:  os.Getenv(EnvOpenAIBase),
			Model:    model,
		})
	}

	// Auto-detect based on available API keys
	if openaiKey != "" {
		return NewOpenAI(openaiKey, os.Getenv(EnvOpenAIBase), model)
	}
	if jinaKey != "" {
		return NewJina(jinaKey, model)
	}

	return NewLocal()
}

func keyFor(name, openaiKey, jinaKey string) string {
	switch name {
	case NameOpenAI:
		return openaiKey
	case NameJina:
		return jinaKey
	default:
		return ""
	}
}

// Detect returns the provider name that NewFromEnv would select.
func Detect() string {
	if name := os.Getenv(EnvProvider); name != "" {
		return strings.ToLower(name)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return NameOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return NameJina
	}
	return NameLocal
}
