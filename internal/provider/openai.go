package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Client against the OpenAI embeddings API, or any
// OpenAI-compatible endpoint (Ollama, proxies) via a custom base URL.
type OpenAI struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	dimension  int
	apiKey     string
}

// NewOpenAI creates an OpenAI-backed provider. baseURL and model may be
// empty to take the defaults.
func NewOpenAI(apiKey, baseURL, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	// The default config carries no HTTP timeout; a stalled endpoint
	// would hold the call forever when the caller's context has no
	// deadline.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}
	cfg.HTTPClient = httpClient

	return &OpenAI{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
		model:      model,
		dimension:  OpenAIDimension,
		apiKey:     apiKey,
	}, nil
}

func (o *OpenAI) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	vectors, err := o.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *OpenAI) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(resp.Data), len(texts))
	}

	// The API may return data out of order; Index maps back to input.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderFailed, data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for index %d", ErrProviderFailed, i)
		}
	}
	return vectors, nil
}

func (o *OpenAI) Dimension() int {
	return o.dimension
}

func (o *OpenAI) Name() string {
	return NameOpenAI
}

func (o *OpenAI) Model() string {
	return o.model
}

func (o *OpenAI) Configured() bool {
	return o.apiKey != ""
}

func (o *OpenAI) Close() error {
	return nil
}
