// Package embeddings turns chunk text and queries into dense vectors via a
// configurable provider.
package embeddings

import (
	"context"
	"fmt"

	"semdex/internal/config"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Service is the embedding backend contract. Document and query embedding
// are separate operations because some models expect different task
// prefixes for each side of the retrieval.
type Service interface {
	// Embed embeds document text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery embeds query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple document texts. The result preserves
	// input order: result[i] corresponds to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width produced by this model.
	Dimensions() int

	// Provider returns the backend identifier.
	Provider() Provider

	// ModelName returns the model identifier.
	ModelName() string
}

// Dimensions of well-known models, used before the first response confirms
// the real width.
var modelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,

	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// KnownDimensions returns the advertised dimensions for a model, or 0.
func KnownDimensions(model string) int {
	return modelDimensions[model]
}

// NewService builds the embedding service selected by the configuration.
func NewService(cfg config.EmbeddingsConfig) (Service, error) {
	switch Provider(cfg.Provider) {
	case ProviderOllama:
		return NewOllama(cfg.Ollama.URL, cfg.Ollama.Model), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.OpenAI.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
