package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Search.Enabled)
	assert.Equal(t, DefaultTopK, cfg.Search.TopK)
	assert.Equal(t, DefaultSimilarityThreshold, cfg.Search.SimilarityThreshold)
	assert.Equal(t, DefaultMaxCodeLength, cfg.Search.MaxCodeLength)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, DefaultBatchSize, cfg.Index.BatchSize)
	assert.NotEmpty(t, cfg.Ignore)

	require.NoError(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "top_k too small",
			mutate:  func(c *Config) { c.Search.TopK = 0 },
			wantErr: "top_k",
		},
		{
			name:    "top_k too large",
			mutate:  func(c *Config) { c.Search.TopK = 51 },
			wantErr: "top_k",
		},
		{
			name:    "threshold negative",
			mutate:  func(c *Config) { c.Search.SimilarityThreshold = -0.1 },
			wantErr: "similarity_threshold",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Search.SimilarityThreshold = 1.5 },
			wantErr: "similarity_threshold",
		},
		{
			name:    "code length too small",
			mutate:  func(c *Config) { c.Search.MaxCodeLength = 50 },
			wantErr: "max_code_length",
		},
		{
			name:    "code length too large",
			mutate:  func(c *Config) { c.Search.MaxCodeLength = 20000 },
			wantErr: "max_code_length",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Index.BatchSize = 0 },
			wantErr: "batch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBoundaryValuesValid(t *testing.T) {
	cfg := Default()
	cfg.Search.TopK = MinTopK
	cfg.Search.SimilarityThreshold = 0.0
	cfg.Search.MaxCodeLength = MinCodeLength
	require.NoError(t, cfg.Validate())

	cfg.Search.TopK = MaxTopK
	cfg.Search.SimilarityThreshold = 1.0
	cfg.Search.MaxCodeLength = MaxCodeLength
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  top_k: 7
  similarity_threshold: 0.5
embeddings:
  provider: openai
  openai:
    model: text-embedding-3-large
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Search.TopK)
	assert.Equal(t, 0.5, cfg.Search.SimilarityThreshold)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.Embeddings.OpenAI.Model)
	// Unset keys keep defaults.
	assert.Equal(t, DefaultMaxCodeLength, cfg.Search.MaxCodeLength)
	assert.Equal(t, DefaultOllamaModel, cfg.Embeddings.Ollama.Model)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  top_k: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k")
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embeddings:\n  provider: openai\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Embeddings.OpenAI.APIKey)
}
