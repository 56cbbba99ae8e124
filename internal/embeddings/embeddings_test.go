package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semdex/internal/config"
)

func TestKnownDimensions(t *testing.T) {
	tests := []struct {
		model    string
		expected int
	}{
		{"nomic-embed-text", 768},
		{"mxbai-embed-large", 1024},
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"unknown-model", 0},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, KnownDimensions(tt.model))
		})
	}
}

func TestNewOllama(t *testing.T) {
	t.Run("default URL", func(t *testing.T) {
		svc := NewOllama("", "nomic-embed-text")
		assert.Equal(t, "http://localhost:11434", svc.baseURL)
		assert.Equal(t, 768, svc.Dimensions())
		assert.Equal(t, ProviderOllama, svc.Provider())
		assert.Equal(t, "nomic-embed-text", svc.ModelName())
	})

	t.Run("trailing slash stripped", func(t *testing.T) {
		svc := NewOllama("http://custom:8080/", "mxbai-embed-large")
		assert.Equal(t, "http://custom:8080", svc.baseURL)
		assert.Equal(t, 1024, svc.Dimensions())
	})

	t.Run("unknown model defaults to 768", func(t *testing.T) {
		svc := NewOllama("", "custom-model")
		assert.Equal(t, 768, svc.Dimensions())
	})
}

func TestNewOpenAI(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewOpenAI("", "text-embedding-3-small", "", 0)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("known model dimensions", func(t *testing.T) {
		svc, err := NewOpenAI("sk-test", "text-embedding-3-small", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 1536, svc.Dimensions())
		assert.Equal(t, ProviderOpenAI, svc.Provider())
	})

	t.Run("reduced dimensions pass through", func(t *testing.T) {
		svc, err := NewOpenAI("sk-test", "text-embedding-3-large", "", 512)
		require.NoError(t, err)
		assert.Equal(t, 512, svc.Dimensions())
	})
}

func TestOllamaTaskPrefixes(t *testing.T) {
	t.Run("nomic-embed-text", func(t *testing.T) {
		svc := NewOllama("", "nomic-embed-text")
		assert.Equal(t, "search_document: code", svc.prefixed("code", false))
		assert.Equal(t, "search_query: code", svc.prefixed("code", true))
	})

	t.Run("mxbai-embed-large query only", func(t *testing.T) {
		svc := NewOllama("", "mxbai-embed-large")
		assert.Equal(t, "code", svc.prefixed("code", false))
		assert.Equal(t, "Represent this sentence for searching relevant passages: code", svc.prefixed("code", true))
	})

	t.Run("unknown model unprefixed", func(t *testing.T) {
		svc := NewOllama("", "custom")
		assert.Equal(t, "code", svc.prefixed("code", false))
		assert.Equal(t, "code", svc.prefixed("code", true))
	})
}

// mockOllamaServer simulates the /api/embed endpoint with deterministic
// vectors: input i gets all components (i+1)*0.1.
func mockOllamaServer(t *testing.T, dims int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dims)
			for j := range vec {
				vec[j] = float32(i+1) * 0.1
			}
			embeddings[i] = vec
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
}

func TestOllamaEmbed(t *testing.T) {
	server := mockOllamaServer(t, 768)
	defer server.Close()

	svc := NewOllama(server.URL, "nomic-embed-text")

	t.Run("single document", func(t *testing.T) {
		emb, err := svc.Embed(context.Background(), "def f(): pass")
		require.NoError(t, err)
		assert.Len(t, emb, 768)
	})

	t.Run("batch preserves order", func(t *testing.T) {
		embs, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, embs, 3)
		for i, emb := range embs {
			assert.Len(t, emb, 768)
			assert.Equal(t, float32(i+1)*0.1, emb[0])
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		embs, err := svc.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, embs)
	})

	t.Run("single-element batch matches Embed", func(t *testing.T) {
		single, err := svc.Embed(context.Background(), "def f(): pass")
		require.NoError(t, err)

		batch, err := svc.EmbedBatch(context.Background(), []string{"def f(): pass"})
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, single, batch[0])
	})
}

func TestOllamaConcurrentBatches(t *testing.T) {
	server := mockOllamaServer(t, 512)
	defer server.Close()

	svc := NewOllama(server.URL, "nomic-embed-text")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.EmbedBatch(context.Background(), []string{"a", "b"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 512, svc.Dimensions())
}

func TestOllamaErrors(t *testing.T) {
	t.Run("server error surfaces body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("model not found"))
		}))
		defer server.Close()

		_, err := NewOllama(server.URL, "nomic-embed-text").Embed(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("count mismatch rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1}}})
		}))
		defer server.Close()

		_, err := NewOllama(server.URL, "nomic-embed-text").EmbedBatch(context.Background(), []string{"a", "b"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 inputs")
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := mockOllamaServer(t, 8)
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewOllama(server.URL, "nomic-embed-text").Embed(ctx, "x")
		assert.Error(t, err)
	})
}

func TestOllamaDimensionUpdate(t *testing.T) {
	server := mockOllamaServer(t, 512)
	defer server.Close()

	svc := NewOllama(server.URL, "nomic-embed-text")
	assert.Equal(t, 768, svc.Dimensions())

	_, err := svc.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 512, svc.Dimensions())
}

func TestNewService(t *testing.T) {
	t.Run("ollama", func(t *testing.T) {
		svc, err := NewService(config.EmbeddingsConfig{
			Provider: "ollama",
			Ollama:   config.OllamaEmbedConfig{Model: "nomic-embed-text"},
		})
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, svc.Provider())
	})

	t.Run("openai", func(t *testing.T) {
		svc, err := NewService(config.EmbeddingsConfig{
			Provider: "openai",
			OpenAI:   config.OpenAIEmbedConfig{APIKey: "sk-test", Model: "text-embedding-3-small"},
		})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, svc.Provider())
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewService(config.EmbeddingsConfig{Provider: "nope"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported embedding provider")
	})
}
