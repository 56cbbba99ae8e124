package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Retrieval task prefixes required by specific models. Models absent from
// this table embed raw text on both sides.
var taskPrefixes = map[string]struct{ document, query string }{
	"nomic-embed-text": {
		document: "search_document: ",
		query:    "search_query: ",
	},
	"mxbai-embed-large": {
		query: "Represent this sentence for searching relevant passages: ",
	},
}

// Ollama embeds text through a local Ollama server's /api/embed endpoint.
// Safe for concurrent use.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client

	// dimensions starts from the model table and is corrected from the
	// first response; batches run concurrently, so it needs the lock.
	mu         sync.RWMutex
	dimensions int
}

type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllama creates an Ollama embedding service.
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	dims := KnownDimensions(model)
	if dims == 0 {
		// Corrected from the first response.
		dims = 768
		log.Debug("Unknown model dimensions, assuming default", "model", model, "dimensions", dims)
	}
	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		dimensions: dims,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.prefixed(text, false))
}

func (s *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.prefixed(text, true))
}

func (s *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = s.prefixed(t, false)
	}
	return s.request(ctx, prefixed)
}

func (s *Ollama) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

func (s *Ollama) Provider() Provider { return ProviderOllama }
func (s *Ollama) ModelName() string  { return s.model }

func (s *Ollama) prefixed(text string, query bool) string {
	p, ok := taskPrefixes[s.model]
	if !ok {
		return text
	}
	if query {
		return p.query + text
	}
	return p.document + text
}

func (s *Ollama) embedOne(ctx context.Context, text string) ([]float32, error) {
	embs, err := s.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding")
	}
	return embs[0], nil
}

func (s *Ollama) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{
		Model:    s.model,
		Input:    texts,
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting embeddings from Ollama", "model", s.model, "count", len(texts))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(msg))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	if len(result.Embeddings) > 0 && len(result.Embeddings[0]) > 0 {
		s.mu.Lock()
		s.dimensions = len(result.Embeddings[0])
		s.mu.Unlock()
	}
	return result.Embeddings, nil
}
