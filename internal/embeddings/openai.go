package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI embeds text through the OpenAI embeddings API, or any compatible
// endpoint via BaseURL.
type OpenAI struct {
	client     openai.Client
	model      string
	dimensions int
	requestDim int
}

// NewOpenAI creates an OpenAI embedding service. dimensions, when non-zero,
// is passed through to the API for models that support reduced output.
func NewOpenAI(apiKey, model, baseURL string, dimensions int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY)")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	requestDim := dimensions
	if dimensions == 0 {
		dimensions = KnownDimensions(model)
		if dimensions == 0 {
			dimensions = 1536
			log.Debug("Unknown model dimensions, assuming default", "model", model, "dimensions", dimensions)
		}
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
		requestDim: requestDim,
	}, nil
}

func (s *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := s.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("openai returned no embedding")
	}
	return embs[0], nil
}

// EmbedQuery is identical to Embed; the OpenAI models take no task prefix.
func (s *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func (s *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return s.request(ctx, texts)
}

func (s *OpenAI) Dimensions() int    { return s.dimensions }
func (s *OpenAI) Provider() Provider { return ProviderOpenAI }
func (s *OpenAI) ModelName() string  { return s.model }

func (s *OpenAI) request(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from OpenAI", "model", s.model, "count", len(texts))

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if s.requestDim > 0 {
		params.Dimensions = openai.Int(int64(s.requestDim))
	}

	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings request failed: %w", err)
	}

	// The API reports each vector's position; reassemble in input order.
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(embeddings) {
			continue
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		embeddings[idx] = vec
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("openai response missing embedding for input %d", i)
		}
	}

	if len(embeddings[0]) > 0 {
		s.dimensions = len(embeddings[0])
	}
	return embeddings, nil
}
