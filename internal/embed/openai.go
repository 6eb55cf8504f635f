package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/time/rate"
)

// OpenAIEmbedder generates embeddings via the OpenAI API. The embedding
// models are symmetric, so queries and passages use the same call.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	dim     int
	limiter *rate.Limiter
}

// NewOpenAIEmbedder creates a new OpenAIEmbedder with the given API key
// and model, paced at callsPerSec requests per second (0 or below falls
// back to a conservative default).
func NewOpenAIEmbedder(apiKey, model string, dim int, callsPerSec float64) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dim <= 0 {
		dim = 1536
	}
	if callsPerSec <= 0 {
		callsPerSec = 2
	}
	return &OpenAIEmbedder{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		dim:     dim,
		limiter: rate.NewLimiter(rate.Limit(callsPerSec), 1),
	}
}

// Available returns true if the OpenAI API key is configured.
func (e *OpenAIEmbedder) Available() bool {
	return e.limiter != nil && e.model != ""
}

// Embed generates a vector embedding for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedQuery generates a vector embedding for a search query. OpenAI
// embedding models have no query-side task type, so this is Embed.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

// EmbedBatch generates vector embeddings for multiple texts in one call.
// The API returns indexed rows, so results are placed by index to keep
// the output order-preserving.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed: rate limiter wait failed: %w", err)
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dim)),
	})
	if err != nil {
		return nil, fmt.Errorf("embed: openai request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	results := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(texts) {
			return nil, fmt.Errorf("embed: openai returned out-of-range index %d", item.Index)
		}
		vector := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vector[i] = float32(v)
		}
		results[item.Index] = vector
	}

	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("embed: missing embedding for index %d", i)
		}
	}
	return results, nil
}
