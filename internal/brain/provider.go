// Package brain abstracts the generative model collaborators.
package brain

import (
	"context"
	"strings"
)

// Provider is the interface for generative model providers.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "gemini")
	Name() string

	// Available returns true if the provider is configured and ready
	Available() bool

	// Generate sends a prompt and returns the response. A non-success
	// response is a hard failure: generation calls are not content-level
	// idempotent, so callers decide whether a retry is safe.
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is a prompt request to a generative provider.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	// Temperature near zero selects the deterministic mode used for
	// extraction and classification.
	Temperature float64
	// JSONMode asks the provider to constrain output to a JSON value
	// where the API supports it.
	JSONMode bool
}

// Response is the provider's response.
type Response struct {
	Content     string
	Model       string
	RawResponse string // The raw API response body for logging/debugging
	Usage       Usage
}

// Usage is the token accounting for one generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// tokenPricesUSD maps model prefixes to (input, output) price per 1M
// tokens. Used for the rough cost estimate surfaced with search results;
// unknown models estimate to zero.
var tokenPricesUSD = map[string][2]float64{
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
	"gpt-4.1":     {2.00, 8.00},
	"gemini":      {0.10, 0.40},
}

// EstimateCost returns an approximate USD cost for a call's token usage.
// The longest matching model prefix wins.
func EstimateCost(model string, usage Usage) float64 {
	var best string
	for prefix := range tokenPricesUSD {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	prices := tokenPricesUSD[best]
	return float64(usage.PromptTokens)/1e6*prices[0] +
		float64(usage.CompletionTokens)/1e6*prices[1]
}
