// Package search implements hybrid retrieval and the two-stage
// citation-grounded answer protocol.
package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/inkstream/lettera/internal/config"
	"github.com/inkstream/lettera/internal/embed"
	"github.com/inkstream/lettera/internal/logging"
	"github.com/inkstream/lettera/internal/store"
)

// Candidate is one ranked chunk from hybrid retrieval.
type Candidate struct {
	Chunk        store.Chunk
	VectorScore  float64
	KeywordScore float64
	Combined     float64
}

// Retriever ranks chunks for a query by blending vector similarity with
// lexical term frequency. A missing half contributes zero rather than
// failing the search.
type Retriever struct {
	store    *store.Store
	embedder embed.Embedder
	model    string
	cfg      config.RetrievalConfig
}

// NewRetriever creates a retriever over the given store and embedder.
func NewRetriever(st *store.Store, embedder embed.Embedder, model string, cfg config.RetrievalConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.VectorWeight == 0 && cfg.KeywordWeight == 0 {
		cfg.VectorWeight = 0.7
		cfg.KeywordWeight = 0.3
	}
	return &Retriever{store: st, embedder: embedder, model: model, cfg: cfg}
}

// Retrieve returns the top-K candidates for the query, sorted by
// combined score descending.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Candidate, error) {
	vectorScores, err := r.vectorScores(ctx, query)
	if err != nil {
		return nil, err
	}
	keywordScores := r.keywordScores(query)

	merged := make(map[string]*Candidate)
	for id, hit := range vectorScores {
		merged[id] = &Candidate{Chunk: hit.Chunk, VectorScore: float64(hit.Score)}
	}
	for id, score := range keywordScores.scores {
		if c, ok := merged[id]; ok {
			c.KeywordScore = score
		} else {
			merged[id] = &Candidate{Chunk: keywordScores.chunks[id], KeywordScore: score}
		}
	}

	candidates := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		c.Combined = r.cfg.VectorWeight*c.VectorScore + r.cfg.KeywordWeight*c.KeywordScore
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Combined != candidates[j].Combined {
			return candidates[i].Combined > candidates[j].Combined
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
	if len(candidates) > r.cfg.TopK {
		candidates = candidates[:r.cfg.TopK]
	}

	logging.Debug("hybrid retrieval",
		"query_len", len(query),
		"vector_hits", len(vectorScores),
		"keyword_hits", len(keywordScores.scores),
		"returned", len(candidates))
	return candidates, nil
}

// vectorScores embeds the query and runs nearest-neighbor search. An
// unavailable embedder degrades to no vector half rather than an error;
// an embedder failure is a real error.
func (r *Retriever) vectorScores(ctx context.Context, query string) (map[string]store.ChunkHit, error) {
	if r.embedder == nil || !r.embedder.Available() {
		return nil, nil
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	// Over-fetch so chunks that also score on keywords stay in play
	// after merging.
	hits, err := r.store.NearestChunks(vector, r.model, r.cfg.TopK*3)
	if err != nil {
		return nil, fmt.Errorf("search: vector search: %w", err)
	}

	scores := make(map[string]store.ChunkHit, len(hits))
	for _, hit := range hits {
		scores[hit.Chunk.ID] = hit
	}
	return scores, nil
}

type keywordResult struct {
	scores map[string]float64
	chunks map[string]store.Chunk
}

// keywordScores runs case-insensitive term-frequency scoring over the
// non-junk corpus, normalized so the best chunk scores 1. Any failure —
// no usable terms, storage error — degrades to empty: the lexical half
// never fails the whole search.
func (r *Retriever) keywordScores(query string) keywordResult {
	empty := keywordResult{scores: map[string]float64{}, chunks: map[string]store.Chunk{}}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return empty
	}

	chunks, err := r.store.NonJunkChunks(nil)
	if err != nil {
		logging.Warn("lexical scoring degraded", "error", err)
		return empty
	}

	result := keywordResult{scores: map[string]float64{}, chunks: map[string]store.Chunk{}}
	maxScore := 0.0
	for _, c := range chunks {
		text := strings.ToLower(c.Text)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(text, term))
		}
		if score > 0 {
			result.scores[c.ID] = score
			result.chunks[c.ID] = c
			if score > maxScore {
				maxScore = score
			}
		}
	}
	for id := range result.scores {
		result.scores[id] /= maxScore
	}
	return result
}

var termPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// queryTerms lowercases the query and keeps alphanumeric terms of three
// or more characters. Everything else (quotes, wildcards, control
// characters) is dropped rather than escaped.
func queryTerms(query string) []string {
	var terms []string
	for _, term := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if len(term) >= 3 {
			terms = append(terms, term)
		}
	}
	return terms
}
