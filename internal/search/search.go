package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkstream/lettera/internal/brain"
	"github.com/inkstream/lettera/internal/logging"
	"github.com/inkstream/lettera/internal/store"
)

// NoInformationFound is the fixed response for queries with no extracted
// evidence. Returned verbatim so callers can detect the short-circuit.
const NoInformationFound = "No information found in the ingested newsletters for this query."

// Citation identifies one source backing the answer.
type Citation struct {
	ChunkID   string `json:"chunk_id"`
	Publisher string `json:"publisher"`
	Date      string `json:"date"`
	Subject   string `json:"subject"`
}

// Result is the outcome of one search call.
type Result struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	ChunksUsed int        `json:"chunks_used"`
	Cost       float64    `json:"cost"`
}

// Searcher answers queries with the two-stage protocol: extract facts
// bounded to retrieved evidence, then synthesize an answer that cites
// only those facts.
type Searcher struct {
	store     *store.Store
	retriever *Retriever
	provider  brain.Provider
}

// NewSearcher wires a searcher from its injected collaborators.
func NewSearcher(st *store.Store, retriever *Retriever, provider brain.Provider) *Searcher {
	return &Searcher{store: st, retriever: retriever, provider: provider}
}

const synthesizeSystemPrompt = `You answer questions using ONLY the
numbered facts supplied, each of which carries a citation. Rules:
- Use only the supplied facts. Never add outside knowledge.
- After every claim, include the citation of the fact backing it, in
  square brackets.
- If facts contradict each other, state the contradiction explicitly and
  cite both sides. Do not silently pick one.
- Be concise.`

// Search runs the full protocol for a query. Zero extracted facts
// short-circuit to the fixed no-information response without invoking
// synthesis. A failed generation call is a hard error: generation is not
// content-level idempotent, so the caller decides about retries.
func (s *Searcher) Search(ctx context.Context, query string) (Result, error) {
	logger := logging.WithPrefix("search")
	start := time.Now()

	candidates, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{Answer: NoInformationFound}, nil
	}

	evidence, err := gatherEvidence(s.store, candidates)
	if err != nil {
		return Result{}, err
	}

	facts, extractResp, err := extractFacts(ctx, s.provider, query, evidence)
	if err != nil {
		return Result{}, err
	}
	cost := brain.EstimateCost(extractResp.Model, extractResp.Usage)

	if len(facts) == 0 {
		if logger != nil {
			logger.Info("no facts extracted, short-circuiting",
				"query_len", len(query), "chunks", len(evidence))
		}
		return Result{
			Answer:     NoInformationFound,
			ChunksUsed: len(evidence),
			Cost:       cost,
		}, nil
	}

	byChunk := make(map[string]Evidence, len(evidence))
	for _, ev := range evidence {
		byChunk[ev.Chunk.ID] = ev
	}

	answer, synthResp, err := s.synthesize(ctx, query, facts, byChunk)
	if err != nil {
		return Result{}, err
	}
	cost += brain.EstimateCost(synthResp.Model, synthResp.Usage)

	result := Result{
		Answer:     answer,
		Citations:  citationsFor(facts, byChunk),
		ChunksUsed: len(evidence),
		Cost:       cost,
	}
	if logger != nil {
		logger.Info("search complete",
			"facts", len(facts),
			"citations", len(result.Citations),
			"chunks_used", result.ChunksUsed,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return result, nil
}

// synthesize runs the second stage over the extracted facts only.
func (s *Searcher) synthesize(ctx context.Context, query string, facts []Fact, byChunk map[string]Evidence) (string, brain.Response, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nFacts:\n\n", query)
	for i, f := range facts {
		citation := "unknown source"
		if ev, ok := byChunk[f.ChunkID]; ok {
			citation = ev.Citation()
		}
		fmt.Fprintf(&sb, "%d. %s [%s]\n", i+1, f.Fact, citation)
	}

	resp, err := s.provider.Generate(ctx, brain.Request{
		SystemPrompt: synthesizeSystemPrompt,
		UserPrompt:   sb.String(),
		MaxTokens:    1024,
		Temperature:  0.1,
	})
	if err != nil {
		return "", brain.Response{}, fmt.Errorf("search: synthesis: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", resp, fmt.Errorf("search: synthesis returned empty content")
	}
	return resp.Content, resp, nil
}

// citationsFor lists the distinct sources the facts draw on, in fact order.
func citationsFor(facts []Fact, byChunk map[string]Evidence) []Citation {
	seen := make(map[string]bool)
	var citations []Citation
	for _, f := range facts {
		if seen[f.ChunkID] {
			continue
		}
		seen[f.ChunkID] = true
		ev, ok := byChunk[f.ChunkID]
		if !ok {
			continue
		}
		citations = append(citations, Citation{
			ChunkID:   ev.Chunk.ID,
			Publisher: ev.Message.Publisher,
			Date:      ev.Message.Received.Format("2006-01-02"),
			Subject:   ev.Message.Subject,
		})
	}
	return citations
}
