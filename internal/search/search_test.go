package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkstream/lettera/internal/brain"
	"github.com/inkstream/lettera/internal/config"
	"github.com/inkstream/lettera/internal/store"
)

// fixedEmbedder returns a constant query vector so vector ranking is
// driven entirely by the stored chunk vectors.
type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) Available() bool { return true }
func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}
func (f *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

// scriptedProvider returns canned responses in order and records how
// many generation calls were made.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Name() string    { return "scripted" }
func (p *scriptedProvider) Available() bool { return true }
func (p *scriptedProvider) Generate(ctx context.Context, req brain.Request) (brain.Response, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		return brain.Response{}, nil
	}
	return brain.Response{Content: p.responses[idx], Model: "scripted"}, nil
}

func testCorpus(t *testing.T) (*store.Store, map[string]string) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	msg := store.Message{
		ID:          "m1",
		Publisher:   "Stratechery",
		SenderEmail: "ben@stratechery.com",
		Subject:     "Weekly Update",
		Received:    time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Fetched:     time.Now(),
		BodyText:    "body",
		ContentHash: "h1",
	}
	if _, err := st.SaveMessages([]store.Message{msg}); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	texts := map[string]string{
		"funding": "Acme raised a fresh funding round led by Example Capital to expand internationally.",
		"chips":   "The chip shortage continues to constrain datacenter buildouts across the industry.",
		"hiring":  "Several large labs announced aggressive hiring plans for research engineers this quarter.",
	}
	vectors := map[string][]float32{
		"funding": {1, 0, 0},
		"chips":   {0.8, 0.6, 0},
		"hiring":  {0, 0, 1},
	}

	ids := make(map[string]string)
	index := 0
	for name, text := range texts {
		c := store.Chunk{
			ID:        uuid.NewString(),
			MessageID: "m1",
			Index:     index,
			Start:     0,
			End:       len(text),
			Text:      text,
			CreatedAt: time.Now(),
		}
		index++
		if err := st.SaveChunks([]store.Chunk{c}); err != nil {
			t.Fatalf("SaveChunks failed: %v", err)
		}
		err := st.SaveEmbeddings([]store.Embedding{{ChunkID: c.ID, Model: "test-model", Vector: vectors[name]}})
		if err != nil {
			t.Fatalf("SaveEmbeddings failed: %v", err)
		}
		ids[name] = c.ID
	}
	return st, ids
}

func testRetriever(st *store.Store, queryVector []float32) *Retriever {
	return NewRetriever(st, &fixedEmbedder{vector: queryVector}, "test-model", config.RetrievalConfig{
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		TopK:          10,
	})
}

func TestRetrieveRanksByVectorWhenKeywordsTie(t *testing.T) {
	st, ids := testCorpus(t)
	r := testRetriever(st, []float32{1, 0, 0})

	// No query term appears in any chunk, so keyword scores are all
	// zero and ordering is purely the vector half.
	candidates, err := r.Retrieve(context.Background(), "zzz qqq xxx")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].Chunk.ID != ids["funding"] {
		t.Errorf("top candidate = %q, want funding chunk", candidates[0].Chunk.Text)
	}
	if candidates[1].Chunk.ID != ids["chips"] {
		t.Errorf("second candidate = %q, want chips chunk", candidates[1].Chunk.Text)
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Combined > candidates[i-1].Combined {
			t.Errorf("combined scores not descending at %d", i)
		}
	}
}

func TestRetrieveBlendsKeywordHalf(t *testing.T) {
	st, ids := testCorpus(t)
	// Query vector equidistant from nothing relevant; keywords decide.
	r := testRetriever(st, []float32{0, 0, 1})

	candidates, err := r.Retrieve(context.Background(), "funding round acme")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}

	var funding, hiring *Candidate
	for i := range candidates {
		switch candidates[i].Chunk.ID {
		case ids["funding"]:
			funding = &candidates[i]
		case ids["hiring"]:
			hiring = &candidates[i]
		}
	}
	if funding == nil {
		t.Fatal("funding chunk not retrieved despite keyword matches")
	}
	if funding.KeywordScore != 1 {
		t.Errorf("funding keyword score = %v, want 1 (best match)", funding.KeywordScore)
	}
	if hiring != nil && hiring.KeywordScore != 0 {
		t.Errorf("hiring keyword score = %v, want 0", hiring.KeywordScore)
	}
}

func TestRetrieveDegradesLexicalHalf(t *testing.T) {
	st, ids := testCorpus(t)
	r := testRetriever(st, []float32{1, 0, 0})

	// Nothing tokenizable: the lexical half degrades to empty and the
	// search still returns vector results.
	candidates, err := r.Retrieve(context.Background(), `%% "" ?!`)
	if err != nil {
		t.Fatalf("Retrieve failed on unscorable query: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected vector-only candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.KeywordScore != 0 {
			t.Errorf("keyword score leaked: %+v", c)
		}
	}
	if candidates[0].Chunk.ID != ids["funding"] {
		t.Errorf("vector ordering lost under lexical degradation")
	}
}

func TestSearchShortCircuitsOnZeroFacts(t *testing.T) {
	st, _ := testCorpus(t)
	provider := &scriptedProvider{responses: []string{`{"facts": []}`}}
	s := NewSearcher(st, testRetriever(st, []float32{1, 0, 0}), provider)

	result, err := s.Search(context.Background(), "anything about acme funding")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Answer != NoInformationFound {
		t.Errorf("answer = %q, want the fixed no-information response", result.Answer)
	}
	if provider.calls != 1 {
		t.Errorf("synthesis was invoked: %d generation calls, want 1", provider.calls)
	}
	if len(result.Citations) != 0 {
		t.Errorf("citations on a no-information response: %+v", result.Citations)
	}
}

func TestSearchSynthesizesWithCitations(t *testing.T) {
	st, ids := testCorpus(t)
	provider := &scriptedProvider{responses: []string{
		`{"facts": [{"fact": "Acme raised a funding round", "chunk_id": "` + ids["funding"] + `"}]}`,
		"Acme raised a funding round [Stratechery · 2026-03-10 · Weekly Update].",
	}}
	s := NewSearcher(st, testRetriever(st, []float32{1, 0, 0}), provider)

	result, err := s.Search(context.Background(), "did acme raise funding")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("generation calls = %d, want 2 (extract + synthesize)", provider.calls)
	}
	if !strings.Contains(result.Answer, "Stratechery") {
		t.Errorf("answer lost its citation: %q", result.Answer)
	}
	if len(result.Citations) != 1 {
		t.Fatalf("citations = %+v, want 1", result.Citations)
	}
	c := result.Citations[0]
	if c.ChunkID != ids["funding"] || c.Publisher != "Stratechery" || c.Date != "2026-03-10" {
		t.Errorf("citation = %+v", c)
	}
	if result.ChunksUsed == 0 {
		t.Error("chunks used not reported")
	}
}

func TestSearchDropsUnattributableFacts(t *testing.T) {
	st, ids := testCorpus(t)
	// The model invents a chunk id; that fact must be discarded, leaving
	// zero facts and the short-circuit response.
	provider := &scriptedProvider{responses: []string{
		`{"facts": [{"fact": "invented claim", "chunk_id": "not-a-real-chunk"}]}`,
	}}
	s := NewSearcher(st, testRetriever(st, []float32{1, 0, 0}), provider)

	result, err := s.Search(context.Background(), "acme funding")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Answer != NoInformationFound {
		t.Errorf("fabricated attribution survived: %q", result.Answer)
	}
	_ = ids
}
