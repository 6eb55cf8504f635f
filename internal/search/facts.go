package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inkstream/lettera/internal/brain"
	"github.com/inkstream/lettera/internal/llmx"
	"github.com/inkstream/lettera/internal/logging"
	"github.com/inkstream/lettera/internal/store"
)

// Fact is one extracted claim attributed to a specific chunk.
type Fact struct {
	Fact    string `json:"fact"`
	ChunkID string `json:"chunk_id"`
}

// Evidence is a retrieved chunk together with its message metadata,
// as presented to the model.
type Evidence struct {
	Chunk   store.Chunk
	Message store.Message
}

// Citation renders the human-readable citation for this evidence:
// publisher · date · subject.
func (e Evidence) Citation() string {
	return fmt.Sprintf("%s · %s · %s",
		e.Message.Publisher,
		e.Message.Received.Format("2006-01-02"),
		e.Message.Subject)
}

const extractSystemPrompt = `You extract facts from newsletter excerpts.
Emit ONLY facts that are directly attributable to one of the numbered
excerpts. Respond with JSON: {"facts": [{"fact": "...", "chunk_id": "..."}]}.
Use the exact chunk_id shown for the excerpt the fact came from. If the
excerpts contain nothing relevant to the question, respond with
{"facts": []}. Do not add facts from your own knowledge.`

// extractFacts runs the extraction stage: the model proposes facts, each
// tied to a chunk id, and anything it cannot attribute is discarded.
// A parse failure gets one repair pass, then degrades to zero facts.
func extractFacts(ctx context.Context, provider brain.Provider, query string, evidence []Evidence) ([]Fact, brain.Response, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nExcerpts:\n\n", query)
	for i, ev := range evidence {
		fmt.Fprintf(&sb, "Excerpt %d (chunk_id: %s, source: %s):\n%s\n\n",
			i+1, ev.Chunk.ID, ev.Citation(), ev.Chunk.Text)
	}

	resp, err := provider.Generate(ctx, brain.Request{
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   sb.String(),
		MaxTokens:    2048,
		Temperature:  0.0,
		JSONMode:     true,
	})
	if err != nil {
		return nil, brain.Response{}, fmt.Errorf("search: fact extraction: %w", err)
	}

	facts := parseFacts(resp.Content)

	// Keep only facts pointing at evidence we actually supplied.
	known := make(map[string]bool, len(evidence))
	for _, ev := range evidence {
		known[ev.Chunk.ID] = true
	}
	valid := facts[:0]
	for _, f := range facts {
		if f.Fact != "" && known[f.ChunkID] {
			valid = append(valid, f)
		}
	}
	return valid, resp, nil
}

// parseFacts decodes the extraction response. On a decode failure it
// makes one repair attempt; if that also fails the result is empty, not
// an error.
func parseFacts(content string) []Fact {
	if facts, ok := decodeFacts(content); ok {
		return facts
	}
	repaired := llmx.RepairJSON(content)
	if facts, ok := decodeFacts(repaired); ok {
		logging.Debug("fact extraction response repaired", "original_len", len(content))
		return facts
	}
	logging.Warn("fact extraction response unparseable, degrading to empty", "content_len", len(content))
	return nil
}

func decodeFacts(content string) ([]Fact, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false
	}

	var wrapped struct {
		Facts []Fact `json:"facts"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && wrapped.Facts != nil {
		return wrapped.Facts, true
	}

	var bare []Fact
	if err := json.Unmarshal([]byte(content), &bare); err == nil {
		return bare, true
	}
	return nil, false
}

// gatherEvidence resolves message metadata for each candidate chunk.
// Messages are fetched once per id.
func gatherEvidence(st *store.Store, candidates []Candidate) ([]Evidence, error) {
	messages := make(map[string]store.Message)
	evidence := make([]Evidence, 0, len(candidates))
	for _, c := range candidates {
		msg, ok := messages[c.Chunk.MessageID]
		if !ok {
			var err error
			msg, err = st.GetMessage(c.Chunk.MessageID)
			if err != nil {
				return nil, fmt.Errorf("search: resolve message %s: %w", c.Chunk.MessageID, err)
			}
			messages[c.Chunk.MessageID] = msg
		}
		evidence = append(evidence, Evidence{Chunk: c.Chunk, Message: msg})
	}
	return evidence, nil
}
