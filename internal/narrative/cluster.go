package narrative

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

const clusterSystemPrompt = `You group newsletter issues discussing the
same underlying event or storyline into clusters. For each cluster emit:
- title: a short neutral headline
- synthesis: 2-3 sentences summarizing what the sources agree on
- counter_point: one dissenting view if any source disagrees, else omit
- consensus: your overall read, one of "positive", "negative", "neutral"
- sources: every message in the cluster as {"message_id": "...",
  "sentiment": "positive"|"negative"|"neutral"} using the exact ids shown
Respond with JSON: {"clusters": [...]}. A message may appear in at most
one cluster. Leave messages that fit no storyline out entirely.`

// clusterProposal is the model's raw clustering output.
type clusterProposal struct {
	Clusters []struct {
		Title        string `json:"title"`
		Synthesis    string `json:"synthesis"`
		CounterPoint string `json:"counter_point"`
		Consensus    string `json:"consensus"`
		Sources      []struct {
			MessageID string `json:"message_id"`
			Sentiment string `json:"sentiment"`
		} `json:"sources"`
	} `json:"clusters"`
}

// ProposeClusters asks the model to group messages into narrative
// clusters, then recomputes every consensus label by counting. Sources
// pointing at unknown message ids are dropped; a cluster left with no
// valid sources is dropped. An unparseable response degrades to zero
// clusters; a failed generation call is a hard error.
func ProposeClusters(ctx context.Context, provider brain.Provider, messages []store.Message) ([]Cluster, brain.Response, error) {
	if len(messages) == 0 {
		return nil, brain.Response{}, nil
	}

	byID := make(map[string]store.Message, len(messages))
	var sb strings.Builder
	sb.WriteString("Messages:\n\n")
	for _, msg := range messages {
		byID[msg.ID] = msg
		fmt.Fprintf(&sb, "message_id: %s\npublisher: %s\ndate: %s\nsubject: %s\nexcerpt: %s\n\n",
			msg.ID, msg.Publisher, msg.Received.Format("2006-01-02"), msg.Subject, excerpt(msg.BodyText, 600))
	}

	resp, err := provider.Generate(ctx, brain.Request{
		SystemPrompt: clusterSystemPrompt,
		UserPrompt:   sb.String(),
		MaxTokens:    4096,
		Temperature:  0.1,
		JSONMode:     true,
	})
	if err != nil {
		return nil, brain.Response{}, fmt.Errorf("narrative: clustering: %w", err)
	}

	proposal, ok := decodeProposal(resp.Content)
	if !ok {
		logging.Warn("clustering response unparseable, degrading to zero clusters",
			"content_len", len(resp.Content))
		return nil, resp, nil
	}

	var clusters []Cluster
	for _, pc := range proposal.Clusters {
		c := Cluster{
			Title:        pc.Title,
			Synthesis:    pc.Synthesis,
			CounterPoint: pc.CounterPoint,
		}
		for _, src := range pc.Sources {
			msg, known := byID[src.MessageID]
			if !known {
				logging.Debug("cluster source dropped: unknown message id", "message_id", src.MessageID)
				continue
			}
			c.Sources = append(c.Sources, SourceSentiment{
				MessageID: msg.ID,
				Publisher: msg.Publisher,
				Sentiment: ParseSentiment(src.Sentiment),
			})
			c.SourceIDs = append(c.SourceIDs, msg.ID)
		}
		if len(c.SourceIDs) == 0 {
			continue
		}
		ApplyConsensus(&c, ParseSentiment(pc.Consensus))
		clusters = append(clusters, c)
	}
	return clusters, resp, nil
}

func decodeProposal(content string) (clusterProposal, bool) {
	content = strings.TrimSpace(content)
	var proposal clusterProposal
	if err := json.Unmarshal([]byte(content), &proposal); err == nil {
		return proposal, true
	}
	repaired := llmx.RepairJSON(content)
	if err := json.Unmarshal([]byte(repaired), &proposal); err == nil {
		return proposal, true
	}
	return clusterProposal{}, false
}

func excerpt(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
