// Package briefing assembles time-windowed rollups into write-once
// snapshots.
package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkstream/lettera/internal/brain"
	"github.com/inkstream/lettera/internal/llmx"
	"github.com/inkstream/lettera/internal/logging"
	"github.com/inkstream/lettera/internal/narrative"
	"github.com/inkstream/lettera/internal/store"
)

const (
	maxSerendipityItems = 3
	maxRadarSignals     = 8
)

// SerendipityItem is a notable message outside the main narratives,
// surfaced because its publisher rarely appears in the corpus.
type SerendipityItem struct {
	MessageID string `json:"message_id"`
	Publisher string `json:"publisher"`
	Subject   string `json:"subject"`
	Reason    string `json:"reason"`
}

// Content is the persisted briefing body.
type Content struct {
	ExecutiveSummary  []string            `json:"executive_summary"`
	NarrativeClusters []narrative.Cluster `json:"narrative_clusters"`
	SerendipityCorner []SerendipityItem   `json:"serendipity_corner"`
	RadarSignals      []string            `json:"radar_signals"`
}

// Assembler builds briefings from the corpus. Every invocation writes a
// fresh snapshot; nothing is ever updated in place.
type Assembler struct {
	store    *store.Store
	provider brain.Provider
	now      func() time.Time
}

// NewAssembler wires an assembler from its injected collaborators.
func NewAssembler(st *store.Store, provider brain.Provider) *Assembler {
	return &Assembler{store: st, provider: provider, now: time.Now}
}

// Generate assembles and persists a briefing over the trailing window.
func (a *Assembler) Generate(ctx context.Context, windowHours int) (store.Briefing, error) {
	logger := logging.WithPrefix("briefing")
	start := a.now()
	if windowHours <= 0 {
		windowHours = 24
	}

	windowEnd := a.now()
	windowStart := windowEnd.Add(-time.Duration(windowHours) * time.Hour)
	messages, err := a.store.MessagesInWindow(windowStart, windowEnd)
	if err != nil {
		return store.Briefing{}, fmt.Errorf("briefing: gather window: %w", err)
	}

	clusters, _, err := narrative.ProposeClusters(ctx, a.provider, messages)
	if err != nil {
		return store.Briefing{}, err
	}

	summary, err := a.executiveSummary(ctx, clusters, len(messages))
	if err != nil {
		return store.Briefing{}, err
	}

	serendipity, err := a.serendipity(messages, clusters)
	if err != nil {
		return store.Briefing{}, err
	}

	previous, err := a.store.MessagesInWindow(windowStart.Add(-time.Duration(windowHours)*time.Hour), windowStart)
	if err != nil {
		return store.Briefing{}, fmt.Errorf("briefing: gather previous window: %w", err)
	}

	content := Content{
		ExecutiveSummary:  summary,
		NarrativeClusters: clusters,
		SerendipityCorner: serendipity,
		RadarSignals:      RadarSignals(messages, previous, maxRadarSignals),
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return store.Briefing{}, fmt.Errorf("briefing: marshal content: %w", err)
	}

	b := store.Briefing{
		ID:           uuid.NewString(),
		GeneratedAt:  a.now(),
		WindowHours:  windowHours,
		MessageCount: len(messages),
		Content:      payload,
	}
	if err := a.store.SaveBriefing(b); err != nil {
		return store.Briefing{}, err
	}

	if logger != nil {
		logger.Info("briefing generated",
			"id", b.ID,
			"window_hours", windowHours,
			"messages", len(messages),
			"clusters", len(clusters),
			"serendipity", len(serendipity),
			"radar", len(content.RadarSignals),
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return b, nil
}

const summarySystemPrompt = `You write the executive summary of a
newsletter briefing. Given narrative clusters, produce 3-5 short bullet
points capturing what matters most. Respond with JSON:
{"executive_summary": ["...", "..."]}. Cover only what the clusters
contain; do not speculate beyond them.`

// executiveSummary asks the model to compress the clusters into a few
// bullets. With nothing to summarize, or on an unparseable response, it
// degrades to cluster titles.
func (a *Assembler) executiveSummary(ctx context.Context, clusters []narrative.Cluster, messageCount int) ([]string, error) {
	if len(clusters) == 0 {
		if messageCount == 0 {
			return []string{"No messages were received in this window."}, nil
		}
		return []string{fmt.Sprintf("%d messages received; no dominant narratives emerged.", messageCount)}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Clusters (%d messages total):\n\n", messageCount)
	for i, c := range clusters {
		fmt.Fprintf(&sb, "%d. %s [%s, %d sources, %s grounding]\n%s\n\n",
			i+1, c.Title, c.ConsensusSentiment, c.SourceCount(), c.Grounding, c.Synthesis)
	}

	resp, err := a.provider.Generate(ctx, brain.Request{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   sb.String(),
		MaxTokens:    1024,
		Temperature:  0.2,
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("briefing: executive summary: %w", err)
	}

	var parsed struct {
		ExecutiveSummary []string `json:"executive_summary"`
	}
	content := strings.TrimSpace(resp.Content)
	if json.Unmarshal([]byte(content), &parsed) != nil {
		if json.Unmarshal([]byte(llmx.RepairJSON(content)), &parsed) != nil {
			logging.Warn("executive summary unparseable, falling back to cluster titles")
			parsed.ExecutiveSummary = nil
		}
	}
	if len(parsed.ExecutiveSummary) == 0 {
		for _, c := range clusters {
			parsed.ExecutiveSummary = append(parsed.ExecutiveSummary, c.Title)
		}
	}
	return parsed.ExecutiveSummary, nil
}

// serendipity picks messages outside every cluster whose publishers
// rarely appear in the corpus: the quiet voices most easily drowned out
// by the big narratives.
func (a *Assembler) serendipity(messages []store.Message, clusters []narrative.Cluster) ([]SerendipityItem, error) {
	clustered := make(map[string]bool)
	for _, c := range clusters {
		for _, id := range c.SourceIDs {
			clustered[id] = true
		}
	}

	var outside []store.Message
	for _, msg := range messages {
		if !clustered[msg.ID] {
			outside = append(outside, msg)
		}
	}
	if len(outside) == 0 {
		return nil, nil
	}

	counts, err := a.store.MessageCountByPublisher(time.Time{}, a.now())
	if err != nil {
		return nil, fmt.Errorf("briefing: publisher counts: %w", err)
	}

	sort.SliceStable(outside, func(i, j int) bool {
		return counts[outside[i].Publisher] < counts[outside[j].Publisher]
	})
	if len(outside) > maxSerendipityItems {
		outside = outside[:maxSerendipityItems]
	}

	items := make([]SerendipityItem, len(outside))
	for i, msg := range outside {
		items[i] = SerendipityItem{
			MessageID: msg.ID,
			Publisher: msg.Publisher,
			Subject:   msg.Subject,
			Reason:    fmt.Sprintf("rare publisher (%d messages in corpus)", counts[msg.Publisher]),
		}
	}
	return items, nil
}

// Get retrieves a briefing by id, or the most recent one for "latest".
func (a *Assembler) Get(id string) (store.Briefing, error) {
	if id == "latest" || id == "" {
		return a.store.LatestBriefing()
	}
	return a.store.GetBriefing(id)
}

// ListArchive retrieves briefing summaries, newest first.
func (a *Assembler) ListArchive(limit int) ([]store.BriefingSummary, error) {
	return a.store.ListBriefings(limit)
}

// ParseContent decodes a stored briefing body.
func ParseContent(b store.Briefing) (Content, error) {
	var content Content
	if err := json.Unmarshal(b.Content, &content); err != nil {
		return Content{}, fmt.Errorf("briefing: decode %s: %w", b.ID, err)
	}
	return content, nil
}
