package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/inkstream/lettera/internal/store"
)

// rawMessage is the JSON exchange format produced by mail-fetching
// tooling upstream of the pipeline.
type rawMessage struct {
	ID          string    `json:"id"`
	Publisher   string    `json:"publisher"`
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject"`
	Received    time.Time `json:"received"`
	BodyText    string    `json:"body_text"`
	BodyHTML    string    `json:"body_html"`
}

// JSONSource is a Fetcher that reads messages from a JSON stream, the
// handoff format used by external mail-fetching tools. Messages without
// a natural id are rejected up front: without one, ingestion cannot be
// idempotent.
type JSONSource struct {
	r io.Reader
}

// NewJSONSource creates a source over a reader containing a JSON array
// of messages.
func NewJSONSource(r io.Reader) *JSONSource {
	return &JSONSource{r: r}
}

// FetchNewMessages decodes and filters the stream.
func (s *JSONSource) FetchNewMessages(ctx context.Context, filter Filter) ([]store.Message, error) {
	var raw []rawMessage
	if err := json.NewDecoder(s.r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("ingest: decode message stream: %w", err)
	}

	allowed := make(map[string]bool, len(filter.Publishers))
	for _, p := range filter.Publishers {
		allowed[p] = true
	}

	now := time.Now()
	messages := make([]store.Message, 0, len(raw))
	for i, m := range raw {
		if m.ID == "" {
			return nil, fmt.Errorf("ingest: message %d has no id", i)
		}
		if !filter.Since.IsZero() && m.Received.Before(filter.Since) {
			continue
		}
		if len(allowed) > 0 && !allowed[m.Publisher] {
			continue
		}
		messages = append(messages, store.Message{
			ID:          m.ID,
			Publisher:   m.Publisher,
			SenderEmail: m.SenderEmail,
			Subject:     m.Subject,
			Received:    m.Received,
			Fetched:     now,
			BodyText:    m.BodyText,
			BodyHTML:    m.BodyHTML,
		})
	}
	return messages, nil
}
