// Package ingest runs the message pipeline: fetch, normalize, chunk,
// idempotent write, junk flagging, batch embedding.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkstream/lettera/internal/backoff"
	"github.com/inkstream/lettera/internal/chunk"
	"github.com/inkstream/lettera/internal/config"
	"github.com/inkstream/lettera/internal/embed"
	"github.com/inkstream/lettera/internal/logging"
	"github.com/inkstream/lettera/internal/normalize"
	"github.com/inkstream/lettera/internal/quality"
	"github.com/inkstream/lettera/internal/store"
)

// Fetcher is the source ingestion adapter. Each returned message carries
// an opaque, stable natural id used as the idempotency key.
type Fetcher interface {
	FetchNewMessages(ctx context.Context, filter Filter) ([]store.Message, error)
}

// Filter narrows what a fetch run retrieves.
type Filter struct {
	Since      time.Time
	Publishers []string
}

// Report aggregates one pipeline run. Per-item failures are isolated and
// counted here; they never abort the run.
type Report struct {
	Fetched     int
	NewMessages int
	Skipped     int // already ingested
	Chunks      int
	JunkChunks  int
	Embedded    int
	Failures    int
	Errors      []string
}

// Pipeline wires the ingestion stages together. Clients are injected;
// the pipeline owns no globals.
type Pipeline struct {
	store    *store.Store
	fetcher  Fetcher
	embedder embed.BatchEmbedder
	model    string
	chunking chunk.Options
	minChunk int
	cfg      config.IngestConfig
}

// New creates a pipeline over the given collaborators.
func New(st *store.Store, fetcher Fetcher, embedder embed.BatchEmbedder, model string, chunking chunk.Options, minChunk int, cfg config.IngestConfig) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 60
	}
	return &Pipeline{
		store:    st,
		fetcher:  fetcher,
		embedder: embedder,
		model:    model,
		chunking: chunking,
		minChunk: minChunk,
		cfg:      cfg,
	}
}

// Run executes one ingestion pass. Safe to retry: message writes are
// keyed by natural id, and already-ingested messages are skipped before
// any chunk is produced.
func (p *Pipeline) Run(ctx context.Context, filter Filter) (Report, error) {
	logger := logging.WithPrefix("ingest")
	start := time.Now()
	var report Report

	messages, err := p.fetcher.FetchNewMessages(ctx, filter)
	if err != nil {
		return report, fmt.Errorf("ingest: fetch: %w", err)
	}
	report.Fetched = len(messages)

	var toEmbed []store.Chunk
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingest: cancelled: %w", err)
		}

		exists, err := p.store.HasMessage(msg.ID)
		if err != nil {
			report.fail(fmt.Sprintf("message %s: existence check: %v", msg.ID, err))
			continue
		}
		if exists {
			report.Skipped++
			continue
		}

		chunks, junkIDs, err := p.processMessage(&msg)
		if err != nil {
			report.fail(fmt.Sprintf("message %s: %v", msg.ID, err))
			continue
		}

		newCount, err := p.store.SaveMessages([]store.Message{msg})
		if err != nil {
			report.fail(fmt.Sprintf("message %s: save: %v", msg.ID, err))
			continue
		}
		if newCount == 0 {
			// Another run inserted it since the existence check. Its
			// chunk set is already owned by that run.
			report.Skipped++
			continue
		}
		report.NewMessages++

		// Register the sender so scoring has a publisher row to recompute.
		if err := p.store.TouchPublisher(msg.Publisher, msg.Received); err != nil {
			logging.Warn("publisher registration failed", "publisher", msg.Publisher, "error", err)
		}

		if err := p.store.SaveChunks(chunks); err != nil {
			report.fail(fmt.Sprintf("message %s: save chunks: %v", msg.ID, err))
			continue
		}
		report.Chunks += len(chunks)

		if len(junkIDs) > 0 {
			if err := p.store.MarkJunk(junkIDs); err != nil {
				report.fail(fmt.Sprintf("message %s: mark junk: %v", msg.ID, err))
			} else {
				report.JunkChunks += len(junkIDs)
			}
		}

		junk := make(map[string]bool, len(junkIDs))
		for _, id := range junkIDs {
			junk[id] = true
		}
		for _, c := range chunks {
			if !junk[c.ID] {
				toEmbed = append(toEmbed, c)
			}
		}
	}

	embedded, failures := p.embedChunks(ctx, toEmbed, &report)
	report.Embedded = embedded
	report.Failures += failures

	if logger != nil {
		logger.Info("pipeline run complete",
			"fetched", report.Fetched,
			"new", report.NewMessages,
			"skipped", report.Skipped,
			"chunks", report.Chunks,
			"junk", report.JunkChunks,
			"embedded", report.Embedded,
			"failures", report.Failures,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return report, nil
}

// processMessage normalizes and chunks one message, returning the chunk
// rows and the ids of chunks flagged as junk.
func (p *Pipeline) processMessage(msg *store.Message) ([]store.Chunk, []string, error) {
	text := normalize.Body(msg.BodyText, msg.BodyHTML)
	if text == "" {
		return nil, nil, fmt.Errorf("empty body after normalization")
	}
	msg.BodyText = text
	if msg.ContentHash == "" {
		sum := sha256.Sum256([]byte(text))
		msg.ContentHash = hex.EncodeToString(sum[:])
	}

	pieces := chunk.Split(text, p.chunking)
	now := time.Now()
	chunks := make([]store.Chunk, 0, len(pieces))
	var junkIDs []string
	for _, piece := range pieces {
		c := store.Chunk{
			ID:        uuid.NewString(),
			MessageID: msg.ID,
			Index:     piece.Index,
			Start:     piece.Start,
			End:       piece.End,
			Overlap:   piece.Overlap,
			Text:      piece.Text,
			CreatedAt: now,
		}
		if quality.IsJunk(piece.Text, p.minChunk) {
			junkIDs = append(junkIDs, c.ID)
		}
		chunks = append(chunks, c)
	}
	return chunks, junkIDs, nil
}

// embedChunks embeds non-junk chunks in bounded batches. Each batch is
// retried on transient failure and capped by a wall-clock budget; a batch
// that still fails is counted and the rest continue.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []store.Chunk, report *Report) (embedded, failures int) {
	if len(chunks) == 0 || p.embedder == nil || !p.embedder.Available() {
		return 0, 0
	}

	budget := time.Duration(p.cfg.TimeoutSecs) * time.Second

	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		var vectors [][]float32
		err := backoff.Retry(ctx, p.cfg.RetryAttempts, nil, func(ctx context.Context) error {
			return backoff.WithTimeout(ctx, budget, func(ctx context.Context) error {
				v, embedErr := p.embedder.EmbedBatch(ctx, texts)
				if embedErr != nil {
					return backoff.Retryable(embedErr)
				}
				vectors = v
				return nil
			})
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("embed batch at %d: %v", start, err))
			failures++
			continue
		}

		rows := make([]store.Embedding, len(batch))
		for i, c := range batch {
			rows[i] = store.Embedding{
				ChunkID: c.ID,
				Model:   p.model,
				Dim:     len(vectors[i]),
				Vector:  vectors[i],
			}
		}
		if err := p.store.SaveEmbeddings(rows); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("save embeddings at %d: %v", start, err))
			failures++
			continue
		}
		embedded += len(batch)
	}
	return embedded, failures
}

// Backfill embeds stored chunks that have no embedding row for the
// pipeline's model, in bounded passes, until none remain or the context
// is cancelled.
func (p *Pipeline) Backfill(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("ingest: backfill cancelled: %w", err)
		}

		missing, err := p.store.ChunksMissingEmbedding(p.model, p.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("ingest: backfill query: %w", err)
		}
		if len(missing) == 0 {
			return total, nil
		}

		var report Report
		embedded, failures := p.embedChunks(ctx, missing, &report)
		total += embedded
		if embedded == 0 {
			if failures > 0 {
				return total, fmt.Errorf("ingest: backfill stalled: %s", report.Errors[0])
			}
			return total, nil
		}
	}
}

func (r *Report) fail(msg string) {
	r.Failures++
	r.Errors = append(r.Errors, msg)
	logging.Warn("pipeline item failed", "error", msg)
}
