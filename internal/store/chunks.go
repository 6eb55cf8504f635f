package store

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// SaveChunks stores chunks in bounded batches. A batch rejected for
// exceeding the payload ceiling is recursively bisected and each half
// retried independently; at or below the minimum split size the rejection
// propagates. Thread-safe: acquires write lock.
func (s *Store) SaveChunks(chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeBisected(len(chunks), func(lo, hi int) error {
		return s.insertChunkBatch(chunks[lo:hi])
	}, func(lo, hi int) int {
		size := 0
		for _, c := range chunks[lo:hi] {
			size += len(c.Text)
		}
		return size
	})
}

// writeBisected runs write over [0,n) in halves whenever the payload
// estimate exceeds the ceiling. Explicit divide-and-conquer with a hard
// floor bounds the recursion depth.
func (s *Store) writeBisected(n int, write func(lo, hi int) error, payload func(lo, hi int) int) error {
	var run func(lo, hi int) error
	run = func(lo, hi int) error {
		if lo >= hi {
			return nil
		}
		if payload(lo, hi) > s.maxPayload {
			if hi-lo <= s.minSplit {
				return fmt.Errorf("store: batch of %d rows at split floor: %w", hi-lo, ErrPayloadTooLarge)
			}
			mid := lo + (hi-lo)/2
			if err := run(lo, mid); err != nil {
				return err
			}
			return run(mid, hi)
		}
		return write(lo, hi)
	}
	return run(0, n)
}

// insertChunkBatch writes one batch inside a transaction.
// Caller must hold s.mu.
func (s *Store) insertChunkBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (
			id, message_id, chunk_index, start_offset, end_offset,
			overlap, text, junk, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.Exec(
			c.ID, c.MessageID, c.Index, c.Start, c.End,
			c.Overlap, c.Text, boolToInt(c.Junk), c.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ChunksByMessage retrieves a message's chunks ordered by index.
// Thread-safe: acquires read lock.
func (s *Store) ChunksByMessage(messageID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := chunkSelect().
		Where(sq.Eq{"message_id": messageID}).
		OrderBy("chunk_index ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build chunk query: %w", err)
	}
	return s.queryChunks(query, args...)
}

// GetChunks retrieves chunks by id. Missing ids are silently absent from
// the result. Thread-safe: acquires read lock.
func (s *Store) GetChunks(ids []string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := chunkSelect().Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build chunk query: %w", err)
	}
	return s.queryChunks(query, args...)
}

// NonJunkChunks retrieves every chunk eligible for retrieval, optionally
// limited to the given message ids. Thread-safe: acquires read lock.
func (s *Store) NonJunkChunks(messageIDs []string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	builder := chunkSelect().Where(sq.Eq{"junk": 0})
	if len(messageIDs) > 0 {
		builder = builder.Where(sq.Eq{"message_id": messageIDs})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build chunk query: %w", err)
	}
	return s.queryChunks(query, args...)
}

// MarkJunk flags the given chunks as junk, excluding them from embedding
// and retrieval. Drops the cached vector index since the non-junk set
// changed. Thread-safe: acquires write lock.
func (s *Store) MarkJunk(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	query, args, err := sq.Update("chunks").
		Set("junk", 1).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("store: build junk update: %w", err)
	}
	_, err = s.db.Exec(query, args...)
	s.mu.Unlock()

	if err == nil {
		s.invalidateIndex()
	}
	return err
}

// ChunksMissingEmbedding retrieves non-junk chunks with no embedding row
// for the given model, up to limit. Thread-safe: acquires read lock.
func (s *Store) ChunksMissingEmbedding(model string, limit int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT c.id, c.message_id, c.chunk_index, c.start_offset, c.end_offset,
			c.overlap, c.text, c.junk, c.created_at
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id AND e.model = ?
		WHERE c.junk = 0 AND e.chunk_id IS NULL
		ORDER BY c.created_at ASC
		LIMIT ?
	`
	return s.queryChunks(query, model, limit)
}

// ReconcileChunks deletes duplicate chunk rows left behind by concurrent
// ingestion runs. For each (message id, chunk index) group with more than
// one row, the most recently created row is kept. The whole run aborts,
// deleting nothing, if a selected group turns out to hold a single row:
// that would mean the candidate query and the delete disagree, and
// proceeding could destroy sole copies.
// Returns the number of rows deleted. Thread-safe: acquires write lock.
func (s *Store) ReconcileChunks() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groupQuery, groupArgs, err := sq.Select("message_id", "chunk_index").
		From("chunks").
		GroupBy("message_id", "chunk_index").
		Having("COUNT(*) > ?", 1).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build reconcile query: %w", err)
	}

	rows, err := s.db.Query(groupQuery, groupArgs...)
	if err != nil {
		return 0, err
	}

	type group struct {
		messageID string
		index     int
	}
	var groups []group
	for rows.Next() {
		var g group
		if err := rows.Scan(&g.messageID, &g.index); err != nil {
			rows.Close()
			return 0, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(groups) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	deleted := 0
	for _, g := range groups {
		ids, err := groupChunkIDs(tx, g.messageID, g.index)
		if err != nil {
			return 0, err
		}
		// Safety invariant: a group with exactly one row must never be a
		// delete candidate. Abort the whole run rather than proceed.
		if len(ids) < 2 {
			return 0, fmt.Errorf("store: reconcile group (%s, %d) has %d row(s); aborting run", g.messageID, g.index, len(ids))
		}

		// ids are ordered newest first; everything after the head goes.
		delQuery, delArgs, err := sq.Delete("chunks").Where(sq.Eq{"id": ids[1:]}).ToSql()
		if err != nil {
			return 0, fmt.Errorf("store: build reconcile delete: %w", err)
		}
		result, err := tx.Exec(delQuery, delArgs...)
		if err != nil {
			return 0, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// groupChunkIDs returns a duplicate group's chunk ids, newest first.
func groupChunkIDs(tx *sql.Tx, messageID string, index int) ([]string, error) {
	rows, err := tx.Query(`
		SELECT id FROM chunks
		WHERE message_id = ? AND chunk_index = ?
		ORDER BY created_at DESC, rowid DESC
	`, messageID, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func chunkSelect() sq.SelectBuilder {
	return sq.Select(
		"id", "message_id", "chunk_index", "start_offset", "end_offset",
		"overlap", "text", "junk", "created_at",
	).From("chunks")
}

// queryChunks executes a query and scans results into Chunks.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryChunks(query string, args ...any) ([]Chunk, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var junk int
		err := rows.Scan(
			&c.ID, &c.MessageID, &c.Index, &c.Start, &c.End,
			&c.Overlap, &c.Text, &junk, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		c.Junk = junk != 0
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}
