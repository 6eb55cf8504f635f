package store

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Briefing is one generated rollup snapshot. Write-once: every generation
// gets a fresh id, and rows are never updated in place.
type Briefing struct {
	ID           string
	GeneratedAt  time.Time
	WindowHours  int
	MessageCount int
	Content      []byte // JSON briefing content
}

// BriefingSummary is the archive-listing view of a briefing.
type BriefingSummary struct {
	ID           string
	GeneratedAt  time.Time
	WindowHours  int
	MessageCount int
}

// SaveBriefing persists a new briefing snapshot. Plain INSERT, no upsert:
// colliding with an existing id is an error, not a replacement.
// Thread-safe: acquires write lock.
func (s *Store) SaveBriefing(b Briefing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO briefings (id, generated_at, window_hours, message_count, content)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.GeneratedAt, b.WindowHours, b.MessageCount, string(b.Content))
	if err != nil {
		return fmt.Errorf("store: save briefing %s: %w", b.ID, err)
	}
	return nil
}

// GetBriefing retrieves a briefing by id.
// Thread-safe: acquires read lock.
func (s *Store) GetBriefing(id string) (Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, generated_at, window_hours, message_count, content
		FROM briefings WHERE id = ?
	`, id)
	return scanBriefing(row, id)
}

// LatestBriefing retrieves the most recently generated briefing.
// Thread-safe: acquires read lock.
func (s *Store) LatestBriefing() (Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, generated_at, window_hours, message_count, content
		FROM briefings ORDER BY generated_at DESC, id DESC LIMIT 1
	`)
	return scanBriefing(row, "latest")
}

// ListBriefings retrieves archive summaries, newest first.
// Thread-safe: acquires read lock.
func (s *Store) ListBriefings(limit int) ([]BriefingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	query, args, err := sq.Select("id", "generated_at", "window_hours", "message_count").
		From("briefings").
		OrderBy("generated_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build archive query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []BriefingSummary
	for rows.Next() {
		var b BriefingSummary
		if err := rows.Scan(&b.ID, &b.GeneratedAt, &b.WindowHours, &b.MessageCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, b)
	}
	return summaries, rows.Err()
}

func scanBriefing(row *sql.Row, label string) (Briefing, error) {
	var b Briefing
	var content string
	err := row.Scan(&b.ID, &b.GeneratedAt, &b.WindowHours, &b.MessageCount, &content)
	if err == sql.ErrNoRows {
		return Briefing{}, fmt.Errorf("store: briefing %s: %w", label, ErrNotFound)
	}
	if err != nil {
		return Briefing{}, err
	}
	b.Content = []byte(content)
	return b, nil
}
