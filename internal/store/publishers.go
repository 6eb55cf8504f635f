package store

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Publisher is a canonical sender identity with its aggregated quality
// signals and composite score. Signals are recomputed periodically; manual
// overrides live in their own table so they survive recomputation.
type Publisher struct {
	Name                string
	CitationCount       int
	SubscriberEstimate  int // 0 means unknown
	RecommendationCount int
	Relevance           float64 // externally computed topical relevance
	RelevanceKnown      bool
	Platform            string
	LastActivity        time.Time // zero means unknown
	QualityScore        float64   // composite, [0,100]
	ScoredAt            time.Time
}

// Override is a manual correction to a publisher's score. An empty Signal
// replaces the whole composite; a named signal replaces that signal before
// recombination.
type Override struct {
	Publisher string
	Signal    string // "", "citations", "subscribers", "recommendations", "relevance", "platform", "freshness"
	Value     float64
	Reason    string
	Author    string
	CreatedAt time.Time
}

// UpsertPublisher writes a publisher's signal values, preserving any
// existing quality score until the next recomputation.
// Thread-safe: acquires write lock.
func (s *Store) UpsertPublisher(p Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var relevance any
	if p.RelevanceKnown {
		relevance = p.Relevance
	}
	var lastActivity any
	if !p.LastActivity.IsZero() {
		lastActivity = p.LastActivity
	}

	_, err := s.db.Exec(`
		INSERT INTO publishers (
			name, citation_count, subscriber_estimate, recommendation_count,
			relevance, platform, last_activity_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			citation_count = excluded.citation_count,
			subscriber_estimate = excluded.subscriber_estimate,
			recommendation_count = excluded.recommendation_count,
			relevance = excluded.relevance,
			platform = excluded.platform,
			last_activity_at = excluded.last_activity_at
	`, p.Name, p.CitationCount, p.SubscriberEstimate, p.RecommendationCount,
		relevance, p.Platform, lastActivity)
	return err
}

// TouchPublisher registers a publisher by name and advances its last
// activity timestamp, leaving every other signal alone. The ingest
// pipeline calls this per new message so scoring always has a row to
// work with. Activity never moves backwards.
// Thread-safe: acquires write lock.
func (s *Store) TouchPublisher(name string, activity time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return fmt.Errorf("store: publisher name required")
	}
	var at any
	if !activity.IsZero() {
		at = activity
	}

	_, err := s.db.Exec(`
		INSERT INTO publishers (name, last_activity_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_activity_at = CASE
				WHEN excluded.last_activity_at IS NULL THEN last_activity_at
				WHEN last_activity_at IS NULL THEN excluded.last_activity_at
				WHEN excluded.last_activity_at > last_activity_at THEN excluded.last_activity_at
				ELSE last_activity_at
			END
	`, name, at)
	return err
}

// UpdateQualityScore records a publisher's recomputed composite score.
// Thread-safe: acquires write lock.
func (s *Store) UpdateQualityScore(name string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"UPDATE publishers SET quality_score = ?, scored_at = ? WHERE name = ?",
		score, time.Now(), name,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("store: publisher %s: %w", name, ErrNotFound)
	}
	return nil
}

// GetPublisher retrieves a publisher by canonical name.
// Thread-safe: acquires read lock.
func (s *Store) GetPublisher(name string) (Publisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	publishers, err := s.queryPublishers(publisherSelectSQL+" WHERE name = ?", name)
	if err != nil {
		return Publisher{}, err
	}
	if len(publishers) == 0 {
		return Publisher{}, fmt.Errorf("store: publisher %s: %w", name, ErrNotFound)
	}
	return publishers[0], nil
}

// ListPublishers retrieves all publishers ordered by name.
// Thread-safe: acquires read lock.
func (s *Store) ListPublishers() ([]Publisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPublishers(publisherSelectSQL + " ORDER BY name ASC")
}

// SaveOverride records a manual override, replacing any previous override
// for the same (publisher, signal). Thread-safe: acquires write lock.
func (s *Store) SaveOverride(o Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Reason == "" || o.Author == "" {
		return fmt.Errorf("store: override for %s requires reason and author", o.Publisher)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO publisher_overrides (publisher, signal, value, reason, author, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(publisher, signal) DO UPDATE SET
			value = excluded.value,
			reason = excluded.reason,
			author = excluded.author,
			created_at = excluded.created_at
	`, o.Publisher, o.Signal, o.Value, o.Reason, o.Author, o.CreatedAt)
	return err
}

// GetOverrides retrieves a publisher's manual overrides.
// Thread-safe: acquires read lock.
func (s *Store) GetOverrides(publisher string) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := sq.Select("publisher", "signal", "value", "reason", "author", "created_at").
		From("publisher_overrides").
		Where(sq.Eq{"publisher": publisher}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build override query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.Publisher, &o.Signal, &o.Value, &o.Reason, &o.Author, &o.CreatedAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

const publisherSelectSQL = `
	SELECT name, citation_count, subscriber_estimate, recommendation_count,
		relevance, platform, last_activity_at, quality_score, scored_at
	FROM publishers`

// queryPublishers executes a query and scans results into Publishers.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryPublishers(query string, args ...any) ([]Publisher, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var publishers []Publisher
	for rows.Next() {
		var p Publisher
		var relevance sql.NullFloat64
		var platform sql.NullString
		var lastActivity, scoredAt sql.NullTime
		err := rows.Scan(
			&p.Name, &p.CitationCount, &p.SubscriberEstimate, &p.RecommendationCount,
			&relevance, &platform, &lastActivity, &p.QualityScore, &scoredAt,
		)
		if err != nil {
			return nil, err
		}
		p.Relevance = relevance.Float64
		p.RelevanceKnown = relevance.Valid
		p.Platform = platform.String
		p.LastActivity = lastActivity.Time
		p.ScoredAt = scoredAt.Time
		publishers = append(publishers, p)
	}
	return publishers, rows.Err()
}
