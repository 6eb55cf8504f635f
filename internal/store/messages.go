package store

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SaveMessages stores messages, returning the count of new rows inserted.
// Ingestion is idempotent: duplicates by natural id are silently ignored
// via INSERT OR IGNORE, so retries and concurrent runs are safe without
// locks. Thread-safe: acquires write lock.
func (s *Store) SaveMessages(messages []Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(messages) == 0 {
		return 0, nil
	}

	stmt, err := s.db.Prepare(`
		INSERT OR IGNORE INTO messages (
			id, publisher, sender_email, subject, received_at, fetched_at,
			body_text, body_html, content_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, m := range messages {
		result, err := stmt.Exec(
			m.ID,
			m.Publisher,
			m.SenderEmail,
			m.Subject,
			m.Received,
			m.Fetched,
			m.BodyText,
			m.BodyHTML,
			m.ContentHash,
		)
		if err != nil {
			return newCount, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return newCount, err
		}
		if affected > 0 {
			newCount++
		}
	}

	return newCount, nil
}

// HasMessage reports whether a message with the given natural id exists.
// Thread-safe: acquires read lock.
func (s *Store) HasMessage(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow("SELECT 1 FROM messages WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetMessage retrieves a message by natural id.
// Thread-safe: acquires read lock.
func (s *Store) GetMessage(id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := messageSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("store: build message query: %w", err)
	}

	messages, err := s.queryMessages(query, args...)
	if err != nil {
		return Message{}, err
	}
	if len(messages) == 0 {
		return Message{}, fmt.Errorf("store: message %s: %w", id, ErrNotFound)
	}
	return messages[0], nil
}

// MessagesInWindow retrieves messages received within [from, to), newest
// first. Thread-safe: acquires read lock.
func (s *Store) MessagesInWindow(from, to time.Time) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := messageSelect().
		Where(sq.GtOrEq{"received_at": from}).
		Where(sq.Lt{"received_at": to}).
		OrderBy("received_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build window query: %w", err)
	}

	return s.queryMessages(query, args...)
}

// MessageCountByPublisher returns the message count per publisher within
// the window. Used by serendipity selection. Thread-safe: acquires read lock.
func (s *Store) MessageCountByPublisher(from, to time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := sq.Select("publisher", "COUNT(*)").
		From("messages").
		Where(sq.GtOrEq{"received_at": from}).
		Where(sq.Lt{"received_at": to}).
		GroupBy("publisher").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build publisher count query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var publisher string
		var count int
		if err := rows.Scan(&publisher, &count); err != nil {
			return nil, err
		}
		counts[publisher] = count
	}
	return counts, rows.Err()
}

func messageSelect() sq.SelectBuilder {
	return sq.Select(
		"id", "publisher", "sender_email", "subject", "received_at",
		"fetched_at", "body_text", "body_html", "content_hash",
	).From("messages")
}

// queryMessages executes a query and scans results into Messages.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryMessages(query string, args ...any) ([]Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var senderEmail, subject, bodyText, bodyHTML sql.NullString
		err := rows.Scan(
			&m.ID,
			&m.Publisher,
			&senderEmail,
			&subject,
			&m.Received,
			&m.Fetched,
			&bodyText,
			&bodyHTML,
			&m.ContentHash,
		)
		if err != nil {
			return nil, err
		}
		m.SenderEmail = senderEmail.String
		m.Subject = subject.String
		m.BodyText = bodyText.String
		m.BodyHTML = bodyHTML.String
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
