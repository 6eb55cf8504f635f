// Package store provides SQLite persistence for the lettera corpus:
// raw messages, chunks, embeddings, publisher scores and briefings.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound reports a missing row, distinct from a system failure.
	ErrNotFound = errors.New("store: not found")

	// ErrPayloadTooLarge reports a batch write rejected for size. Callers
	// bisect and retry; SaveChunks/SaveEmbeddings do this internally.
	ErrPayloadTooLarge = errors.New("store: payload too large")
)

// defaultMaxPayload bounds the encoded size of one batch write.
const defaultMaxPayload = 1 << 20

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // protects all database operations

	// maxPayload is the batch write size ceiling in bytes.
	maxPayload int
	// minSplit is the bisect floor; a rejected batch at or below this
	// size propagates ErrPayloadTooLarge instead of splitting again.
	minSplit int

	// vector index state, see embeddings.go
	idx indexState
}

// Message is a raw ingested newsletter message. Immutable once written;
// the source id is the idempotency key.
type Message struct {
	ID          string // opaque, stable natural id from the source adapter
	Publisher   string // canonical sender identity
	SenderEmail string
	Subject     string
	Received    time.Time
	Fetched     time.Time
	BodyText    string
	BodyHTML    string
	ContentHash string
}

// Chunk is one bounded span of a message's normalized text. Superseded,
// never edited, on reprocessing.
type Chunk struct {
	ID        string // UUID
	MessageID string
	Index     int
	Start     int // core span offsets into the normalized body
	End       int
	Overlap   int // injected prefix length, 0 for the first chunk
	Text      string
	Junk      bool
	CreatedAt time.Time
}

// Embedding is one vector for one (chunk, model) pair. Created once,
// never overwritten: a model upgrade adds a row under the new model id.
type Embedding struct {
	ChunkID string
	Model   string
	Dim     int
	Vector  []float32
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: enable WAL mode: %w", err)
		}
	}

	s := &Store{
		db:         db,
		maxPayload: defaultMaxPayload,
		minSplit:   1,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		publisher TEXT NOT NULL,
		sender_email TEXT,
		subject TEXT,
		received_at DATETIME NOT NULL,
		fetched_at DATETIME NOT NULL,
		body_text TEXT,
		body_html TEXT,
		content_hash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_publisher ON messages(publisher);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		overlap INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		junk INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_message ON chunks(message_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_junk ON chunks(junk);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT NOT NULL,
		model TEXT NOT NULL,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (chunk_id, model)
	);

	CREATE TABLE IF NOT EXISTS publishers (
		name TEXT PRIMARY KEY,
		citation_count INTEGER NOT NULL DEFAULT 0,
		subscriber_estimate INTEGER NOT NULL DEFAULT 0,
		recommendation_count INTEGER NOT NULL DEFAULT 0,
		relevance REAL,
		platform TEXT,
		last_activity_at DATETIME,
		quality_score REAL NOT NULL DEFAULT 0,
		scored_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS publisher_overrides (
		publisher TEXT NOT NULL,
		signal TEXT NOT NULL DEFAULT '',
		value REAL NOT NULL,
		reason TEXT NOT NULL,
		author TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (publisher, signal)
	);

	CREATE TABLE IF NOT EXISTS briefings (
		id TEXT PRIMARY KEY,
		generated_at DATETIME NOT NULL,
		window_hours INTEGER NOT NULL,
		message_count INTEGER NOT NULL,
		content TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_briefings_generated ON briefings(generated_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// SetBatchFloor sets the bisect floor, in rows, for batched writes. A
// rejected batch at or below the floor propagates ErrPayloadTooLarge
// instead of splitting further. Values below 1 are ignored.
func (s *Store) SetBatchFloor(rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows >= 1 {
		s.minSplit = rows
	}
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
