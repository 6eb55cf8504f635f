package store

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/inkstream/lettera/internal/embed"
)

// indexState holds the in-memory vector cache maintained by the background
// index build. NearestChunks works without it; the cache just avoids
// re-reading every vector blob per query.
type indexState struct {
	mu       sync.RWMutex
	model    string
	vectors  map[string][]float32 // chunk id -> vector
	building bool
	built    time.Time
	gen      int // bumped by invalidation; a superseded build discards its result
}

// SaveEmbeddings stores embedding rows in bounded batches with the same
// bisect-on-oversize behavior as SaveChunks. Existing (chunk, model) rows
// are never overwritten: INSERT OR IGNORE keeps the first write.
// Thread-safe: acquires write lock.
func (s *Store) SaveEmbeddings(embeddings []Embedding) error {
	s.mu.Lock()
	err := s.writeBisected(len(embeddings), func(lo, hi int) error {
		return s.insertEmbeddingBatch(embeddings[lo:hi])
	}, func(lo, hi int) int {
		size := 0
		for _, e := range embeddings[lo:hi] {
			size += 4 * len(e.Vector)
		}
		return size
	})
	s.mu.Unlock()

	if err == nil && len(embeddings) > 0 {
		s.invalidateIndex()
	}
	return err
}

func (s *Store) insertEmbeddingBatch(embeddings []Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO embeddings (chunk_id, model, dim, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range embeddings {
		dim := e.Dim
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("store: embedding for chunk %s has %d dims, model %s expects %d", e.ChunkID, len(e.Vector), e.Model, dim)
		}
		_, err := stmt.Exec(e.ChunkID, e.Model, dim, serializeVector(e.Vector), now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ChunkHit is one nearest-neighbor result.
type ChunkHit struct {
	Chunk Chunk
	Score float32 // cosine similarity to the query vector
}

// NearestChunks is the storage layer's nearest-neighbor primitive: cosine
// similarity over stored vectors for the model, junk chunks excluded,
// top k descending. Uses the background-built cache when available.
// Thread-safe: acquires read lock.
func (s *Store) NearestChunks(vector []float32, model string, k int) ([]ChunkHit, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	vectors, err := s.modelVectors(model)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	type scoredID struct {
		id    string
		score float32
	}
	scored := make([]scoredID, 0, len(vectors))
	for id, v := range vectors {
		scored = append(scored, scoredID{id: id, score: embed.CosineSimilarity(vector, v)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
	if k < len(scored) {
		scored = scored[:k]
	}

	ids := make([]string, len(scored))
	for i, sc := range scored {
		ids[i] = sc.id
	}
	chunks, err := s.GetChunks(ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	hits := make([]ChunkHit, 0, len(scored))
	for _, sc := range scored {
		c, ok := byID[sc.id]
		if !ok || c.Junk {
			continue
		}
		hits = append(hits, ChunkHit{Chunk: c, Score: sc.score})
	}
	return hits, nil
}

// modelVectors returns non-junk chunk vectors for the model, from the
// cache when the background build has finished, otherwise straight from
// the database.
func (s *Store) modelVectors(model string) (map[string][]float32, error) {
	s.idx.mu.RLock()
	if s.idx.model == model && s.idx.vectors != nil {
		vectors := s.idx.vectors
		s.idx.mu.RUnlock()
		return vectors, nil
	}
	s.idx.mu.RUnlock()

	return s.loadVectors(model)
}

func (s *Store) loadVectors(model string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT e.chunk_id, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE e.model = ? AND c.junk = 0
	`, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vectors := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		if v := deserializeVector(blob); v != nil {
			vectors[id] = v
		}
	}
	return vectors, rows.Err()
}

// BuildVectorIndex starts a background load of the model's vectors into
// memory. Fire-and-forget: callers poll IndexCoverage rather than block,
// since a full build over a large corpus can take a while.
func (s *Store) BuildVectorIndex(model string) {
	s.idx.mu.Lock()
	if s.idx.building {
		s.idx.mu.Unlock()
		return
	}
	s.idx.building = true
	gen := s.idx.gen
	s.idx.mu.Unlock()

	go func() {
		vectors, err := s.loadVectors(model)

		s.idx.mu.Lock()
		s.idx.building = false
		// A write landed mid-build; the loaded snapshot is stale.
		if err == nil && gen == s.idx.gen {
			s.idx.model = model
			s.idx.vectors = vectors
			s.idx.built = time.Now()
		}
		s.idx.mu.Unlock()
	}()
}

// invalidateIndex drops the cached vectors so the next query reloads from
// the database. Called after any write that changes the non-junk vector
// set; a long-lived process must never serve a stale cache.
func (s *Store) invalidateIndex() {
	s.idx.mu.Lock()
	s.idx.model = ""
	s.idx.vectors = nil
	s.idx.gen++
	s.idx.mu.Unlock()
}

// IndexCoverage reports the fraction of non-junk chunks that have an
// embedding row for the model, in [0,1]. This is the pollable completion
// signal for background embedding/index work.
// Thread-safe: acquires read lock.
func (s *Store) IndexCoverage(model string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, embedded int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE junk = 0").Scan(&total); err != nil {
		return 0, err
	}
	if total == 0 {
		return 1, nil
	}
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE e.model = ? AND c.junk = 0
	`, model).Scan(&embedded)
	if err != nil {
		return 0, err
	}
	return float64(embedded) / float64(total), nil
}

// serializeVector converts a float32 slice to bytes for storage.
// Little-endian IEEE 754, 4 bytes per float.
func serializeVector(vector []float32) []byte {
	if vector == nil {
		return nil
	}
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		bits := math.Float32bits(v)
		blob[i*4] = byte(bits)
		blob[i*4+1] = byte(bits >> 8)
		blob[i*4+2] = byte(bits >> 16)
		blob[i*4+3] = byte(bits >> 24)
	}
	return blob
}

// deserializeVector converts bytes back to a float32 slice.
func deserializeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := uint32(blob[i*4]) |
			uint32(blob[i*4+1])<<8 |
			uint32(blob[i*4+2])<<16 |
			uint32(blob[i*4+3])<<24
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
