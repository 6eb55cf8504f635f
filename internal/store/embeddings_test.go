package store

import (
	"testing"
	"time"
)

func saveChunkWithVector(t *testing.T, st *Store, index int, text string, vector []float32) Chunk {
	t.Helper()
	c := testChunk("msg1", index, text)
	if err := st.SaveChunks([]Chunk{c}); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}
	err := st.SaveEmbeddings([]Embedding{{ChunkID: c.ID, Model: "test-model", Vector: vector}})
	if err != nil {
		t.Fatalf("SaveEmbeddings failed: %v", err)
	}
	return c
}

func TestNearestChunksOrdering(t *testing.T) {
	st := openTestStore(t)

	close1 := saveChunkWithVector(t, st, 0, "close match", []float32{1, 0, 0})
	mid := saveChunkWithVector(t, st, 1, "middling match", []float32{0.7, 0.7, 0})
	far := saveChunkWithVector(t, st, 2, "far match", []float32{0, 0, 1})

	hits, err := st.NearestChunks([]float32{1, 0, 0}, "test-model", 3)
	if err != nil {
		t.Fatalf("NearestChunks failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	want := []string{close1.ID, mid.ID, far.ID}
	for i, id := range want {
		if hits[i].Chunk.ID != id {
			t.Errorf("hit %d: got %q, want %q", i, hits[i].Chunk.Text, id)
		}
	}
	if hits[0].Score <= hits[1].Score || hits[1].Score <= hits[2].Score {
		t.Errorf("scores not descending: %v, %v, %v", hits[0].Score, hits[1].Score, hits[2].Score)
	}
}

func TestNearestChunksExcludesJunk(t *testing.T) {
	st := openTestStore(t)

	junk := saveChunkWithVector(t, st, 0, "unsubscribe footer", []float32{1, 0, 0})
	good := saveChunkWithVector(t, st, 1, "real content", []float32{0.9, 0.1, 0})

	if err := st.MarkJunk([]string{junk.ID}); err != nil {
		t.Fatalf("MarkJunk failed: %v", err)
	}

	hits, err := st.NearestChunks([]float32{1, 0, 0}, "test-model", 5)
	if err != nil {
		t.Fatalf("NearestChunks failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != good.ID {
		t.Errorf("expected only the non-junk chunk, got %d hits", len(hits))
	}
}

func TestNearestChunksRespectsK(t *testing.T) {
	st := openTestStore(t)

	for i := 0; i < 5; i++ {
		saveChunkWithVector(t, st, i, "chunk", []float32{float32(i + 1), 1, 0})
	}

	hits, err := st.NearestChunks([]float32{1, 0, 0}, "test-model", 2)
	if err != nil {
		t.Fatalf("NearestChunks failed: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

func TestSaveEmbeddingsKeepsFirstWrite(t *testing.T) {
	st := openTestStore(t)

	c := saveChunkWithVector(t, st, 0, "chunk", []float32{1, 0, 0})

	// A second write for the same (chunk, model) must be ignored.
	err := st.SaveEmbeddings([]Embedding{{ChunkID: c.ID, Model: "test-model", Vector: []float32{0, 1, 0}}})
	if err != nil {
		t.Fatalf("SaveEmbeddings retry failed: %v", err)
	}

	hits, err := st.NearestChunks([]float32{1, 0, 0}, "test-model", 1)
	if err != nil {
		t.Fatalf("NearestChunks failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Score < 0.99 {
		t.Errorf("original vector was overwritten: %v", hits)
	}
}

func TestChunksMissingEmbedding(t *testing.T) {
	st := openTestStore(t)

	embedded := saveChunkWithVector(t, st, 0, "embedded chunk", []float32{1, 0, 0})
	bare := testChunk("msg1", 1, "bare chunk")
	if err := st.SaveChunks([]Chunk{bare}); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}

	missing, err := st.ChunksMissingEmbedding("test-model", 10)
	if err != nil {
		t.Fatalf("ChunksMissingEmbedding failed: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != bare.ID {
		t.Errorf("expected only the bare chunk, got %d", len(missing))
	}
	_ = embedded
}

func TestIndexCoverage(t *testing.T) {
	st := openTestStore(t)

	cov, err := st.IndexCoverage("test-model")
	if err != nil {
		t.Fatalf("IndexCoverage failed: %v", err)
	}
	if cov != 1 {
		t.Errorf("empty corpus coverage = %v, want 1", cov)
	}

	saveChunkWithVector(t, st, 0, "embedded", []float32{1, 0, 0})
	bare := testChunk("msg1", 1, "not embedded")
	if err := st.SaveChunks([]Chunk{bare}); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}

	cov, err = st.IndexCoverage("test-model")
	if err != nil {
		t.Fatalf("IndexCoverage failed: %v", err)
	}
	if cov != 0.5 {
		t.Errorf("coverage = %v, want 0.5", cov)
	}
}

// waitForIndex polls until the background build has populated the cache.
func waitForIndex(t *testing.T, st *Store) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st.idx.mu.RLock()
		done := !st.idx.building && st.idx.vectors != nil
		st.idx.mu.RUnlock()
		if done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("index build did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSaveEmbeddingsInvalidatesIndex(t *testing.T) {
	st := openTestStore(t)

	saveChunkWithVector(t, st, 0, "first chunk", []float32{1, 0, 0})
	st.BuildVectorIndex("test-model")
	waitForIndex(t, st)

	// A write after the build must not be invisible to queries.
	late := saveChunkWithVector(t, st, 1, "late chunk", []float32{0, 1, 0})

	hits, err := st.NearestChunks([]float32{0, 1, 0}, "test-model", 1)
	if err != nil {
		t.Fatalf("NearestChunks failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != late.ID {
		t.Errorf("late embedding not visible after index build: %d hits", len(hits))
	}
}

func TestMarkJunkInvalidatesIndex(t *testing.T) {
	st := openTestStore(t)

	junk := saveChunkWithVector(t, st, 0, "soon to be junk", []float32{1, 0, 0})
	good := saveChunkWithVector(t, st, 1, "real content", []float32{0.9, 0.1, 0})
	st.BuildVectorIndex("test-model")
	waitForIndex(t, st)

	if err := st.MarkJunk([]string{junk.ID}); err != nil {
		t.Fatalf("MarkJunk failed: %v", err)
	}

	// A stale cache would let the junked vector claim the single slot.
	hits, err := st.NearestChunks([]float32{1, 0, 0}, "test-model", 1)
	if err != nil {
		t.Fatalf("NearestChunks failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != good.ID {
		t.Errorf("junked chunk still occupies the result slot: %d hits", len(hits))
	}
}

func TestBuildVectorIndex(t *testing.T) {
	st := openTestStore(t)

	c := saveChunkWithVector(t, st, 0, "indexed chunk", []float32{1, 0, 0})

	st.BuildVectorIndex("test-model")
	waitForIndex(t, st)

	hits, err := st.NearestChunks([]float32{1, 0, 0}, "test-model", 1)
	if err != nil {
		t.Fatalf("NearestChunks failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != c.ID {
		t.Errorf("cached lookup returned %d hits", len(hits))
	}
}
