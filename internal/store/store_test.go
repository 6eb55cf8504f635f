package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testMessage(id, publisher string) Message {
	now := time.Now()
	return Message{
		ID:          id,
		Publisher:   publisher,
		SenderEmail: publisher + "@example.com",
		Subject:     "Weekly roundup",
		Received:    now,
		Fetched:     now,
		BodyText:    "Body for " + id,
		ContentHash: "hash-" + id,
	}
}

func testChunk(messageID string, index int, text string) Chunk {
	return Chunk{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Index:     index,
		Start:     0,
		End:       len(text),
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func TestOpen(t *testing.T) {
	st := openTestStore(t)

	for _, table := range []string{"messages", "chunks", "embeddings", "publishers", "briefings"} {
		var name string
		err := st.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}

func TestSaveMessagesIdempotent(t *testing.T) {
	st := openTestStore(t)

	messages := []Message{testMessage("msg1", "alpha"), testMessage("msg2", "beta")}

	count, err := st.SaveMessages(messages)
	if err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 new messages, got %d", count)
	}

	// Second ingestion of the same natural ids must insert nothing.
	count, err = st.SaveMessages(messages)
	if err != nil {
		t.Fatalf("SaveMessages retry failed: %v", err)
	}
	if count != 0 {
		t.Errorf("retry inserted %d messages, want 0", count)
	}

	stats, err := st.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Messages != 2 {
		t.Errorf("expected 2 stored messages, got %d", stats.Messages)
	}
}

func TestMessagesInWindow(t *testing.T) {
	st := openTestStore(t)

	now := time.Now()
	old := testMessage("old", "alpha")
	old.Received = now.Add(-48 * time.Hour)
	recent := testMessage("recent", "beta")
	recent.Received = now.Add(-1 * time.Hour)

	if _, err := st.SaveMessages([]Message{old, recent}); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	got, err := st.MessagesInWindow(now.Add(-24*time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("MessagesInWindow failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "recent" {
		t.Errorf("expected only the recent message, got %d messages", len(got))
	}
}

func TestGetMessageNotFound(t *testing.T) {
	st := openTestStore(t)

	_, err := st.GetMessage("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveChunksAndQuery(t *testing.T) {
	st := openTestStore(t)

	if _, err := st.SaveMessages([]Message{testMessage("msg1", "alpha")}); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	chunks := []Chunk{
		testChunk("msg1", 0, "first chunk text"),
		testChunk("msg1", 1, "second chunk text"),
	}
	if err := st.SaveChunks(chunks); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}

	got, err := st.ChunksByMessage("msg1")
	if err != nil {
		t.Fatalf("ChunksByMessage failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Errorf("chunks out of index order: %d, %d", got[0].Index, got[1].Index)
	}
}

func TestSaveChunksBisectsOversizedBatch(t *testing.T) {
	st := openTestStore(t)
	st.maxPayload = 100 // force splitting

	var chunks []Chunk
	for i := 0; i < 8; i++ {
		chunks = append(chunks, testChunk("msg1", i, strings.Repeat("x", 60)))
	}

	if err := st.SaveChunks(chunks); err != nil {
		t.Fatalf("SaveChunks failed despite bisection: %v", err)
	}

	got, err := st.ChunksByMessage("msg1")
	if err != nil {
		t.Fatalf("ChunksByMessage failed: %v", err)
	}
	if len(got) != 8 {
		t.Errorf("expected all 8 chunks written, got %d", len(got))
	}
}

func TestSaveChunksPayloadFloorPropagates(t *testing.T) {
	st := openTestStore(t)
	st.maxPayload = 10 // below a single chunk's size

	err := st.SaveChunks([]Chunk{testChunk("msg1", 0, strings.Repeat("x", 60))})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge at split floor, got %v", err)
	}
}

func TestSetBatchFloorStopsBisect(t *testing.T) {
	st := openTestStore(t)
	st.maxPayload = 100

	var chunks []Chunk
	for i := 0; i < 8; i++ {
		chunks = append(chunks, testChunk("msg1", i, strings.Repeat("x", 60)))
	}

	// With the default floor of 1 this input splits down to single rows
	// and succeeds (TestSaveChunksBisectsOversizedBatch). A raised floor
	// must stop the bisect and surface the rejection instead.
	st.SetBatchFloor(4)
	err := st.SaveChunks(chunks)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge at raised floor, got %v", err)
	}

	// Floor values below 1 are ignored.
	st.SetBatchFloor(0)
	if st.minSplit != 4 {
		t.Errorf("floor changed to %d by an invalid value", st.minSplit)
	}
}

func TestMarkJunkExcludesFromNonJunk(t *testing.T) {
	st := openTestStore(t)

	good := testChunk("msg1", 0, "useful content about the topic")
	junk := testChunk("msg1", 1, "unsubscribe here")
	if err := st.SaveChunks([]Chunk{good, junk}); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}

	if err := st.MarkJunk([]string{junk.ID}); err != nil {
		t.Fatalf("MarkJunk failed: %v", err)
	}

	got, err := st.NonJunkChunks(nil)
	if err != nil {
		t.Fatalf("NonJunkChunks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != good.ID {
		t.Errorf("expected only the good chunk, got %d chunks", len(got))
	}
}

func TestReconcileChunksKeepsNewest(t *testing.T) {
	st := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	older := testChunk("msg1", 0, "older copy")
	older.CreatedAt = base
	newer := testChunk("msg1", 0, "newer copy")
	newer.CreatedAt = base.Add(time.Minute)
	single := testChunk("msg1", 1, "only copy")
	single.CreatedAt = base

	if err := st.SaveChunks([]Chunk{older, newer, single}); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}

	deleted, err := st.ReconcileChunks()
	if err != nil {
		t.Fatalf("ReconcileChunks failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 row deleted, got %d", deleted)
	}

	got, err := st.ChunksByMessage("msg1")
	if err != nil {
		t.Fatalf("ChunksByMessage failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 surviving chunks, got %d", len(got))
	}
	if got[0].ID != newer.ID {
		t.Errorf("reconciliation kept %q, want the newest row", got[0].Text)
	}
	// The single-row group must be untouched.
	if got[1].ID != single.ID {
		t.Errorf("single-row group was modified")
	}
}

func TestReconcileChunksNoDuplicates(t *testing.T) {
	st := openTestStore(t)

	for i := 0; i < 3; i++ {
		c := testChunk("msg1", i, fmt.Sprintf("chunk %d", i))
		if err := st.SaveChunks([]Chunk{c}); err != nil {
			t.Fatalf("SaveChunks failed: %v", err)
		}
	}

	deleted, err := st.ReconcileChunks()
	if err != nil {
		t.Fatalf("ReconcileChunks failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("reconciliation deleted %d rows from single-row groups", deleted)
	}
}
