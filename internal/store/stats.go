package store

// Stats summarizes pipeline state for the stats subcommand.
type Stats struct {
	Messages   int
	Chunks     int
	JunkChunks int
	Embeddings int
	Publishers int
	Briefings  int
}

// GetStats counts rows across the corpus tables.
// Thread-safe: acquires read lock.
func (s *Store) GetStats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM messages", &st.Messages},
		{"SELECT COUNT(*) FROM chunks", &st.Chunks},
		{"SELECT COUNT(*) FROM chunks WHERE junk = 1", &st.JunkChunks},
		{"SELECT COUNT(*) FROM embeddings", &st.Embeddings},
		{"SELECT COUNT(*) FROM publishers", &st.Publishers},
		{"SELECT COUNT(*) FROM briefings", &st.Briefings},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}
