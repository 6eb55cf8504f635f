package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/inkstream/lettera/internal/ingest"
)

func runBackfill() {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	pipeline := ingest.New(
		st,
		nil, // no fetch stage for backfill
		newEmbedder(cfg),
		cfg.Embedding.Model,
		chunkOptions(cfg),
		cfg.Quality.MinChunkLength,
		cfg.Ingest,
	)

	embedded, err := pipeline.Backfill(context.Background())
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}
	fmt.Printf("Embedded %d chunks.\n", embedded)

	coverage, err := st.IndexCoverage(cfg.Embedding.Model)
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}
	fmt.Printf("Coverage: %.1f%%\n", coverage*100)
}
