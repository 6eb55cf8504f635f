package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/inkstream/lettera/internal/ingest"
)

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	input := fs.String("input", "-", "JSON message stream ('-' for stdin)")
	since := fs.Duration("since", 0, "Only ingest messages received within this duration (0 = all)")
	publishers := fs.String("publishers", "", "Comma-separated publisher allowlist")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("lettera: open input: %v", err)
		}
		defer f.Close()
		r = f
	}

	filter := ingest.Filter{}
	if *since > 0 {
		filter.Since = time.Now().Add(-*since)
	}
	if *publishers != "" {
		filter.Publishers = strings.Split(*publishers, ",")
	}

	pipeline := ingest.New(
		st,
		ingest.NewJSONSource(r),
		newEmbedder(cfg),
		cfg.Embedding.Model,
		chunkOptions(cfg),
		cfg.Quality.MinChunkLength,
		cfg.Ingest,
	)

	report, err := pipeline.Run(context.Background(), filter)
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}

	fmt.Printf("Fetched:      %d\n", report.Fetched)
	fmt.Printf("New:          %d\n", report.NewMessages)
	fmt.Printf("Skipped:      %d (already ingested)\n", report.Skipped)
	fmt.Printf("Chunks:       %d (%d junk)\n", report.Chunks, report.JunkChunks)
	fmt.Printf("Embedded:     %d\n", report.Embedded)
	if report.Failures > 0 {
		fmt.Printf("Failures:     %d\n", report.Failures)
		for _, e := range report.Errors {
			fmt.Printf("  - %s\n", e)
		}
		os.Exit(1)
	}
}
