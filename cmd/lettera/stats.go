package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}

	fmt.Printf("Messages:       %d\n", stats.Messages)
	fmt.Printf("Chunks:         %d (%d junk)\n", stats.Chunks, stats.JunkChunks)
	fmt.Printf("Embeddings:     %d\n", stats.Embeddings)
	fmt.Printf("Publishers:     %d\n", stats.Publishers)
	fmt.Printf("Briefings:      %d\n", stats.Briefings)

	coverage, err := st.IndexCoverage(cfg.Embedding.Model)
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}
	fmt.Printf("Coverage:       %.1f%% (%s)\n", coverage*100, cfg.Embedding.Model)

	counts, err := st.MessageCountByPublisher(time.Time{}, time.Now())
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}
	if len(counts) > 0 {
		fmt.Printf("\nPublishers (%d):\n", len(counts))
		for name, count := range counts {
			fmt.Printf("  %-35s %d\n", name, count)
		}
	}
}
