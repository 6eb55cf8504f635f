package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/inkstream/lettera/internal/search"
)

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	fs.Parse(os.Args[1:])

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: lettera search <query>")
		os.Exit(1)
	}

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	// Warm the vector cache while the query embedding round-trips; the
	// retriever falls back to reading the database if the build is slow.
	st.BuildVectorIndex(cfg.Embedding.Model)

	retriever := search.NewRetriever(st, newEmbedder(cfg), cfg.Embedding.Model, cfg.Retrieval)
	searcher := search.NewSearcher(st, retriever, newProvider(cfg))

	result, err := searcher.Search(context.Background(), query)
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}

	fmt.Println(result.Answer)
	if len(result.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range result.Citations {
			fmt.Printf("  - %s · %s · %s\n", c.Publisher, c.Date, c.Subject)
		}
	}
	fmt.Printf("\n(%d chunks used", result.ChunksUsed)
	if result.Cost > 0 {
		fmt.Printf(", ~$%.4f", result.Cost)
	}
	fmt.Println(")")
}
