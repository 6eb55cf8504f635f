package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/inkstream/lettera/internal/quality"
	"github.com/inkstream/lettera/internal/store"
)

func runScore() {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	overridePublisher := fs.String("override", "", "Record a manual override for this publisher")
	signal := fs.String("signal", "", "Signal to override (empty = full score): citations, subscribers, recommendations, relevance, platform, freshness")
	value := fs.Float64("value", 0, "Override value ([0,100] for full score, [0,1] for a signal)")
	reason := fs.String("reason", "", "Override reason (required with -override)")
	author := fs.String("author", "", "Override author (required with -override)")
	verbose := fs.Bool("v", false, "Print the per-signal breakdown for each publisher")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	if *overridePublisher != "" {
		err := st.SaveOverride(store.Override{
			Publisher: *overridePublisher,
			Signal:    *signal,
			Value:     *value,
			Reason:    *reason,
			Author:    *author,
		})
		if err != nil {
			log.Fatalf("lettera: %v", err)
		}
		fmt.Printf("Override recorded for %s.\n", *overridePublisher)
	}

	publishers, err := st.ListPublishers()
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}
	if len(publishers) == 0 {
		fmt.Println("No publishers to score.")
		return
	}

	scorer := quality.NewScorer(cfg.Quality)
	for _, p := range publishers {
		overrides, err := st.GetOverrides(p.Name)
		if err != nil {
			log.Fatalf("lettera: %v", err)
		}
		score := scorer.Score(p, overrides)
		if err := st.UpdateQualityScore(p.Name, score); err != nil {
			log.Fatalf("lettera: %v", err)
		}
		marker := ""
		if len(overrides) > 0 {
			marker = fmt.Sprintf("  (%d override(s))", len(overrides))
		}
		fmt.Printf("%-35s %6.1f%s\n", p.Name, score, marker)
		if *verbose {
			sig := scorer.ComputeSignals(p)
			fmt.Printf("    citations %.2f  subscribers %.2f  recommendations %.2f  relevance %.2f  platform %.2f  freshness %.2f\n",
				sig.Citations, sig.Subscribers, sig.Recommendations, sig.Relevance, sig.Platform, sig.Freshness)
		}
	}
}
