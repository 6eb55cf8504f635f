package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/inkstream/lettera/internal/briefing"
	"github.com/inkstream/lettera/internal/store"
)

func runArchive() {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of archive entries to list")
	show := fs.String("show", "", "Show one briefing by id (or 'latest')")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	if *show != "" {
		var (
			b   store.Briefing
			err error
		)
		if *show == "latest" {
			b, err = st.LatestBriefing()
		} else {
			b, err = st.GetBriefing(*show)
		}
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "lettera: briefing %q not found\n", *show)
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("lettera: %v", err)
		}
		fmt.Printf("Briefing %s (%s, %dh window, %d messages)\n\n",
			b.ID, b.GeneratedAt.Format("2006-01-02 15:04"), b.WindowHours, b.MessageCount)
		printBriefing(b)
		return
	}

	summaries, err := st.ListBriefings(*limit)
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No briefings yet. Run 'lettera briefing' to generate one.")
		return
	}
	for _, s := range summaries {
		fmt.Printf("%s  %s  %3dh  %4d messages\n",
			s.ID, s.GeneratedAt.Format("2006-01-02 15:04"), s.WindowHours, s.MessageCount)
	}
}

// printBriefing renders a stored briefing body for the terminal.
func printBriefing(b store.Briefing) {
	content, err := briefing.ParseContent(b)
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}

	fmt.Println("Executive summary:")
	for _, line := range content.ExecutiveSummary {
		fmt.Printf("  • %s\n", line)
	}

	for _, c := range content.NarrativeClusters {
		fmt.Printf("\n%s [%s, %s grounding]\n", c.Title, c.ConsensusSentiment, c.Grounding)
		fmt.Printf("  %s\n", c.Synthesis)
		if c.CounterPoint != "" {
			fmt.Printf("  Counter-point: %s\n", c.CounterPoint)
		}
		bd := c.SentimentBreakdown
		fmt.Printf("  Sentiment: +%d / -%d / =%d across %d sources",
			bd.Positive, bd.Negative, bd.Neutral, bd.Total)
		if bd.OverrideApplied {
			fmt.Printf(" (model claimed %q, counted %q)", bd.ModelConsensus, bd.CalculatedConsensus)
		}
		fmt.Println()
	}

	if len(content.SerendipityCorner) > 0 {
		fmt.Println("\nSerendipity corner:")
		for _, item := range content.SerendipityCorner {
			fmt.Printf("  • %s — %s (%s)\n", item.Publisher, item.Subject, item.Reason)
		}
	}
	if len(content.RadarSignals) > 0 {
		fmt.Println("\nRadar signals:")
		for _, term := range content.RadarSignals {
			fmt.Printf("  ↑ %s\n", term)
		}
	}
}
