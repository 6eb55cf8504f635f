package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/inkstream/lettera/internal/briefing"
)

func runBriefing() {
	fs := flag.NewFlagSet("briefing", flag.ExitOnError)
	window := fs.Int("window", 24, "Time window in hours")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	assembler := briefing.NewAssembler(st, newProvider(cfg))
	b, err := assembler.Generate(context.Background(), *window)
	if err != nil {
		log.Fatalf("lettera: %v", err)
	}

	fmt.Printf("Briefing %s (%dh window, %d messages)\n\n", b.ID, b.WindowHours, b.MessageCount)
	printBriefing(b)
}
