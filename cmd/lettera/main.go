// Command lettera is the CLI for the newsletter intelligence pipeline.
//
// Usage:
//
//	lettera                    Show help
//	lettera ingest             Ingest messages from a JSON stream
//	lettera search <query>     Citation-grounded search over the corpus
//	lettera briefing           Generate a briefing for a time window
//	lettera archive            List or show stored briefings
//	lettera reconcile          Remove duplicate chunk rows
//	lettera score              Recompute publisher quality scores
//	lettera backfill           Embed chunks missing embeddings
//	lettera stats              Pipeline statistics
package main

import (
	"fmt"
	"os"
)

const usage = `lettera — newsletter intelligence CLI

Usage:
  lettera <command> [flags]

Commands:
  ingest      Ingest messages from a JSON stream (file or stdin)
  search      Citation-grounded search over the corpus
  briefing    Generate a briefing for a time window
  archive     List stored briefings, or show one by id
  reconcile   Remove duplicate chunk rows left by concurrent runs
  score       Recompute publisher quality scores
  backfill    Embed chunks missing embeddings
  stats       Pipeline statistics and coverage

Environment:
  LETTERA_CONFIG   Config file path (YAML)
  LETTERA_DB       Database path override
  OPENAI_API_KEY   OpenAI key (default embedding + generation provider)
  JINA_API_KEY     Jina key (embedding.provider: jina)
  GOOGLE_API_KEY   Gemini key (generate.provider: gemini)

Run 'lettera <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "briefing":
		runBriefing()
	case "archive":
		runArchive()
	case "reconcile":
		runReconcile()
	case "score":
		runScore()
	case "backfill":
		runBackfill()
	case "stats":
		runStats()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "lettera: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
