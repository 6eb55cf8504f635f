package briefing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/inkstream/lettera/internal/store"
)

// Radar signals are terms whose frequency in the current window is
// unusually elevated against the previous window of the same length.
// Velocity is computed add-one smoothed so brand-new terms still rank.

const (
	radarMinCount    = 3
	radarMinVelocity = 2.0
)

var radarTokenPattern = regexp.MustCompile(`[\p{L}][\p{L}\p{N}-]{3,}`)

// radarStopwords are common newsletter words that spike for boring
// reasons.
var radarStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "your": true, "about": true, "more": true, "their": true,
	"what": true, "when": true, "which": true, "there": true, "were": true,
	"been": true, "they": true, "than": true, "also": true, "just": true,
	"into": true, "over": true, "after": true, "week": true, "today": true,
	"newsletter": true, "issue": true, "read": true, "like": true,
	"would": true, "could": true, "should": true, "some": true, "most": true,
	"here": true, "very": true, "much": true, "many": true, "other": true,
}

// RadarSignals returns up to limit terms with unusual frequency velocity
// between the previous and current message windows, strongest first.
func RadarSignals(current, previous []store.Message, limit int) []string {
	if limit <= 0 || len(current) == 0 {
		return nil
	}

	currentCounts := termCounts(current)
	previousCounts := termCounts(previous)

	type signal struct {
		term     string
		count    int
		velocity float64
	}
	var signals []signal
	for term, count := range currentCounts {
		if count < radarMinCount {
			continue
		}
		velocity := float64(count+1) / float64(previousCounts[term]+1)
		if velocity < radarMinVelocity {
			continue
		}
		signals = append(signals, signal{term: term, count: count, velocity: velocity})
	}

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].velocity != signals[j].velocity {
			return signals[i].velocity > signals[j].velocity
		}
		if signals[i].count != signals[j].count {
			return signals[i].count > signals[j].count
		}
		return signals[i].term < signals[j].term
	})
	if len(signals) > limit {
		signals = signals[:limit]
	}

	terms := make([]string, len(signals))
	for i, s := range signals {
		terms[i] = s.term
	}
	return terms
}

// termCounts tallies distinct-message term occurrences: a term repeated
// within one message counts once, so a single rambling issue cannot
// fabricate a signal.
func termCounts(messages []store.Message) map[string]int {
	counts := make(map[string]int)
	for _, msg := range messages {
		seen := make(map[string]bool)
		text := strings.ToLower(msg.Subject + " " + msg.BodyText)
		for _, term := range radarTokenPattern.FindAllString(text, -1) {
			if radarStopwords[term] || seen[term] {
				continue
			}
			seen[term] = true
			counts[term]++
		}
	}
	return counts
}
