package quality

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/inkstream/lettera/internal/config"
	"github.com/inkstream/lettera/internal/store"
)

func testWeights() config.QualityConfig {
	return config.QualityConfig{
		CitationWeight:   0.30,
		SubscriberWeight: 0.25,
		RecWeight:        0.15,
		RelevanceWeight:  0.20,
		PlatformWeight:   0.05,
		FreshnessWeight:  0.05,
	}
}

func TestIsJunk(t *testing.T) {
	long := strings.Repeat("substantive newsletter analysis. ", 10)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"too short", "short text", true},
		{"real content", long, false},
		{"unsubscribe footer", long + " Unsubscribe from this list.", true},
		{"view in browser", long + " View this email in your browser.", true},
		{"sponsorship", long + " This issue is sponsored by Acme.", true},
		{"copyright footer", long + " Copyright © 2026 Acme Inc.", true},
		{"preferences link", long + " Manage your email preferences here.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsJunk(tt.text, DefaultMinChunkLength); got != tt.want {
				t.Errorf("IsJunk(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestJunkIDs(t *testing.T) {
	long := strings.Repeat("substantive newsletter analysis. ", 10)
	chunks := []store.Chunk{
		{ID: "good", Text: long},
		{ID: "short", Text: "tiny"},
		{ID: "footer", Text: long + " Unsubscribe here."},
	}

	ids := JunkIDs(chunks, DefaultMinChunkLength)
	if len(ids) != 2 {
		t.Fatalf("expected 2 junk ids, got %d: %v", len(ids), ids)
	}
	if ids[0] != "short" || ids[1] != "footer" {
		t.Errorf("wrong junk ids: %v", ids)
	}
}

func TestRecommendationSteps(t *testing.T) {
	tests := []struct {
		count int
		want  float64
	}{
		{0, 0.4}, {1, 0.6}, {2, 0.8}, {3, 1.0}, {7, 1.0},
	}
	for _, tt := range tests {
		if got := recommendationScore(tt.count); got != tt.want {
			t.Errorf("recommendationScore(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestFreshnessSteps(t *testing.T) {
	s := NewScorer(testWeights())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	tests := []struct {
		daysAgo int
		want    float64
	}{
		{1, 1.0}, {7, 1.0}, {20, 0.8}, {60, 0.6}, {150, 0.4}, {300, 0.2}, {400, 0.1},
	}
	for _, tt := range tests {
		last := now.AddDate(0, 0, -tt.daysAgo)
		if got := s.freshnessScore(last); got != tt.want {
			t.Errorf("freshnessScore(%d days ago) = %v, want %v", tt.daysAgo, got, tt.want)
		}
	}

	if got := s.freshnessScore(time.Time{}); got != 0.5 {
		t.Errorf("unknown freshness = %v, want 0.5", got)
	}
}

func TestLogScaling(t *testing.T) {
	if got := logScale(0, citationSaturation); got != 0 {
		t.Errorf("zero citations = %v, want 0", got)
	}
	if got := logScale(citationSaturation, citationSaturation); got != 1 {
		t.Errorf("saturated citations = %v, want 1", got)
	}
	low := logScale(10, citationSaturation)
	high := logScale(100, citationSaturation)
	if !(0 < low && low < high && high < 1) {
		t.Errorf("log scaling not monotone in (0,1): low=%v high=%v", low, high)
	}

	if got := subscriberScore(0); got != 0.5 {
		t.Errorf("unknown subscribers = %v, want neutral 0.5", got)
	}
}

func TestDefaultSignals(t *testing.T) {
	s := NewScorer(testWeights())
	sig := s.ComputeSignals(store.Publisher{Name: "unknown"})

	if sig.Subscribers != 0.5 {
		t.Errorf("subscribers default = %v, want 0.5", sig.Subscribers)
	}
	if sig.Recommendations != 0.4 {
		t.Errorf("recommendations default = %v, want 0.4", sig.Recommendations)
	}
	if sig.Relevance != 0.5 {
		t.Errorf("relevance default = %v, want 0.5", sig.Relevance)
	}
	if sig.Platform != defaultPlatformScore {
		t.Errorf("platform default = %v, want %v", sig.Platform, defaultPlatformScore)
	}
	if sig.Freshness != 0.5 {
		t.Errorf("freshness default = %v, want 0.5", sig.Freshness)
	}
}

func TestScoreBounds(t *testing.T) {
	s := NewScorer(testWeights())

	best := store.Publisher{
		Name:                "best",
		CitationCount:       citationSaturation,
		SubscriberEstimate:  subscriberSaturation,
		RecommendationCount: 5,
		Relevance:           1.0,
		RelevanceKnown:      true,
		Platform:            "substack",
		LastActivity:        time.Now(),
	}
	score := s.Score(best, nil)
	if score < 0 || score > 100 {
		t.Errorf("score %v outside [0,100]", score)
	}
	if score < 90 {
		t.Errorf("strong publisher scored %v, expected near the top", score)
	}

	worst := s.Score(store.Publisher{Name: "worst", LastActivity: time.Now().AddDate(-2, 0, 0)}, nil)
	if worst < 0 || worst > 100 {
		t.Errorf("score %v outside [0,100]", worst)
	}
	if worst >= score {
		t.Errorf("empty publisher (%v) scored at or above a strong one (%v)", worst, score)
	}
}

func TestFullScoreOverride(t *testing.T) {
	s := NewScorer(testWeights())
	p := store.Publisher{Name: "alpha", CitationCount: 500}

	score := s.Score(p, []store.Override{
		{Publisher: "alpha", Signal: "", Value: 95, Reason: "editorial pick", Author: "ops"},
	})
	if score != 95 {
		t.Errorf("full override score = %v, want 95", score)
	}
}

func TestSignalOverride(t *testing.T) {
	s := NewScorer(testWeights())
	p := store.Publisher{Name: "alpha"}

	base := s.Score(p, nil)
	boosted := s.Score(p, []store.Override{
		{Publisher: "alpha", Signal: "citations", Value: 1.0, Reason: "crawler undercounts", Author: "ops"},
	})

	// Citations go from 0 to 1, weighted 0.30, scaled to [0,100].
	wantDelta := 30.0
	if diff := boosted - base; math.Abs(diff-wantDelta) > 1e-9 {
		t.Errorf("signal override delta = %v, want %v", diff, wantDelta)
	}
}

func TestFullOverrideWinsOverSignalOverride(t *testing.T) {
	s := NewScorer(testWeights())
	p := store.Publisher{Name: "alpha"}

	score := s.Score(p, []store.Override{
		{Publisher: "alpha", Signal: "citations", Value: 1.0, Reason: "r", Author: "a"},
		{Publisher: "alpha", Signal: "", Value: 12, Reason: "r", Author: "a"},
	})
	if score != 12 {
		t.Errorf("score = %v, want the full override 12", score)
	}
}
