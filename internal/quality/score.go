package quality

import (
	"math"
	"time"

	"github.com/inkstream/lettera/internal/config"
	"github.com/inkstream/lettera/internal/store"
)

// Saturation points for the logarithmic signals. A publisher at or above
// these counts scores 1.0 on that signal.
const (
	citationSaturation   = 1000
	subscriberSaturation = 100000
)

// platformReliability maps platform identifiers to a reliability prior.
// Unknown platforms get 0.7.
var platformReliability = map[string]float64{
	"substack":    0.9,
	"beehiiv":     0.85,
	"ghost":       0.85,
	"buttondown":  0.8,
	"mailchimp":   0.75,
	"convertkit":  0.75,
	"self-hosted": 0.6,
}

const defaultPlatformScore = 0.7

// Signals holds the six normalized signal values, each in [0,1].
type Signals struct {
	Citations       float64
	Subscribers     float64
	Recommendations float64
	Relevance       float64
	Platform        float64
	Freshness       float64
}

// Scorer computes composite publisher quality scores. Weights come from
// configuration and the defaults sum to 1.
type Scorer struct {
	weights config.QualityConfig
	now     func() time.Time
}

// NewScorer builds a scorer with the given weights.
func NewScorer(weights config.QualityConfig) *Scorer {
	return &Scorer{weights: weights, now: time.Now}
}

// ComputeSignals normalizes a publisher's raw signal values to [0,1].
func (s *Scorer) ComputeSignals(p store.Publisher) Signals {
	return Signals{
		Citations:       logScale(p.CitationCount, citationSaturation),
		Subscribers:     subscriberScore(p.SubscriberEstimate),
		Recommendations: recommendationScore(p.RecommendationCount),
		Relevance:       relevanceScore(p),
		Platform:        platformScore(p.Platform),
		Freshness:       s.freshnessScore(p.LastActivity),
	}
}

// Score computes the composite quality score in [0,100], applying any
// manual overrides. An override with an empty signal name replaces the
// whole composite; a named-signal override replaces that signal before
// the weighted combination.
func (s *Scorer) Score(p store.Publisher, overrides []store.Override) float64 {
	for _, o := range overrides {
		if o.Signal == "" {
			return clamp(o.Value, 0, 100)
		}
	}

	sig := s.ComputeSignals(p)
	for _, o := range overrides {
		v := clamp(o.Value, 0, 1)
		switch o.Signal {
		case "citations":
			sig.Citations = v
		case "subscribers":
			sig.Subscribers = v
		case "recommendations":
			sig.Recommendations = v
		case "relevance":
			sig.Relevance = v
		case "platform":
			sig.Platform = v
		case "freshness":
			sig.Freshness = v
		}
	}

	composite := s.weights.CitationWeight*sig.Citations +
		s.weights.SubscriberWeight*sig.Subscribers +
		s.weights.RecWeight*sig.Recommendations +
		s.weights.RelevanceWeight*sig.Relevance +
		s.weights.PlatformWeight*sig.Platform +
		s.weights.FreshnessWeight*sig.Freshness

	return clamp(composite*100, 0, 100)
}

// logScale maps a count to [0,1] logarithmically, saturating at the
// given ceiling.
func logScale(count, saturation int) float64 {
	if count <= 0 {
		return 0
	}
	score := math.Log1p(float64(count)) / math.Log1p(float64(saturation))
	return clamp(score, 0, 1)
}

// subscriberScore is log-scaled like citations but defaults to the
// neutral 0.5 when the estimate is unknown (zero).
func subscriberScore(estimate int) float64 {
	if estimate <= 0 {
		return 0.5
	}
	return logScale(estimate, subscriberSaturation)
}

// recommendationScore is a step function: being recommended at all
// matters more than being recommended often.
func recommendationScore(count int) float64 {
	switch {
	case count >= 3:
		return 1.0
	case count == 2:
		return 0.8
	case count == 1:
		return 0.6
	default:
		return 0.4
	}
}

func relevanceScore(p store.Publisher) float64 {
	if !p.RelevanceKnown {
		return 0.5
	}
	return clamp(p.Relevance, 0, 1)
}

func platformScore(platform string) float64 {
	if score, ok := platformReliability[platform]; ok {
		return score
	}
	return defaultPlatformScore
}

// freshnessScore steps down with days since last activity. Unknown
// activity gets the neutral 0.5.
func (s *Scorer) freshnessScore(lastActivity time.Time) float64 {
	if lastActivity.IsZero() {
		return 0.5
	}
	days := s.now().Sub(lastActivity).Hours() / 24
	switch {
	case days <= 7:
		return 1.0
	case days <= 30:
		return 0.8
	case days <= 90:
		return 0.6
	case days <= 180:
		return 0.4
	case days <= 365:
		return 0.2
	default:
		return 0.1
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
