// Package narrative groups sources into topic clusters with a
// falsifiable sentiment label. The model proposes clusters and
// per-source sentiments; the consensus label is computed by counting,
// never taken from the model's claim.
package narrative

// Sentiment is a coarse per-source stance label.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
)

// ParseSentiment normalizes a model-emitted label; anything
// unrecognized counts as neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case Positive, Negative:
		return Sentiment(s)
	default:
		return Neutral
	}
}

// SourceSentiment is one source's contribution to a cluster.
type SourceSentiment struct {
	MessageID string    `json:"message_id"`
	Publisher string    `json:"publisher"`
	Sentiment Sentiment `json:"sentiment"`
}

// Breakdown is the auditable sentiment tally for a cluster. The model's
// claimed consensus is retained alongside the counted one; when they
// disagree the counted value wins and OverrideApplied is set.
type Breakdown struct {
	Positive            int       `json:"positive"`
	Negative            int       `json:"negative"`
	Neutral             int       `json:"neutral"`
	Total               int       `json:"total"`
	ModelConsensus      Sentiment `json:"model_consensus"`
	CalculatedConsensus Sentiment `json:"calculated_consensus"`
	OverrideApplied     bool      `json:"override_applied"`
}

// Cluster is one narrative grouping in a briefing.
type Cluster struct {
	Title              string            `json:"title"`
	Synthesis          string            `json:"synthesis"`
	CounterPoint       string            `json:"counter_point,omitempty"`
	ConsensusSentiment Sentiment         `json:"consensus_sentiment"`
	SentimentBreakdown Breakdown         `json:"sentiment_breakdown"`
	SourceIDs          []string          `json:"source_ids"`
	Sources            []SourceSentiment `json:"sources,omitempty"`
	Grounding          string            `json:"grounding"`
}

// SourceCount returns the number of sources backing the cluster.
func (c Cluster) SourceCount() int {
	return len(c.SourceIDs)
}

// TallyConsensus counts per-source sentiments and returns the majority
// bucket. A tie between leading buckets means there is no consensus,
// which reads as neutral.
func TallyConsensus(sources []SourceSentiment) (Breakdown, Sentiment) {
	var b Breakdown
	for _, s := range sources {
		switch s.Sentiment {
		case Positive:
			b.Positive++
		case Negative:
			b.Negative++
		default:
			b.Neutral++
		}
	}
	b.Total = len(sources)

	calculated := Neutral
	switch {
	case b.Positive > b.Negative && b.Positive > b.Neutral:
		calculated = Positive
	case b.Negative > b.Positive && b.Negative > b.Neutral:
		calculated = Negative
	}
	return b, calculated
}

// ApplyConsensus fills in a cluster's sentiment fields from its sources
// and the model's claimed consensus. The counted value is displayed;
// the claim is kept for audit and flagged when it differs.
func ApplyConsensus(c *Cluster, modelClaim Sentiment) {
	breakdown, calculated := TallyConsensus(c.Sources)
	breakdown.ModelConsensus = modelClaim
	breakdown.CalculatedConsensus = calculated
	breakdown.OverrideApplied = modelClaim != calculated

	c.SentimentBreakdown = breakdown
	c.ConsensusSentiment = calculated
	c.Grounding = GroundingStrength(c.SourceCount())
}

// GroundingStrength maps source count to a display-only strength label.
func GroundingStrength(sourceCount int) string {
	switch {
	case sourceCount >= 4:
		return "strong"
	case sourceCount >= 2:
		return "moderate"
	default:
		return "weak"
	}
}
