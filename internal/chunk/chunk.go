// Package chunk splits normalized message text into overlapping,
// size-bounded pieces for embedding and retrieval.
//
// Splitting prefers paragraph boundaries: paragraphs are merged greedily
// until the next would push a piece past the target size. A single
// paragraph more than 1.5x the target is re-split at sentence boundaries.
// The trailing overlap window of each piece is prepended to the next so
// retrieval keeps cross-boundary context.
package chunk

import (
	"regexp"
	"strings"
)

// Options control chunk sizing. Zero values fall back to defaults.
type Options struct {
	TargetSize int // preferred piece size in chars
	MinSize    int // pieces below this are merged into their neighbor
	Overlap    int // trailing chars carried into the next piece
}

// DefaultOptions are the tuning used in production.
var DefaultOptions = Options{
	TargetSize: 800,
	MinSize:    200,
	Overlap:    100,
}

// Piece is one chunk of a message. Start/End are offsets of the core span
// in the normalized source text; Text is that span with the overlap prefix
// from the previous piece prepended (empty prefix on the first piece).
type Piece struct {
	Index   int
	Start   int
	End     int
	Text    string
	Overlap int // length of the injected prefix, 0 for the first piece
}

func (o Options) withDefaults() Options {
	if o.TargetSize <= 0 {
		o.TargetSize = DefaultOptions.TargetSize
	}
	if o.MinSize <= 0 {
		o.MinSize = DefaultOptions.MinSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.MinSize {
		o.Overlap = DefaultOptions.Overlap
	}
	return o
}

// span is a half-open [start,end) range in the source text.
type span struct {
	start, end int
}

func (s span) size() int { return s.end - s.start }

var (
	paragraphGap = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd  = regexp.MustCompile(`[.!?]["')\]]?(\s+|$)`)
)

// Split chunks normalized text. Empty input yields no pieces; input shorter
// than MinSize yields a single piece with no overlap applied.
func Split(text string, opts Options) []Piece {
	opts = opts.withDefaults()

	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) < opts.MinSize {
		return []Piece{{Index: 0, Start: 0, End: len(text), Text: text}}
	}

	units := paragraphSpans(text)

	// Oversized paragraphs get re-split at sentence boundaries.
	var refined []span
	for _, u := range units {
		if u.size() > opts.TargetSize*3/2 {
			refined = append(refined, sentenceSpans(text, u)...)
		} else {
			refined = append(refined, u)
		}
	}

	cores := mergeGreedy(refined, opts)
	return applyOverlap(text, cores, opts.Overlap)
}

// paragraphSpans locates paragraph boundaries, keeping offsets into text so
// pieces stay contiguous spans of the source.
func paragraphSpans(text string) []span {
	gaps := paragraphGap.FindAllStringIndex(text, -1)

	var spans []span
	start := 0
	for _, gap := range gaps {
		if gap[0] > start {
			spans = append(spans, span{start, gap[0]})
		}
		start = gap[1]
	}
	if start < len(text) {
		spans = append(spans, span{start, len(text)})
	}
	if len(spans) == 0 {
		spans = []span{{0, len(text)}}
	}
	return spans
}

// sentenceSpans splits one span at sentence terminators.
func sentenceSpans(text string, s span) []span {
	seg := text[s.start:s.end]
	ends := sentenceEnd.FindAllStringIndex(seg, -1)

	var spans []span
	start := 0
	for _, e := range ends {
		spans = append(spans, span{s.start + start, s.start + e[1]})
		start = e[1]
	}
	if start < len(seg) {
		spans = append(spans, span{s.start + start, s.end})
	}
	if len(spans) == 0 {
		return []span{s}
	}
	return spans
}

// mergeGreedy merges adjacent units until the next would exceed the target.
// A trailing core below MinSize is folded into its predecessor so no piece
// ends up undersized.
func mergeGreedy(units []span, opts Options) []span {
	var cores []span
	cur := span{start: -1}

	for _, u := range units {
		if cur.start < 0 {
			cur = u
			continue
		}
		if u.end-cur.start > opts.TargetSize && cur.size() >= opts.MinSize {
			cores = append(cores, cur)
			cur = u
			continue
		}
		cur.end = u.end
	}
	if cur.start >= 0 {
		if cur.size() < opts.MinSize && len(cores) > 0 {
			cores[len(cores)-1].end = cur.end
		} else {
			cores = append(cores, cur)
		}
	}
	return cores
}

// applyOverlap materializes pieces, prepending each piece with the tail of
// the previous core span.
func applyOverlap(text string, cores []span, overlap int) []Piece {
	pieces := make([]Piece, 0, len(cores))
	for i, c := range cores {
		p := Piece{Index: i, Start: c.start, End: c.end}
		core := text[c.start:c.end]
		if i > 0 && overlap > 0 {
			prev := cores[i-1]
			tailStart := prev.end - overlap
			if tailStart < prev.start {
				tailStart = prev.start
			}
			prefix := text[tailStart:prev.end]
			p.Overlap = len(prefix)
			p.Text = prefix + core
		} else {
			p.Text = core
		}
		pieces = append(pieces, p)
	}
	return pieces
}
