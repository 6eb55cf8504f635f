package chunk

import (
	"strings"
	"testing"
)

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// reconstruct drops the injected overlap prefix from every piece but the
// first and concatenates the remainder.
func reconstruct(pieces []Piece) string {
	var b strings.Builder
	for i, p := range pieces {
		if i == 0 {
			b.WriteString(p.Text)
			continue
		}
		b.WriteString(p.Text[p.Overlap:])
	}
	return b.String()
}

func TestSplitEmpty(t *testing.T) {
	if got := Split("", DefaultOptions); got != nil {
		t.Errorf("expected no pieces for empty input, got %d", len(got))
	}
	if got := Split("   \n\n  ", DefaultOptions); got != nil {
		t.Errorf("expected no pieces for whitespace input, got %d", len(got))
	}
}

func TestSplitShortInput(t *testing.T) {
	text := "A short newsletter blurb."
	pieces := Split(text, DefaultOptions)
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	p := pieces[0]
	if p.Text != text {
		t.Errorf("short input must stay unsplit: got %q", p.Text)
	}
	if p.Overlap != 0 {
		t.Errorf("short input must have no overlap, got %d", p.Overlap)
	}
	if p.Start != 0 || p.End != len(text) {
		t.Errorf("offsets %d:%d don't cover input of length %d", p.Start, p.End, len(text))
	}
}

func TestSplitParagraphMerging(t *testing.T) {
	para := strings.Repeat("Newsletters keep arriving every week. ", 8) // ~300 chars
	text := strings.Join([]string{para, para, para, para, para, para}, "\n\n")

	pieces := Split(text, DefaultOptions)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces for %d chars, got %d", len(text), len(pieces))
	}

	for i, p := range pieces {
		core := p.End - p.Start
		if core < DefaultOptions.MinSize {
			t.Errorf("piece %d core is %d chars, below minimum %d", i, core, DefaultOptions.MinSize)
		}
		if i > 0 && p.Overlap == 0 {
			t.Errorf("piece %d missing overlap prefix", i)
		}
		if i > 0 && p.Overlap > DefaultOptions.Overlap {
			t.Errorf("piece %d overlap is %d, want <= %d", i, p.Overlap, DefaultOptions.Overlap)
		}
	}
}

func TestSplitReconstruction(t *testing.T) {
	para := strings.Repeat("The roundup covered three acquisitions this week. ", 6)
	long := strings.Repeat("One very long unbroken paragraph keeps going and going with more detail. ", 25)
	text := strings.Join([]string{para, long, para, para}, "\n\n")

	pieces := Split(text, DefaultOptions)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}

	if got, want := stripSpace(reconstruct(pieces)), stripSpace(text); got != want {
		t.Errorf("reconstruction mismatch:\n got %d chars\nwant %d chars", len(got), len(want))
	}
}

func TestSplitOffsetsMapIntoSource(t *testing.T) {
	para := strings.Repeat("Chunk offsets must point back into the source text. ", 6)
	text := strings.Join([]string{para, para, para}, "\n\n")

	for _, p := range Split(text, DefaultOptions) {
		if p.Start < 0 || p.End > len(text) || p.Start >= p.End {
			t.Fatalf("piece %d has invalid offsets %d:%d", p.Index, p.Start, p.End)
		}
		core := text[p.Start:p.End]
		if !strings.HasSuffix(p.Text, core) {
			t.Errorf("piece %d text does not end with its core span", p.Index)
		}
	}
}

func TestSplitOversizedParagraph(t *testing.T) {
	// One paragraph well past 1.5x target forces a sentence re-split.
	text := strings.Repeat("Another sentence lands here with enough words to matter. ", 40)

	pieces := Split(text, DefaultOptions)
	if len(pieces) < 2 {
		t.Fatalf("oversized paragraph should split, got %d pieces", len(pieces))
	}
	for i, p := range pieces {
		if core := p.End - p.Start; core > DefaultOptions.TargetSize*3/2 {
			t.Errorf("piece %d core is %d chars, exceeds 1.5x target", i, core)
		}
	}
}

func TestSplitCustomOptions(t *testing.T) {
	opts := Options{TargetSize: 100, MinSize: 30, Overlap: 10}
	text := strings.Repeat("Short sentences here. ", 30)

	pieces := Split(text, opts)
	if len(pieces) < 3 {
		t.Fatalf("expected several pieces at target 100, got %d", len(pieces))
	}
	for i, p := range pieces[1:] {
		if p.Overlap == 0 || p.Overlap > opts.Overlap {
			t.Errorf("piece %d overlap %d outside (0,%d]", i+1, p.Overlap, opts.Overlap)
		}
	}
}
