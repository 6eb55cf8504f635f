// Package quality flags junk chunks and scores publishers.
// Junk classification is a pure function: chunks in, junk ids out.
package quality

import (
	"regexp"
	"strings"

	"github.com/inkstream/lettera/internal/store"
)

// DefaultMinChunkLength is the floor below which a chunk carries too
// little signal to be worth embedding.
const DefaultMinChunkLength = 80

// boilerplatePatterns match the footer and promo language newsletters
// repeat in every issue. A chunk dominated by these is navigation, not
// content.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unsubscribe`),
	regexp.MustCompile(`(?i)manage (your )?(email )?preferences`),
	regexp.MustCompile(`(?i)view (this|it|this email) in (your )?browser`),
	regexp.MustCompile(`(?i)read (this )?online`),
	regexp.MustCompile(`(?i)sponsored by`),
	regexp.MustCompile(`(?i)this (issue|newsletter|email) is (brought to you|sponsored)`),
	regexp.MustCompile(`(?i)partner with us`),
	regexp.MustCompile(`(?i)advertise (with|in)`),
	regexp.MustCompile(`(?i)update your (email )?address`),
	regexp.MustCompile(`(?i)forwarded this (email|newsletter)\?`),
	regexp.MustCompile(`(?i)copyright © ?\d{4}`),
	regexp.MustCompile(`(?i)all rights reserved`),
}

// IsJunk reports whether a single chunk should be excluded from
// embedding and retrieval: too short, or boilerplate.
func IsJunk(text string, minLength int) bool {
	if minLength <= 0 {
		minLength = DefaultMinChunkLength
	}
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minLength {
		return true
	}
	for _, p := range boilerplatePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// JunkIDs returns the ids of chunks that fail the junk filter.
func JunkIDs(chunks []store.Chunk, minLength int) []string {
	var ids []string
	for _, c := range chunks {
		if IsJunk(c.Text, minLength) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
