// Package llmx holds small helpers for handling model output.
package llmx

import (
	"strings"
)

// RepairJSON makes one mechanical repair pass over a malformed model
// response: strip wrapper prose around the outermost JSON value and
// close a truncated array by dropping the partial trailing element.
// It does not validate the result; callers re-attempt decoding.
func RepairJSON(content string) string {
	start := strings.IndexAny(content, "[{")
	if start < 0 {
		return content
	}
	content = content[start:]

	if end := lastBalanced(content); end > 0 {
		return content[:end]
	}

	// Truncated mid-element: cut back to the last complete object and
	// close the enclosing brackets.
	if idx := strings.LastIndex(content, "},"); idx >= 0 {
		trimmed := content[:idx+1]
		if strings.HasPrefix(content, "{") {
			return trimmed + "]}"
		}
		return trimmed + "]"
	}
	return content
}

// lastBalanced returns the index just past the point where the leading
// JSON value's brackets balance, or -1 if they never do. String contents
// are skipped so braces inside text don't miscount.
func lastBalanced(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
