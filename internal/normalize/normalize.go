// Package normalize turns raw newsletter bodies into clean plain text.
// Plaintext bodies are preferred; HTML bodies are stripped down to their
// visible text before chunking.
package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t]+`)
	trailingWS = regexp.MustCompile(`[ \t]+\n`)
)

// Body selects and cleans a message body. Plaintext wins when present;
// otherwise the HTML body is stripped. Returns "" when both are empty.
func Body(text, html string) string {
	if strings.TrimSpace(text) != "" {
		return Text(text)
	}
	if strings.TrimSpace(html) != "" {
		return Text(StripHTML(html))
	}
	return ""
}

// StripHTML extracts visible text from an HTML document. Script, style and
// head content are removed; block elements become paragraph breaks so the
// chunker still sees paragraph boundaries.
func StripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup: fall back to a crude tag strip.
		return tagPattern.ReplaceAllString(html, " ")
	}

	doc.Find("script, style, head, noscript").Remove()

	// Insert breaks after block elements so their text doesn't run together.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, blockquote").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})

	return doc.Text()
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Text normalizes whitespace: CRLF to LF, runs of spaces collapsed, runs of
// blank lines collapsed to one paragraph break, edges trimmed.
func Text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = trailingWS.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
