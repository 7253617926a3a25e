// Package render turns a summary into HTML that is safe to display.
//
// Markdown output is always passed through the sanitizer before it leaves
// this package. There is no exported path that returns unsanitized markup.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

// NoHighlight renders without marking any word.
const NoHighlight = -1

const highlightClass = "speaking"

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		// raw HTML is let through here and removed by the policy below
		goldmark.WithRendererOptions(ghtml.WithUnsafe()),
	)
	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("mark")
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("mark")
	return p
}

// Words splits a summary the same way read-aloud offsets are counted.
func Words(summary string) []string {
	return strings.Split(summary, " ")
}

// Render converts summary markdown to sanitized HTML, wrapping the word at
// index highlight in a <mark>. Pass NoHighlight to mark nothing.
func Render(summary string, highlight int) (string, error) {
	if summary == "" {
		return "", nil
	}
	words := Words(summary)
	if highlight >= 0 && highlight < len(words) && words[highlight] != "" {
		words[highlight] = fmt.Sprintf(`<mark class="%s">%s</mark>`, highlightClass, html.EscapeString(words[highlight]))
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(strings.Join(words, " ")), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return Sanitize(buf.String()), nil
}

// Sanitize strips scripts, event handlers and anything else outside the
// user-content policy.
func Sanitize(markup string) string {
	return policy.Sanitize(markup)
}

// WordIndexAt maps a character offset reported by a speech engine to the
// index of the word being spoken. It returns NoHighlight when the offset is
// past the last word.
func WordIndexAt(summary string, charIndex int) int {
	total := 0
	for i, word := range Words(summary) {
		total += len(word) + 1
		if total > charIndex {
			return i
		}
	}
	return NoHighlight
}
