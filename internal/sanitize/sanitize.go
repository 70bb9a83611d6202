// Package sanitize turns generated text into the plain text dating platforms
// accept: markdown and HTML are stripped, entities decoded and blank lines
// collapsed.
package sanitize

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	blockTags  = regexp.MustCompile(`<br\s*/?>|</?p>|</?div>|</?pre>|</?h[1-6]>|</?li>`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

// Policy strips markup from text.
type Policy struct {
	policy   *bluemonday.Policy
	markdown goldmark.Markdown
}

// NewPlainTextPolicy creates a Policy that keeps no markup at all.
func NewPlainTextPolicy() *Policy {
	return &Policy{
		policy:   bluemonday.StrictPolicy(),
		markdown: goldmark.New(),
	}
}

// Text renders markdown to HTML, then strips every tag. Block elements become
// line breaks. On a markdown failure the input is returned trimmed.
func (p *Policy) Text(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(text), &buf); err != nil {
		return strings.TrimSpace(text)
	}

	out := blockTags.ReplaceAllString(buf.String(), "\n")
	out = p.policy.Sanitize(out)
	out = blankLines.ReplaceAllString(out, "\n\n")
	out = html.UnescapeString(out)
	return strings.TrimSpace(out)
}
