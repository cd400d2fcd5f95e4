// Package text turns raw, markup-bearing card fields into the canonical text
// that is spoken and fingerprinted.
package text

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/book-expert/anki-speech/internal/core"
)

// Regex patterns for card markup that is not HTML.
const (
	soundTagRegexPattern = `\[sound:[^\]]*\]`
	clozeRegexPattern    = `\{\{c\d+::(.*?)(?:::[^}]*)?\}\}`
)

// Elements whose boundaries separate words even without surrounding spaces.
var blockElements = map[string]struct{}{
	"br": {}, "p": {}, "div": {}, "li": {}, "ul": {}, "ol": {},
	"tr": {}, "td": {}, "th": {}, "h1": {}, "h2": {}, "h3": {},
	"h4": {}, "h5": {}, "h6": {}, "hr": {}, "blockquote": {},
}

// Elements whose content is never spoken.
var skippedElements = map[string]struct{}{
	"script": {}, "style": {}, "head": {}, "title": {},
}

// Normalizer strips markup and collapses whitespace.
type Normalizer struct {
	soundTagPattern *regexp.Regexp
	clozePattern    *regexp.Regexp
}

// NewNormalizer creates a normalizer with its patterns compiled upfront.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		soundTagPattern: regexp.MustCompile(soundTagRegexPattern),
		clozePattern:    regexp.MustCompile(clozeRegexPattern),
	}
}

// Normalize returns the canonical spoken form of raw field text: tags
// removed, entities decoded, whitespace trimmed and collapsed.
func (n *Normalizer) Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	stripped := n.stripMarkup(raw)
	stripped = n.soundTagPattern.ReplaceAllString(stripped, " ")
	stripped = n.clozePattern.ReplaceAllString(stripped, "$1")

	return strings.Join(strings.Fields(stripped), " ")
}

// SpokenText returns the first candidate field of unit with non-empty
// canonical text, or ErrNoContent.
func (n *Normalizer) SpokenText(unit core.ContentUnit, candidates []string) (string, error) {
	for _, field := range candidates {
		spoken := n.Normalize(unit.Field(field))
		if spoken != "" {
			return spoken, nil
		}
	}

	return "", core.ErrNoContent
}

func (n *Normalizer) stripMarkup(raw string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(raw))

	var (
		builder   strings.Builder
		skipDepth int
	)

	for {
		tokenType := tokenizer.Next()

		switch tokenType {
		case html.ErrorToken:
			// io.EOF is the only error a strings.Reader can produce.
			return builder.String()
		case html.TextToken:
			if skipDepth == 0 {
				builder.Write(tokenizer.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)

			if _, skip := skippedElements[tag]; skip && tokenType == html.StartTagToken {
				skipDepth++
			}

			if _, block := blockElements[tag]; block {
				builder.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)

			if _, skip := skippedElements[tag]; skip && skipDepth > 0 {
				skipDepth--
			}

			if _, block := blockElements[tag]; block {
				builder.WriteByte(' ')
			}
		case html.CommentToken, html.DoctypeToken:
		}
	}
}
