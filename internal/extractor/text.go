package extractor

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// pageSource is an in-memory Source.
type pageSource []string

func (p pageSource) NumPages() int { return len(p) }

func (p pageSource) PageText(page int) (string, error) {
	if page < 1 || page > len(p) {
		return "", fmt.Errorf("page %d out of range", page)
	}
	return p[page-1], nil
}

// TextConverter reads UTF-8 plain text and markdown. Form feeds split pages.
type TextConverter struct{}

// Convert implements Converter.
func (TextConverter) Convert(_ context.Context, data []byte) (Source, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("text is not valid utf-8: %w", ErrExtractionFailed)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return pageSource(strings.Split(text, "\f")), nil
}

var blockBoundary = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/li|/tr|/h[1-6]|/blockquote|/pre|hr\s*/?)\s*>`)

// HTMLConverter strips markup and keeps block-level elements on separate lines.
type HTMLConverter struct {
	policy *bluemonday.Policy
}

// NewHTMLConverter builds a converter with a strict sanitizer policy.
func NewHTMLConverter() HTMLConverter {
	return HTMLConverter{policy: bluemonday.StrictPolicy()}
}

// Convert implements Converter.
func (c HTMLConverter) Convert(_ context.Context, data []byte) (Source, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("html is not valid utf-8: %w", ErrExtractionFailed)
	}
	marked := blockBoundary.ReplaceAllStringFunc(string(data), func(tag string) string {
		return tag + "\n"
	})
	stripped := html.UnescapeString(c.policy.Sanitize(marked))
	return pageSource{stripped}, nil
}
