package extractor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrUnsupportedFormat indicates no converter can read the document type.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtractionFailed indicates the document is corrupt or contains no text.
	ErrExtractionFailed = errors.New("document extraction failed")
)

// Block is one unit of text in reading order.
type Block struct {
	Position int    `json:"position"`
	Page     int    `json:"page"`
	Line     int    `json:"line"`
	Text     string `json:"text"`
}

// Source gives page-level access to a converted document. Implementations may
// decode pages lazily.
type Source interface {
	NumPages() int
	PageText(page int) (string, error)
}

// Converter turns raw document bytes into a Source.
type Converter interface {
	Convert(ctx context.Context, data []byte) (Source, error)
}

// Document is the result of a successful extraction.
type Document struct {
	ContentType string
	source      Source
}

// NumPages returns the number of pages of the underlying document.
func (d *Document) NumPages() int {
	return d.source.NumPages()
}

// Blocks yields the non-empty lines of the document, page by page. Each call
// starts a fresh pass over the source.
func (d *Document) Blocks() iter.Seq2[Block, error] {
	return func(yield func(Block, error) bool) {
		position := 0
		for page := 1; page <= d.source.NumPages(); page++ {
			text, err := d.source.PageText(page)
			if err != nil {
				yield(Block{Page: page}, fmt.Errorf("page %d: %w", page, err))
				return
			}
			line := 0
			for _, raw := range strings.Split(text, "\n") {
				cleaned := strings.Join(strings.Fields(raw), " ")
				if cleaned == "" {
					continue
				}
				line++
				position++
				if !yield(Block{Position: position, Page: page, Line: line, Text: cleaned}, nil) {
					return
				}
			}
		}
	}
}

// Text joins every block with newlines. Page-level failures are returned.
func (d *Document) Text() (string, error) {
	var sb strings.Builder
	for block, err := range d.Blocks() {
		if err != nil {
			return "", err
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(block.Text)
	}
	return sb.String(), nil
}

// Extractor resolves a content type to a converter and validates the output.
type Extractor struct {
	registry *Registry
}

// New builds an extractor over the given registry. A nil registry uses the
// default converters.
func New(registry *Registry) *Extractor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Extractor{registry: registry}
}

// Extract converts data into a Document. The declared content type is trusted
// unless it is empty or generic, in which case the bytes are sniffed.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType string) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document: %w", ErrExtractionFailed)
	}

	resolved := ResolveContentType(data, contentType)
	converter, ok := e.registry.Lookup(resolved)
	if !ok {
		return nil, fmt.Errorf("%s: %w", resolved, ErrUnsupportedFormat)
	}

	source, err := converter.Convert(ctx, data)
	if err != nil {
		if errors.Is(err, ErrExtractionFailed) || errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s: %v: %w", resolved, err, ErrExtractionFailed)
	}

	doc := &Document{ContentType: resolved, source: source}
	if err := ensureText(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// ensureText scans until the first non-empty block so empty documents fail
// without forcing a full decode.
func ensureText(ctx context.Context, doc *Document) error {
	for _, err := range doc.Blocks() {
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrExtractionFailed)
		}
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("no extractable text: %w", ErrExtractionFailed)
}

// ResolveContentType normalizes the declared type, falling back to byte sniffing.
func ResolveContentType(data []byte, declared string) string {
	normalized := normalizeType(declared)
	if normalized == "" || normalized == "application/octet-stream" {
		normalized = normalizeType(mimetype.Detect(data).String())
	}
	return normalized
}

func normalizeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return strings.ToLower(mediaType)
}
