package extractor

import (
	"sort"
	"sync"
)

// Content types understood by the default registry.
const (
	TypePlainText = "text/plain"
	TypeMarkdown  = "text/markdown"
	TypeHTML      = "text/html"
	TypePDF       = "application/pdf"
	TypeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Registry maps normalized content types to converters.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]Converter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{converters: map[string]Converter{}}
}

// DefaultRegistry wires the built-in converters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	text := TextConverter{}
	r.Register(TypePlainText, text)
	r.Register(TypeMarkdown, text)
	r.Register("text/x-markdown", text)
	r.Register(TypeHTML, NewHTMLConverter())
	r.Register(TypePDF, PDFConverter{})
	r.Register(TypeDOCX, DOCXConverter{})
	return r
}

// Register binds a converter to a content type, replacing any previous binding.
func (r *Registry) Register(contentType string, converter Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[normalizeType(contentType)] = converter
}

// Lookup returns the converter for contentType.
func (r *Registry) Lookup(contentType string) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	converter, ok := r.converters[normalizeType(contentType)]
	return converter, ok
}

// ContentTypes lists the registered types in lexical order.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.converters))
	for ct := range r.converters {
		out = append(out, ct)
	}
	sort.Strings(out)
	return out
}
