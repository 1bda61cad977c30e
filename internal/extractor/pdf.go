package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFConverter reads the text layer of PDF documents. Scanned PDFs without a
// text layer fail extraction; OCR is out of scope.
type PDFConverter struct{}

// Convert implements Converter.
func (PDFConverter) Convert(_ context.Context, data []byte) (source Source, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			source = nil
			err = fmt.Errorf("malformed pdf: %v: %w", r, ErrExtractionFailed)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %v: %w", err, ErrExtractionFailed)
	}
	if reader.NumPage() == 0 {
		return nil, fmt.Errorf("pdf has no pages: %w", ErrExtractionFailed)
	}

	return &pdfSource{reader: reader}, nil
}

type pdfSource struct {
	reader *pdf.Reader
}

func (s *pdfSource) NumPages() int {
	return s.reader.NumPage()
}

func (s *pdfSource) PageText(page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("decode page: %v", r)
		}
	}()

	p := s.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}

	rows, err := p.GetTextByRow()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, row := range rows {
		for i, run := range row.Content {
			if i > 0 && needsSpace(row.Content[i-1], run) {
				sb.WriteByte(' ')
			}
			sb.WriteString(run.S)
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// needsSpace infers word breaks from the horizontal gap between glyph runs,
// since many PDFs position words without emitting space characters.
func needsSpace(prev, next pdf.Text) bool {
	if strings.HasSuffix(prev.S, " ") || strings.HasPrefix(next.S, " ") {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	return gap > prev.FontSize*0.15
}
