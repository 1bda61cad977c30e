package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBodyPart = "word/document.xml"

// maxDocxBodyBytes bounds decompression of the document body.
const maxDocxBodyBytes = 64 << 20

// DOCXConverter reads paragraph text from Office Open XML documents. Explicit
// page breaks start a new page.
type DOCXConverter struct{}

// Convert implements Converter.
func (DOCXConverter) Convert(ctx context.Context, data []byte) (Source, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %v: %w", err, ErrExtractionFailed)
	}

	var body *zip.File
	for _, f := range archive.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("docx has no %s: %w", docxBodyPart, ErrExtractionFailed)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("open docx body: %v: %w", err, ErrExtractionFailed)
	}
	defer rc.Close()

	pages, err := parseDocxBody(ctx, io.LimitReader(rc, maxDocxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse docx body: %v: %w", err, ErrExtractionFailed)
	}
	return pageSource(pages), nil
}

func parseDocxBody(ctx context.Context, r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)
	var (
		pages  []string
		page   strings.Builder
		inText bool
		tokens int
	)

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		tokens++
		if tokens%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				page.WriteByte(' ')
			case "br", "cr":
				if isPageBreak(el) {
					pages = append(pages, page.String())
					page.Reset()
				} else {
					page.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				page.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				page.Write(el)
			}
		}
	}

	pages = append(pages, page.String())
	return pages, nil
}

func isPageBreak(el xml.StartElement) bool {
	for _, attr := range el.Attr {
		if attr.Name.Local == "type" && attr.Value == "page" {
			return true
		}
	}
	return false
}
