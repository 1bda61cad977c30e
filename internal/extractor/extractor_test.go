package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, doc *Document) []Block {
	t.Helper()
	var blocks []Block
	for block, err := range doc.Blocks() {
		require.NoError(t, err)
		blocks = append(blocks, block)
	}
	return blocks
}

func TestExtractPlainTextBlocksCarryPositionAndPage(t *testing.T) {
	ex := New(nil)
	data := []byte("1) What is TCP?\r\n\r\n   A reliable   stream.\f2) Define UDP\n")

	doc, err := ex.Extract(context.Background(), data, "text/plain; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, TypePlainText, doc.ContentType)
	require.Equal(t, 2, doc.NumPages())

	blocks := collect(t, doc)
	require.Equal(t, []Block{
		{Position: 1, Page: 1, Line: 1, Text: "1) What is TCP?"},
		{Position: 2, Page: 1, Line: 2, Text: "A reliable stream."},
		{Position: 3, Page: 2, Line: 1, Text: "2) Define UDP"},
	}, blocks)
}

func TestBlocksIsRestartable(t *testing.T) {
	doc, err := New(nil).Extract(context.Background(), []byte("one\ntwo\nthree"), TypePlainText)
	require.NoError(t, err)

	first := collect(t, doc)
	second := collect(t, doc)
	require.Equal(t, first, second)

	// stopping early must not affect the next pass
	for block := range doc.Blocks() {
		require.Equal(t, "one", block.Text)
		break
	}
	require.Len(t, collect(t, doc), 3)

	text, err := doc.Text()
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\nthree", text)
}

func TestExtractHTMLKeepsBlockBoundaries(t *testing.T) {
	html := `<html><body><h1>Exam</h1><p>1) What is <b>TCP</b>?</p><p>Reliable &amp; ordered</p><script>alert(1)</script></body></html>`

	doc, err := New(nil).Extract(context.Background(), []byte(html), TypeHTML)
	require.NoError(t, err)

	var texts []string
	for _, block := range collect(t, doc) {
		texts = append(texts, block.Text)
	}
	require.Equal(t, []string{"Exam", "1) What is TCP?", "Reliable & ordered"}, texts)
}

func TestExtractDOCXParagraphsAndPageBreaks(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>1) What is </w:t></w:r><w:r><w:t>TCP?</w:t></w:r></w:p>
<w:p><w:r><w:t>Reliable stream</w:t></w:r></w:p>
<w:p><w:r><w:br w:type="page"/></w:r></w:p>
<w:p><w:r><w:t>2) Define UDP</w:t></w:r></w:p>
</w:body>
</w:document>`

	doc, err := New(nil).Extract(context.Background(), buildDocx(t, body), TypeDOCX)
	require.NoError(t, err)
	require.Equal(t, 2, doc.NumPages())

	blocks := collect(t, doc)
	require.Len(t, blocks, 3)
	require.Equal(t, "1) What is TCP?", blocks[0].Text)
	require.Equal(t, "Reliable stream", blocks[1].Text)
	require.Equal(t, Block{Position: 3, Page: 2, Line: 1, Text: "2) Define UDP"}, blocks[2])
}

func TestExtractDOCXWithoutBodyFails(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = New(nil).Extract(context.Background(), buf.Bytes(), TypeDOCX)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), []byte("GIF89a....."), "image/gif")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractSniffsGenericContentType(t *testing.T) {
	doc, err := New(nil).Extract(context.Background(), []byte("1) plain answer text\n"), "application/octet-stream")
	require.NoError(t, err)
	require.Equal(t, TypePlainText, doc.ContentType)
}

func TestExtractEmptyOrBlankDocumentFails(t *testing.T) {
	ex := New(nil)

	_, err := ex.Extract(context.Background(), nil, TypePlainText)
	require.ErrorIs(t, err, ErrExtractionFailed)

	_, err = ex.Extract(context.Background(), []byte("   \n\t\n\f  "), TypePlainText)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractInvalidUTF8Fails(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), []byte{0xff, 0xfe, 0xfd}, TypePlainText)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractCorruptPDFFails(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), []byte("%PDF-1.4 garbage"), TypePDF)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

type failingConverter struct{ err error }

func (c failingConverter) Convert(context.Context, []byte) (Source, error) {
	return nil, c.err
}

func TestExtractWrapsConverterErrors(t *testing.T) {
	registry := NewRegistry()
	registry.Register("text/x-custom", failingConverter{err: errors.New("boom")})

	_, err := New(registry).Extract(context.Background(), []byte("data"), "text/x-custom")
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractReturnsContextErrorOnCancellation(t *testing.T) {
	registry := NewRegistry()
	registry.Register("text/x-custom", failingConverter{err: errors.New("interrupted")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(registry).Extract(ctx, []byte("data"), "text/x-custom")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistryContentTypes(t *testing.T) {
	types := DefaultRegistry().ContentTypes()
	require.Contains(t, types, TypePDF)
	require.Contains(t, types, TypeDOCX)
	require.Contains(t, types, TypeMarkdown)
	require.IsIncreasing(t, types)
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(docxBodyPart)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
