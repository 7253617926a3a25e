package ai

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/document/parser"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/pdftest"
)

func TestPDFParserEmitsOneDocumentPerPage(t *testing.T) {
	data := pdftest.Build("first page text", "second page text")

	docs, err := PDFParser{}.Parse(context.Background(), bytes.NewReader(data), parser.WithURI("doc.pdf"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "first page text", docs[0].Content)
	assert.Equal(t, "second page text", docs[1].Content)
	assert.Equal(t, 2, docs[1].MetaData[metaPages])
	assert.Equal(t, "doc.pdf#2", docs[1].ID)
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	_, err := PDFParser{}.Parse(context.Background(), bytes.NewReader(pdftest.Corrupt()))
	require.Error(t, err)
}

func TestExtractorReadsFileFromDisk(t *testing.T) {
	path := writePDF(t, pdftest.Build(strings.Repeat("Hello World ", 250), strings.Repeat("Hello World ", 250)))

	ext := newTestExtractor(t)
	out, err := ext.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, 500, strings.Count(out.Text, "Hello World"))
}

func TestExtractorNoText(t *testing.T) {
	path := writePDF(t, pdftest.Build("   "))

	ext := newTestExtractor(t)
	_, err := ext.Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractorCorruptFile(t *testing.T) {
	path := writePDF(t, pdftest.Corrupt())

	ext := newTestExtractor(t)
	_, err := ext.Extract(context.Background(), path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoText)
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ext, err := NewExtractor(context.Background(), logger)
	require.NoError(t, err)
	return ext
}

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExtractorRejectsPasswordProtectedPDF(t *testing.T) {
	data, err := pdftest.Encrypted("user-secret", "confidential figures")
	require.NoError(t, err)
	path := writePDF(t, data)

	ext := newTestExtractor(t)
	_, err = ext.Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrEncrypted)
}

func TestExtractorRejectsEmptyPasswordPDF(t *testing.T) {
	data, err := pdftest.Encrypted("", "readable but encrypted")
	require.NoError(t, err)
	path := writePDF(t, data)

	ext := newTestExtractor(t)
	_, err = ext.Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrEncrypted)
}

func TestPDFParserRejectsEncrypted(t *testing.T) {
	data, err := pdftest.Encrypted("user-secret", "confidential figures")
	require.NoError(t, err)

	_, err = PDFParser{}.Parse(context.Background(), bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrEncrypted)
}

func TestInspectCountsPages(t *testing.T) {
	path := writePDF(t, pdftest.Build("first", " ", "third"))

	pages, err := inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
}

func TestInspectReportsDamagedFile(t *testing.T) {
	path := writePDF(t, pdftest.Corrupt())

	_, err := inspect(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEncrypted)
}

func TestExtractorPageCountIncludesBlankPages(t *testing.T) {
	path := writePDF(t, pdftest.Build("first", " ", "third"))

	ext := newTestExtractor(t)
	out, err := ext.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Pages)
	assert.Equal(t, "first\n\nthird", out.Text)
}
