package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/sirupsen/logrus"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/models"
)

var (
	// ErrNoText means the PDF parsed but held no extractable text, which is
	// what scanned documents look like without OCR.
	ErrNoText = errors.New("pdf has no extractable text")
	// ErrEncrypted is returned for any encrypted PDF, including ones that open
	// with an empty user password.
	ErrEncrypted = errors.New("pdf is encrypted")
)

const (
	metaPage  = "page"
	metaPages = "pages"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home
	api.DisableConfigDir()
}

// PDFParser is an eino document parser backed by ledongthuc/pdf. It emits one
// document per page that carries text.
type PDFParser struct{}

func (PDFParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) (docs []*schema.Document, err error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	// the reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) || bytes.Contains(data, []byte("/Encrypt")) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	// an empty user password opens the file, it is still refused
	if !rdr.Trailer().Key("Encrypt").IsNull() {
		return nil, ErrEncrypted
	}
	uri := parser.GetCommonOptions(&parser.Options{}, opts...).URI

	total := rdr.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			// image-only pages have nothing to give
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, &schema.Document{
			ID:      fmt.Sprintf("%s#%d", uri, i),
			Content: text,
			MetaData: map[string]any{
				metaPage:  i,
				metaPages: total,
			},
		})
	}
	return docs, nil
}

// Extractor loads a PDF from disk and returns its plain text.
type Extractor struct {
	loader document.Loader
	log    logrus.FieldLogger
}

// NewExtractor wires the eino file loader to the PDF parser by extension.
func NewExtractor(ctx context.Context, log logrus.FieldLogger) (*Extractor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers: map[string]parser.Parser{
			".pdf": PDFParser{},
		},
		FallbackParser: PDFParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Extractor{loader: loader, log: log}, nil
}

// Extract returns the text of the PDF stored at path. Pages are joined with a
// blank line. ErrEncrypted is returned before any text is read from an
// encrypted file, ErrNoText when nothing could be read.
func (e *Extractor) Extract(ctx context.Context, path string) (*models.ExtractedText, error) {
	pages, err := inspect(path)
	switch {
	case errors.Is(err, ErrEncrypted):
		return nil, err
	case err != nil:
		// the text reader gets the final say on damaged files
		e.log.WithError(err).WithField("path", path).Debug("pdfcpu could not read document structure")
	}

	docs, err := e.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("load pdf: %w", err)
	}

	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(content)
		if n, ok := doc.MetaData[metaPages].(int); ok && pages == 0 {
			pages = n
		}
	}

	text := builder.String()
	if text == "" {
		return nil, ErrNoText
	}
	return &models.ExtractedText{Text: text, Pages: pages}, nil
}

// inspect reads the document structure with pdfcpu and returns the page
// count. Encrypted documents yield ErrEncrypted whether or not pdfcpu could
// open them.
func inspect(path string) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("inspect pdf: %v", r)
		}
	}()

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) || strings.Contains(strings.ToLower(err.Error()), "password") {
			return 0, ErrEncrypted
		}
		return 0, fmt.Errorf("inspect pdf: %w", err)
	}
	if pdfCtx.XRefTable.Encrypt != nil {
		return 0, ErrEncrypted
	}
	return pdfCtx.PageCount, nil
}
