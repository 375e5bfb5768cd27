package loader

import (
	"context"
	"fmt"
	"io"
	"iter"
	"maps"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/schema"
)

// pageSource is the part of a PDF reader the loader needs.
type pageSource interface {
	NumPage() int
	// PageText returns the plain text of page i, 1-based.
	PageText(i int) (string, error)
	io.Closer
}

// PDFLoader loads one document per non-blank PDF page.
type PDFLoader struct {
	path     string
	metadata map[string]any
	open     func(path string) (pageSource, error)
}

// PDFLoaderOption configures the PDFLoader
type PDFLoaderOption func(*PDFLoader)

// WithMetadata sets additional metadata for loaded pages
func WithMetadata(metadata map[string]any) PDFLoaderOption {
	return func(l *PDFLoader) {
		maps.Copy(l.metadata, metadata)
	}
}

// NewPDFLoader creates a loader for the PDF at path.
func NewPDFLoader(path string, opts ...PDFLoaderOption) *PDFLoader {
	l := &PDFLoader{
		path:     path,
		metadata: make(map[string]any),
		open:     openPDF,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Pages yields pages lazily in order. Page metadata carries source, the
// 0-based page number and total_pages. Iteration stops after the first error.
func (l *PDFLoader) Pages(ctx context.Context) iter.Seq2[schema.Document, error] {
	return func(yield func(schema.Document, error) bool) {
		src, err := l.open(l.path)
		if err != nil {
			yield(schema.Document{}, fmt.Errorf("failed to open pdf %s: %w", l.path, err))
			return
		}
		defer src.Close()

		total := src.NumPage()
		for i := 1; i <= total; i++ {
			if err := ctx.Err(); err != nil {
				yield(schema.Document{}, err)
				return
			}

			text, err := src.PageText(i)
			if err != nil {
				yield(schema.Document{}, fmt.Errorf("failed to read page %d of %s: %w", i, l.path, err))
				return
			}
			if strings.TrimSpace(text) == "" {
				continue
			}

			metadata := make(map[string]any, len(l.metadata)+3)
			maps.Copy(metadata, l.metadata)
			metadata["source"] = l.path
			metadata["page"] = i - 1
			metadata["total_pages"] = total

			if !yield(schema.Document{PageContent: text, Metadata: metadata}, nil) {
				return
			}
		}
	}
}

// Load drains Pages into a slice.
func (l *PDFLoader) Load(ctx context.Context) ([]schema.Document, error) {
	var docs []schema.Document
	for doc, err := range l.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

type pdfFile struct {
	closer io.Closer
	reader *pdf.Reader
}

func openPDF(path string) (pageSource, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	return &pdfFile{closer: f, reader: r}, nil
}

func (p *pdfFile) NumPage() int {
	return p.reader.NumPage()
}

func (p *pdfFile) PageText(i int) (string, error) {
	page := p.reader.Page(i)
	if page.V.IsNull() {
		return "", nil
	}

	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		if _, ok := fonts[name]; !ok {
			font := page.Font(name)
			fonts[name] = &font
		}
	}
	return page.GetPlainText(fonts)
}

func (p *pdfFile) Close() error {
	return p.closer.Close()
}
