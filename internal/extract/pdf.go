package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts the text layer of a PDF. Scanned PDFs without a text
// layer produce no text and fail as empty.
type PDFLoader struct{}

func (PDFLoader) Extensions() []string { return []string{".pdf"} }

func (PDFLoader) Load(ctx context.Context, name string, data []byte) (docs []Document, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, fname := range p.Fonts() {
			if _, ok := fonts[fname]; !ok {
				f := p.Font(fname)
				fonts[fname] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if t := strings.TrimSpace(text); t != "" {
			pages = append(pages, t)
		}
	}

	return []Document{{Text: strings.Join(pages, "\n\n"), Source: name}}, nil
}
