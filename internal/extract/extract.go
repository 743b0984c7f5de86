// Package extract turns uploaded files into plain-text documents.
//
// Files are classified by extension. Images go through text recognition and
// are skipped with a warning when it fails; every other file goes to a
// format-aware loader and fails with an extraction error naming the file.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/chunk"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// Document is an extracted unit of text. Source is the uploaded filename.
type Document = chunk.Document

// File is one upload. Name is the declared filename and is used verbatim as
// provenance; Data takes precedence over Path when both are set.
type File struct {
	Name string
	Path string
	Data []byte
}

// Bytes returns the file content, reading Path when Data is empty.
func (f File) Bytes() ([]byte, error) {
	if f.Data != nil {
		return f.Data, nil
	}
	if f.Path == "" {
		return nil, fmt.Errorf("file %q has neither data nor path", f.Name)
	}
	return os.ReadFile(f.Path)
}

// Class is the extraction path chosen for a file.
type Class int

const (
	ClassStructured Class = iota
	ClassImage
)

func (c Class) String() string {
	if c == ClassImage {
		return "image"
	}
	return "structured"
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Classify picks the extraction path by lower-cased extension.
func Classify(name string) Class {
	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return ClassImage
	}
	return ClassStructured
}

// Policy decides what a batch does with an extraction error.
type Policy string

const (
	// PolicyAbort stops the batch at the first failing file.
	PolicyAbort Policy = "abort"
	// PolicySkip records the failure as a warning and continues.
	PolicySkip Policy = "skip"
)

// ParsePolicy maps a config value to a Policy, defaulting to abort.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(s, string(PolicySkip)) {
		return PolicySkip
	}
	return PolicyAbort
}

// Warning is a non-fatal per-file problem.
type Warning struct {
	File string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.File, w.Err)
}

// Loader extracts documents from one structured format.
type Loader interface {
	Load(ctx context.Context, name string, data []byte) ([]Document, error)
	Extensions() []string
}

// OCR recognizes text in an image.
type OCR interface {
	Recognize(ctx context.Context, name string, data []byte) (string, error)
}

// Options configures an Extractor.
type Options struct {
	// OCR is nil when no recognition service is configured; images are then
	// skipped with a warning.
	OCR OCR

	// MaxFileSize rejects larger files; 0 means unlimited.
	MaxFileSize int64

	Logger *slog.Logger
}

// Extractor dispatches files to loaders by extension.
type Extractor struct {
	loaders map[string]Loader
	ocr     OCR
	maxSize int64
	logger  *slog.Logger
}

// New returns an Extractor with the built-in loaders registered.
func New(opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		loaders: make(map[string]Loader),
		ocr:     opts.OCR,
		maxSize: opts.MaxFileSize,
		logger:  logger,
	}
	e.Register(TextLoader{})
	e.Register(PDFLoader{})
	e.Register(DocxLoader{})
	e.Register(PptxLoader{})
	e.Register(XlsxLoader{})
	return e
}

// Register adds or replaces the loader for each of l's extensions.
func (e *Extractor) Register(l Loader) {
	for _, ext := range l.Extensions() {
		e.loaders[strings.ToLower(ext)] = l
	}
}

// Supported reports whether name has a loader or is an image.
func (e *Extractor) Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := e.loaders[ext]
	return ok || imageExts[ext]
}

// Extract processes one file. A non-nil Warning with no error means the file
// was skipped.
func (e *Extractor) Extract(ctx context.Context, f File) ([]Document, *Warning, error) {
	data, err := f.Bytes()
	if err != nil {
		return nil, nil, cerrors.ExtractionError(f.Name, err)
	}
	if e.maxSize > 0 && int64(len(data)) > e.maxSize {
		return nil, nil, cerrors.ExtractionError(f.Name,
			fmt.Errorf("file is %d bytes, limit is %d", len(data), e.maxSize))
	}

	if Classify(f.Name) == ClassImage {
		return e.extractImage(ctx, f.Name, data)
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	loader, ok := e.loaders[ext]
	if !ok {
		return nil, nil, cerrors.UnsupportedFormatError(f.Name, ext)
	}

	docs, err := loader.Load(ctx, f.Name, data)
	if err != nil {
		return nil, nil, cerrors.ExtractionError(f.Name, err)
	}
	docs = nonEmpty(docs)
	if len(docs) == 0 {
		return nil, nil, cerrors.ExtractionError(f.Name, fmt.Errorf("no text content"))
	}
	for i := range docs {
		docs[i].Source = f.Name
	}
	return docs, nil, nil
}

func (e *Extractor) extractImage(ctx context.Context, name string, data []byte) ([]Document, *Warning, error) {
	if e.ocr == nil {
		return nil, &Warning{File: name, Err: cerrors.OCRFailed(name, fmt.Errorf("no OCR service configured"))}, nil
	}

	text, err := e.ocr.Recognize(ctx, name, data)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("no text recognized")
	}
	if err != nil {
		e.logger.Warn("image skipped", slog.String("file", name), slog.String("error", err.Error()))
		return nil, &Warning{File: name, Err: cerrors.OCRFailed(name, err)}, nil
	}
	return []Document{{Text: text, Source: name}}, nil, nil
}

// Batch extracts files in order. Under PolicyAbort the first extraction
// error is returned; under PolicySkip it becomes a warning. Images that fail
// recognition are always skipped.
func (e *Extractor) Batch(ctx context.Context, files []File, policy Policy) ([]Document, []Warning, error) {
	var (
		docs     []Document
		warnings []Warning
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}

		got, warn, err := e.Extract(ctx, f)
		if err != nil {
			if policy == PolicySkip {
				e.logger.Warn("file skipped", slog.String("file", f.Name), slog.String("error", err.Error()))
				warnings = append(warnings, Warning{File: f.Name, Err: err})
				continue
			}
			return nil, warnings, err
		}
		if warn != nil {
			warnings = append(warnings, *warn)
			continue
		}
		e.logger.Debug("extracted file", slog.String("file", f.Name), slog.Int("documents", len(got)))
		docs = append(docs, got...)
	}
	return docs, warnings, nil
}

func nonEmpty(docs []Document) []Document {
	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Text) != "" {
			out = append(out, d)
		}
	}
	return out
}
