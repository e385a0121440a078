// Package parser extracts positioned text spans from uploaded documents.
package parser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docchunk/internal/doctree"
	"github.com/dgallion1/docchunk/internal/idgen"
)

var (
	// ErrEmptyInput is returned for zero-length uploads.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidPDF is returned when the bytes are not a readable PDF.
	ErrInvalidPDF = errors.New("invalid pdf")
	// ErrUnsupported is returned by ForFile for unknown extensions.
	ErrUnsupported = errors.New("unsupported file extension")
)

// Parser converts raw document bytes into a Document of pages and spans.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tunes parser construction.
type Options struct {
	// PDFFallbackPdftotext shells out to pdftotext when a PDF yields no text.
	PDFFallbackPdftotext bool
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	return ForFileOptions(filename, Options{})
}

// ForFileOptions is ForFile with explicit options.
func ForFileOptions(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// newDocument assembles and validates a parsed document.
func newDocument(filename string, pages []doctree.Page, totalPages int, meta map[string]any) (*doctree.Document, error) {
	if meta == nil {
		meta = make(map[string]any)
	}
	if _, ok := meta["title"]; !ok {
		meta["title"] = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	doc := &doctree.Document{
		ID:         idgen.New(),
		Filename:   filename,
		Pages:      pages,
		Metadata:   meta,
		TotalPages: max(totalPages, len(pages)),
		Status:     doctree.StatusProcessing,
	}
	for i := range doc.Pages {
		if doc.Pages[i].Spans == nil {
			doc.Pages[i].Spans = []doctree.TextSpan{}
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}
