package doctree

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when extraction output is malformed.
var ErrInvalidDocument = errors.New("invalid document")

// Status is the processing state of a Document.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MetaStructure is the metadata key the analyzed Structure is stored under.
const MetaStructure = "document_structure"

// BBox is a span's bounding box in page coordinates.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Origin returns the top-left corner of the box.
func (b BBox) Origin() Position {
	return Position{X: b.X0, Y: b.Y0}
}

// Position is a point on a page.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextSpan is one contiguous run of same-font text on a page.
type TextSpan struct {
	Content  string  `json:"content"`
	BBox     BBox    `json:"bbox"`
	FontSize float64 `json:"font_size"`
	FontName string  `json:"font_name"`
}

// Page holds the spans of a single page in extraction order.
type Page struct {
	Number int        `json:"page_number"` // 1-based
	Spans  []TextSpan `json:"text_blocks"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
}

// Document is the extraction result for one uploaded file.
type Document struct {
	ID         string         `json:"document_id"`
	Filename   string         `json:"filename"`
	Pages      []Page         `json:"pages"`
	Metadata   map[string]any `json:"metadata"`
	TotalPages int            `json:"total_pages"`
	Status     Status         `json:"processing_status"`
}

// Validate checks the invariants extraction must uphold before structuring.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if d.Filename == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidDocument)
	}
	if d.TotalPages < len(d.Pages) {
		return fmt.Errorf("%w: total_pages %d < %d extracted pages", ErrInvalidDocument, d.TotalPages, len(d.Pages))
	}
	prev := 0
	for _, p := range d.Pages {
		if p.Number <= prev {
			return fmt.Errorf("%w: page number %d out of order", ErrInvalidDocument, p.Number)
		}
		if p.Number > d.TotalPages {
			return fmt.Errorf("%w: page number %d exceeds total_pages %d", ErrInvalidDocument, p.Number, d.TotalPages)
		}
		for i, s := range p.Spans {
			if s.FontSize < 0 {
				return fmt.Errorf("%w: page %d span %d has negative font size", ErrInvalidDocument, p.Number, i)
			}
		}
		prev = p.Number
	}
	return nil
}

// AttachStructure stores the analyzed structure in the document metadata.
func (d *Document) AttachStructure(s *Structure) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[MetaStructure] = s
}

// Structure returns the attached structure, if any.
func (d *Document) Structure() (*Structure, bool) {
	if d.Metadata == nil {
		return nil, false
	}
	s, ok := d.Metadata[MetaStructure].(*Structure)
	return s, ok && s != nil
}

// Title returns the metadata title, falling back to the filename.
func (d *Document) Title() string {
	if t, ok := d.Metadata["title"].(string); ok && t != "" {
		return t
	}
	return d.Filename
}
