package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docchunk/internal/doctree"
	"golang.org/x/text/unicode/norm"
)

// Formats without real layout (Markdown, HTML, DOCX, CSV, text) are rendered
// onto synthetic A4 pages so the structure analyzer sees font sizes and
// positions it can score.
const (
	a4Width      = 595.0
	a4Height     = 842.0
	pageMargin   = 72.0
	lineSpacing  = 1.5
	bodyFontSize = 12.0
	bodyFont     = "Body"
	headingFont  = "Heading"
)

// headingFontSizes maps heading level 1-6 to a synthetic font size.
var headingFontSizes = [...]float64{1: 24, 2: 20, 3: 18, 4: 16, 5: 14, 6: 13}

func headingFontSize(level int) float64 {
	if level < 1 || level >= len(headingFontSizes) {
		return bodyFontSize
	}
	return headingFontSizes[level]
}

// layout places lines top-down on synthetic pages.
type layout struct {
	pages []doctree.Page
	y     float64
}

func (l *layout) newPage() {
	l.pages = append(l.pages, doctree.Page{
		Number: len(l.pages) + 1,
		Spans:  []doctree.TextSpan{},
		Width:  a4Width,
		Height: a4Height,
	})
	l.y = pageMargin
}

func (l *layout) heading(text string, level int) {
	l.add(text, headingFontSize(level), headingFont)
}

func (l *layout) body(text string) {
	l.add(text, bodyFontSize, bodyFont)
}

// add appends a span to the current page. Blank text is dropped.
func (l *layout) add(text string, size float64, font string) {
	text = normalizeText(text)
	if text == "" {
		return
	}
	if len(l.pages) == 0 {
		l.newPage()
	}
	page := &l.pages[len(l.pages)-1]
	width := min(float64(utf8.RuneCountInString(text))*size*0.5, a4Width-2*pageMargin)
	page.Spans = append(page.Spans, doctree.TextSpan{
		Content: text,
		BBox: doctree.BBox{
			X0: pageMargin,
			Y0: l.y,
			X1: pageMargin + width,
			Y1: l.y + size,
		},
		FontSize: size,
		FontName: font,
	})
	l.y += size * lineSpacing
	page.Height = max(page.Height, l.y+pageMargin)
}

func (l *layout) result() []doctree.Page {
	if len(l.pages) == 0 {
		l.newPage()
	}
	return l.pages
}

// normalizeText applies NFC and trims surrounding whitespace. NFC keeps
// full-width digits intact, which some heading styles depend on.
func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
