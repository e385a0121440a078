package parser

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/docchunk/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// Glyphs whose baselines differ by more than this are on different lines.
	rowTolerance = 3.0
	// A horizontal gap wider than this share of the font size is a word space.
	wordSpaceRatio = 0.3
	// A gap wider than this share of the font size starts a new span.
	spanBreakRatio = 1.5

	letterWidth  = 612.0
	letterHeight = 792.0
)

// PDFParser handles PDF files. pdfcpu validates the file and reads the info
// dictionary; ledongthuc/pdf provides positioned glyphs, which are grouped
// into spans. When FallbackPdftotext is set and the library yields no text,
// pdftotext is tried instead.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	pageCount, meta, err := inspectPDF(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages, err := extractSpans(data)
	if (err != nil || !hasText(pages)) && p.FallbackPdftotext {
		pages, err = extractPdftotext(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	return newDocument(filename, pages, pageCount, meta)
}

// inspectPDF validates the file and returns its page count and info
// dictionary entries.
func inspectPDF(data []byte) (int, map[string]any, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, nil, err
	}

	meta := make(map[string]any)
	info := map[string]string{
		"title":    ctx.Title,
		"author":   ctx.Author,
		"subject":  ctx.Subject,
		"creator":  ctx.Creator,
		"producer": ctx.Producer,
	}
	for k, v := range info {
		if v = strings.TrimSpace(v); v != "" {
			meta[k] = v
		}
	}
	return ctx.PageCount, meta, nil
}

// extractSpans reads positioned glyphs page by page. ledongthuc/pdf panics on
// some malformed content streams, so panics are turned into errors.
func extractSpans(data []byte) (pages []doctree.Page, err error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("read page content: %v", rec)
		}
	}()

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		width, height := mediaBox(page)
		pg := doctree.Page{Number: i, Spans: []doctree.TextSpan{}, Width: width, Height: height}
		if !page.V.IsNull() {
			pg.Spans = groupGlyphs(page.Content().Text, height)
		}
		pages = append(pages, pg)
	}
	return pages, nil
}

// mediaBox returns the page size, following inherited attributes up the page
// tree. Letter size is assumed when none is found.
func mediaBox(page pdflib.Page) (float64, float64) {
	for v := page.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			return box.Index(2).Float64() - box.Index(0).Float64(),
				box.Index(3).Float64() - box.Index(1).Float64()
		}
	}
	return letterWidth, letterHeight
}

type spanAcc struct {
	text         strings.Builder
	font         string
	size         float64
	x0, x1, base float64
}

// groupGlyphs merges glyphs that share a baseline, font and size and sit close
// together into spans. Coordinates are flipped so y grows downwards.
func groupGlyphs(glyphs []pdflib.Text, pageHeight float64) []doctree.TextSpan {
	var spans []doctree.TextSpan
	var cur *spanAcc

	flush := func() {
		if cur == nil {
			return
		}
		content := normalizeText(strings.Join(strings.Fields(cur.text.String()), " "))
		if content != "" {
			spans = append(spans, doctree.TextSpan{
				Content: content,
				BBox: doctree.BBox{
					X0: cur.x0,
					Y0: math.Max(pageHeight-(cur.base+cur.size), 0),
					X1: cur.x1,
					Y1: math.Max(pageHeight-cur.base, 0),
				},
				FontSize: cur.size,
				FontName: cur.font,
			})
		}
		cur = nil
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil {
			gap := g.X - cur.x1
			breaks := g.Font != cur.font ||
				math.Abs(g.FontSize-cur.size) > 0.1 ||
				math.Abs(g.Y-cur.base) > rowTolerance ||
				gap > spanBreakRatio*g.FontSize ||
				gap < -g.FontSize
			if breaks {
				flush()
			} else if gap > wordSpaceRatio*g.FontSize {
				cur.text.WriteByte(' ')
			}
		}
		if cur == nil {
			cur = &spanAcc{font: g.Font, size: g.FontSize, x0: g.X, x1: g.X, base: g.Y}
		}
		cur.text.WriteString(g.S)
		cur.x1 = math.Max(cur.x1, g.X+g.W)
	}
	flush()

	if spans == nil {
		spans = []doctree.TextSpan{}
	}
	return spans
}

func hasText(pages []doctree.Page) bool {
	for _, p := range pages {
		if len(p.Spans) > 0 {
			return true
		}
	}
	return false
}

// extractPdftotext shells out to poppler's pdftotext and turns each line into
// a body span. Pages are separated by form feeds.
func extractPdftotext(data []byte) ([]doctree.Page, error) {
	tmp, err := os.CreateTemp("", "docchunk-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmpPath, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}

	pageTexts := strings.Split(string(out), "\f")
	if n := len(pageTexts); n > 1 && strings.TrimSpace(pageTexts[n-1]) == "" {
		pageTexts = pageTexts[:n-1]
	}

	var l layout
	for _, text := range pageTexts {
		l.newPage()
		for _, line := range strings.Split(text, "\n") {
			l.body(line)
		}
	}
	return l.result(), nil
}
