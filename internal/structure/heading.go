package structure

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docchunk/internal/doctree"
)

const (
	defaultFontSize   = 12.0
	largeFontRatio    = 1.2
	maxHeadingRunes   = 100
	maxHeadingWords   = 15
	leftMarginReach   = 100.0
	minCandidateScore = 0.3

	weightFontSize = 0.3
	weightPattern  = 0.4
	weightShort    = 0.2
	weightMargin   = 0.1
)

// Candidate is a span judged likely to be a heading.
type Candidate struct {
	Text       string       `json:"text"`
	PageNumber int          `json:"page_number"`
	FontSize   float64      `json:"font_size"`
	FontName   string       `json:"font_name"`
	BBox       doctree.BBox `json:"bbox"`
	Confidence float64      `json:"confidence"`
}

// DetectHeadingCandidates scores every span of every page and returns the ones
// that look like headings, in page then span order.
func DetectHeadingCandidates(doc *doctree.Document) []Candidate {
	var out []Candidate
	for _, page := range doc.Pages {
		avg := averageFontSize(page)
		margin := leftMargin(page)

		for _, span := range page.Spans {
			text := strings.TrimSpace(span.Content)
			if text == "" {
				continue
			}

			score := 0.0
			largeFont := span.FontSize > largeFontRatio*avg
			if largeFont {
				score += weightFontSize
			}
			pattern := matchesAny(text)
			if pattern {
				score += weightPattern
			}
			if utf8.RuneCountInString(text) < maxHeadingRunes && len(strings.Fields(text)) < maxHeadingWords {
				score += weightShort
			}
			if span.BBox.X0-margin < leftMarginReach {
				score += weightMargin
			}

			if !(largeFont || pattern) || score <= minCandidateScore {
				continue
			}
			out = append(out, Candidate{
				Text:       text,
				PageNumber: page.Number,
				FontSize:   span.FontSize,
				FontName:   span.FontName,
				BBox:       span.BBox,
				Confidence: min(score, 1.0),
			})
		}
	}
	return out
}

func averageFontSize(page doctree.Page) float64 {
	if len(page.Spans) == 0 {
		return defaultFontSize
	}
	total := 0.0
	for _, s := range page.Spans {
		total += s.FontSize
	}
	return total / float64(len(page.Spans))
}

// leftMargin is the smallest x0 among the page's non-blank spans.
func leftMargin(page doctree.Page) float64 {
	margin, found := 0.0, false
	for _, s := range page.Spans {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		if !found || s.BBox.X0 < margin {
			margin, found = s.BBox.X0, true
		}
	}
	return margin
}
