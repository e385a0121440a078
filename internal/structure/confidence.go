package structure

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docchunk/internal/doctree"
)

const (
	minDensity = 0.1
	maxDensity = 2.0
	tocScanMax = 5

	weightDensity         = 0.3
	weightAvgConfidence   = 0.4
	weightLevelDiversity  = 0.2
	weightFontSizeVariety = 0.1
)

var (
	tocKeywords  = []string{"目次", "目録", "もくじ", "Contents", "INDEX"}
	tocPageNumRe = regexp.MustCompile(`(?m)[0-9０-９]+\s*$`)
)

// ScoreConfidence rates how trustworthy the detected outline is, in [0, 1].
func ScoreConfidence(secs []doctree.Section, totalPages int) float64 {
	if len(secs) == 0 {
		return 0
	}

	score := 0.0
	if totalPages > 0 {
		density := float64(len(secs)) / float64(totalPages)
		if density >= minDensity && density <= maxDensity {
			score += weightDensity
		}
	}

	total := 0.0
	levels := make(map[int]bool)
	sizes := make(map[float64]bool)
	for _, s := range secs {
		total += s.Confidence
		levels[s.Level] = true
		if s.FontSize > 0 {
			sizes[sizeKey(s.FontSize)] = true
		}
	}
	score += total / float64(len(secs)) * weightAvgConfidence

	if len(levels) > 1 {
		score += weightLevelDiversity
	}
	if len(sizes) >= 2 {
		score += weightFontSizeVariety
	}
	return min(max(score, 0), 1)
}

// DetectTableOfContents looks for a contents page among the first pages: a ToC
// keyword in one of its spans and a line ending in a page number.
func DetectTableOfContents(doc *doctree.Document) bool {
	for i, page := range doc.Pages {
		if i >= tocScanMax {
			break
		}
		if isTOCPage(page) {
			return true
		}
	}
	return false
}

func isTOCPage(page doctree.Page) bool {
	keyword := false
	texts := make([]string, 0, len(page.Spans))
	for _, s := range page.Spans {
		t := strings.TrimSpace(s.Content)
		texts = append(texts, t)
		if !keyword && containsAny(t, tocKeywords) {
			keyword = true
		}
	}
	return keyword && tocPageNumRe.MatchString(strings.Join(texts, "\n"))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// MatchedPatterns returns the ids of the heading patterns that at least one
// section title matches, in pattern order.
func MatchedPatterns(secs []doctree.Section) []string {
	out := []string{}
	for _, p := range HeadingPatterns {
		for _, s := range secs {
			if p.Match(s.Title) {
				out = append(out, p.ID)
				break
			}
		}
	}
	return out
}
