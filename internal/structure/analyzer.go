// Package structure infers a chapter/section outline from the layout of a
// document's extracted text spans.
package structure

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/docchunk/internal/doctree"
)

// Analyzer builds document structures.
type Analyzer struct {
	log *slog.Logger
}

// NewAnalyzer creates an analyzer that reports through log.
func NewAnalyzer(log *slog.Logger) *Analyzer {
	return &Analyzer{log: log}
}

// Analyze validates doc and returns its inferred structure. doc is not
// modified; callers attach the result with doc.AttachStructure.
//
// A document without recognizable headings yields an empty structure with
// zero confidence, not an error.
func (a *Analyzer) Analyze(doc *doctree.Document) (*doctree.Structure, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("analyze structure: %w", err)
	}

	s := BuildStructure(doc)
	a.log.Info("structure analyzed",
		"document_id", doc.ID,
		"headings", s.TotalHeadings,
		"confidence", s.Confidence,
		"toc", s.TOCDetected,
	)
	return s, nil
}

// BuildStructure runs detection, leveling, linking, boundary resolution and
// scoring on an already validated document.
func BuildStructure(doc *doctree.Document) *doctree.Structure {
	secs, roots := LinkSections(AssignLevels(DetectHeadingCandidates(doc)))
	ResolveBoundaries(secs, doc.TotalPages)

	if secs == nil {
		secs = []doctree.Section{}
	}
	if roots == nil {
		roots = []doctree.SectionID{}
	}
	return &doctree.Structure{
		Sections:        secs,
		Roots:           roots,
		TOCDetected:     DetectTableOfContents(doc),
		Confidence:      ScoreConfidence(secs, doc.TotalPages),
		HeadingPatterns: MatchedPatterns(secs),
		TotalHeadings:   len(secs),
	}
}
