package chunker

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// SentenceSegmenter splits text into sentences in order. Blank input may yield
// no sentences.
type SentenceSegmenter interface {
	Segment(text string) ([]string, error)
}

// UAX29Segmenter splits on Unicode sentence boundaries, which handles 。！？ as
// well as Latin punctuation.
type UAX29Segmenter struct{}

// Segment returns the trimmed, non-blank sentences of text.
func (UAX29Segmenter) Segment(text string) ([]string, error) {
	var out []string
	tokens := sentences.FromString(text)
	for tokens.Next() {
		s := strings.TrimSpace(tokens.Value())
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
