package chunker

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docchunk/internal/doctree"
)

// applyOverlap prefixes every chunk after the first with a whole-sentence tail
// of its predecessor. Tails are always taken from the predecessor's original
// content, so overlaps never compound.
func (c *Chunker) applyOverlap(chunks []doctree.TextChunk, orig []piece) ([]doctree.TextChunk, error) {
	size := c.cfg.OverlapSize()
	if size <= 0 || len(chunks) < 2 {
		return chunks, nil
	}

	out := make([]doctree.TextChunk, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := orig[i-1]
		target := min(size, prev.tokens/2)
		if target <= 0 {
			out[i] = chunks[i]
			continue
		}

		tail, err := c.trailingSentences(prev.content, target)
		if err != nil {
			return nil, err
		}
		if tail == "" {
			out[i] = chunks[i]
			continue
		}

		tokens, err := c.counter.CountTokens(tail + " " + chunks[i].Content)
		if err != nil {
			return nil, fmt.Errorf("count overlap tokens: %w", err)
		}
		merged, err := chunks[i].WithPrefix(tail, tokens)
		if err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}

// trailingSentences returns the longest run of whole sentences from the end of
// text whose token count stays within target.
func (c *Chunker) trailingSentences(text string, target int) (string, error) {
	sentences, err := c.seg.Segment(text)
	if err != nil {
		return "", fmt.Errorf("segment overlap: %w", err)
	}

	tail := ""
	for i := len(sentences) - 1; i >= 0; i-- {
		s := strings.TrimSpace(sentences[i])
		if s == "" {
			continue
		}
		candidate := s
		if tail != "" {
			candidate = s + " " + tail
		}
		n, err := c.counter.CountTokens(candidate)
		if err != nil {
			return "", fmt.Errorf("count overlap tokens: %w", err)
		}
		if n > target {
			break
		}
		tail = candidate
	}

	return tail, nil
}
