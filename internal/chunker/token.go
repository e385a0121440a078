package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens the same way the downstream embedding model does.
// Implementations must be deterministic for a fixed model.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// EstimateCounter approximates token counts without a vocabulary: CJK
// characters count 0.7 each and other words 1.3 each.
type EstimateCounter struct{}

// CountTokens returns at least 1 for any non-blank text and 0 otherwise.
func (EstimateCounter) CountTokens(text string) (int, error) {
	return EstimateTokens(text), nil
}

// EstimateTokens gives a rough token count for mixed Japanese/English text.
func EstimateTokens(text string) int {
	cjk := 0
	rest := strings.Map(func(r rune) rune {
		if isCJK(r) {
			cjk++
			return ' '
		}
		return r
	}, text)
	words := len(strings.Fields(rest))
	if cjk == 0 && words == 0 {
		return 0
	}
	tokens := int(float64(cjk)*0.7 + float64(words)*1.3)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// TiktokenCounter counts BPE tokens with an OpenAI encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the encoding used by model, falling back to
// cl100k_base for models tiktoken does not know (embedding models included).
// Loading may download the vocabulary on first use.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CountTokens encodes text and returns the number of tokens.
func (c *TiktokenCounter) CountTokens(text string) (int, error) {
	return len(c.enc.Encode(text, nil, nil)), nil
}
