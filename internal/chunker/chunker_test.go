package chunker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgallion1/docchunk/internal/doctree"
)

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) CountTokens(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// periodSegmenter splits after every period.
type periodSegmenter struct{}

func (periodSegmenter) Segment(text string) ([]string, error) {
	var out []string
	for _, s := range strings.SplitAfter(text, ".") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

type failingCounter struct{ err error }

func (f failingCounter) CountTokens(string) (int, error) { return 0, f.err }

type failingSegmenter struct{ err error }

func (f failingSegmenter) Segment(string) ([]string, error) { return nil, f.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sentence builds an n-token sentence like "p1 p2 p3.".
func sentence(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return strings.Join(words, " ") + "."
}

func textDoc(pages ...string) *doctree.Document {
	doc := &doctree.Document{ID: "doc-1", Filename: "book.pdf", TotalPages: len(pages)}
	for i, text := range pages {
		doc.Pages = append(doc.Pages, doctree.Page{
			Number: i + 1,
			Spans:  []doctree.TextSpan{{Content: text, FontSize: 12}},
		})
	}
	return doc
}

func newTestChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg, wordCounter{}, periodSegmenter{}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestChunk_GreedyPacking(t *testing.T) {
	a, b, c := sentence("a", 4), sentence("b", 4), sentence("c", 4)
	doc := textDoc(strings.Join([]string{a, b, c}, " "))

	chunks, err := newTestChunker(t, Config{ChunkSize: 10}).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != a+" "+b {
		t.Errorf("chunk 0 = %q", chunks[0].Content)
	}
	if chunks[0].Metadata.TokenCount != 8 {
		t.Errorf("chunk 0 tokens = %d, want 8", chunks[0].Metadata.TokenCount)
	}
	if chunks[1].Content != c || chunks[1].Metadata.TokenCount != 4 {
		t.Errorf("chunk 1 = %q (%d tokens)", chunks[1].Content, chunks[1].Metadata.TokenCount)
	}
}

func TestChunk_DefaultOverlapTooSmallForWholeSentence(t *testing.T) {
	a, b, c := sentence("a", 4), sentence("b", 4), sentence("c", 4)
	doc := textDoc(strings.Join([]string{a, b, c}, " "))

	// overlap budget is 1 token, every sentence is 4
	chunks, err := newTestChunker(t, Config{ChunkSize: 10, OverlapRatio: 0.1}).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 || chunks[1].Content != c {
		t.Fatalf("expected untouched second chunk, got %+v", chunks)
	}
}

func TestChunk_TokenBudget(t *testing.T) {
	var sents []string
	for i, n := range []int{20, 20, 15, 30, 5, 40, 12} {
		sents = append(sents, sentence(fmt.Sprintf("s%d_", i), n))
	}
	doc := textDoc(strings.Join(sents, " "))

	chunks, err := newTestChunker(t, Config{ChunkSize: 50}).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 20+20 | 15+30+5 | 40 | 12
	want := []int{40, 50, 40, 12}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Metadata.TokenCount != want[i] {
			t.Errorf("chunk %d: %d tokens, want %d", i, c.Metadata.TokenCount, want[i])
		}
		if c.Metadata.TokenCount > 50 {
			t.Errorf("chunk %d exceeds budget", i)
		}
	}
}

func TestChunk_OversizedSentenceKeptWhole(t *testing.T) {
	big := sentence("x", 30)
	doc := textDoc(sentence("a", 3) + " " + big + " " + sentence("b", 3))

	chunks, err := newTestChunker(t, Config{ChunkSize: 10}).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Content != big || chunks[1].Metadata.TokenCount != 30 {
		t.Errorf("expected oversized sentence alone, got %q", chunks[1].Content)
	}
}

func TestChunk_Overlap(t *testing.T) {
	s1, s2, s3, s4 := sentence("a", 60), sentence("b", 12), sentence("c", 6), sentence("d", 5)
	e1, e2 := sentence("e", 6), sentence("f", 4)
	g := sentence("g", 10)
	doc := textDoc(
		strings.Join([]string{s1, s2, s3, s4}, " "),
		e1+" "+e2,
		g,
	)

	cfg := Config{ChunkSize: 100, OverlapRatio: 0.2}
	if cfg.OverlapSize() != 20 {
		t.Fatalf("overlap size = %d, want 20", cfg.OverlapSize())
	}
	chunks, err := newTestChunker(t, cfg).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	if chunks[0].Content != strings.Join([]string{s1, s2, s3, s4}, " ") {
		t.Errorf("first chunk should be untouched")
	}

	// 5+6 fits in 20, adding the 12-token sentence would not
	wantB := s3 + " " + s4 + " " + e1 + " " + e2
	if chunks[1].Content != wantB {
		t.Errorf("chunk 1 = %q, want %q", chunks[1].Content, wantB)
	}
	if chunks[1].Metadata.TokenCount != 21 {
		t.Errorf("chunk 1 tokens = %d, want 21", chunks[1].Metadata.TokenCount)
	}

	// Taken from B's original content (10 tokens, target 5), not the overlapped one.
	wantC := e2 + " " + g
	if chunks[2].Content != wantC {
		t.Errorf("chunk 2 = %q, want %q", chunks[2].Content, wantC)
	}
	if chunks[2].Metadata.TokenCount != 14 {
		t.Errorf("chunk 2 tokens = %d, want 14", chunks[2].Metadata.TokenCount)
	}
}

func TestChunk_TokenCountMatchesContent(t *testing.T) {
	text := strings.Join([]string{
		"one two three.", "four five six.", "seven eight nine ten.",
		"eleven twelve.", "thirteen fourteen fifteen.", "sixteen.",
	}, " ")
	tests := []struct {
		name string
		cfg  Config
	}{
		{"default", DefaultConfig()},
		{"no overlap", Config{ChunkSize: 6}},
		{"overlap", Config{ChunkSize: 8, OverlapRatio: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, EstimateCounter{}, periodSegmenter{}, discardLogger())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			chunks, err := c.Chunk(textDoc(text))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(chunks) == 0 {
				t.Fatal("expected chunks")
			}
			for i, ch := range chunks {
				if want := EstimateTokens(ch.Content); ch.Metadata.TokenCount != want {
					t.Errorf("chunk %d %q: token count %d, content counts %d", i, ch.Content, ch.Metadata.TokenCount, want)
				}
			}
		})
	}
}

func TestChunk_EstimateBudgetOnJoinedText(t *testing.T) {
	// each sentence estimates to 3 tokens alone but the pair to 7
	c, err := New(Config{ChunkSize: 6}, EstimateCounter{}, periodSegmenter{}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks, err := c.Chunk(textDoc("one two three. four five six."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Metadata.TokenCount > 6 {
			t.Errorf("chunk %d exceeds budget: %d", i, ch.Metadata.TokenCount)
		}
	}
}

func TestChunk_CoverageWithoutOverlap(t *testing.T) {
	pages := []string{
		sentence("a", 7) + " " + sentence("b", 9) + " " + sentence("c", 3),
		sentence("d", 12),
		sentence("e", 2) + " " + sentence("f", 2),
	}
	doc := textDoc(pages...)

	chunks, err := newTestChunker(t, Config{ChunkSize: 10}).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byPage := make(map[int][]string)
	for _, c := range chunks {
		byPage[c.Metadata.PageNumber] = append(byPage[c.Metadata.PageNumber], c.Content)
	}
	for i, text := range pages {
		if got := strings.Join(byPage[i+1], " "); got != text {
			t.Errorf("page %d: reconstructed %q, want %q", i+1, got, text)
		}
	}
}

func TestChunk_SectionMetadata(t *testing.T) {
	doc := textDoc(sentence("a", 3), sentence("b", 3), sentence("c", 3))
	doc.AttachStructure(&doctree.Structure{
		Sections: []doctree.Section{
			{ID: 0, Title: "第1章 概要", Level: 1, StartPage: 1, EndPage: 2, Parent: doctree.NoSection},
		},
		Roots:         []doctree.SectionID{0},
		TotalHeadings: 1,
	})

	chunks, err := newTestChunker(t, Config{ChunkSize: 10}).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks[:2] {
		m := c.Metadata
		if m.ChapterNumber == nil || *m.ChapterNumber != 1 {
			t.Errorf("page %d: expected chapter 1, got %v", m.PageNumber, m.ChapterNumber)
		}
		if m.SectionName == nil || *m.SectionName != "第1章 概要" {
			t.Errorf("page %d: unexpected section %v", m.PageNumber, m.SectionName)
		}
	}
	if m := chunks[2].Metadata; m.ChapterNumber != nil || m.SectionName != nil {
		t.Errorf("page 3 should have no section, got %v / %v", m.ChapterNumber, m.SectionName)
	}
	for _, c := range chunks {
		if c.Metadata.DocumentID != "doc-1" || c.Metadata.Filename != "book.pdf" {
			t.Errorf("unexpected provenance %+v", c.Metadata)
		}
		if c.ID == "" || c.CreatedAt.IsZero() {
			t.Errorf("chunk missing id or timestamp")
		}
	}
}

func TestChunk_BlankPage(t *testing.T) {
	doc := textDoc("   ", sentence("a", 3))
	doc.Pages[0].Spans = append(doc.Pages[0].Spans, doctree.TextSpan{Content: "\n\t"})

	chunks, err := newTestChunker(t, DefaultConfig()).Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Metadata.PageNumber != 2 {
		t.Fatalf("expected a single chunk from page 2, got %+v", chunks)
	}

	empty := &doctree.Document{ID: "e", Filename: "empty.pdf", TotalPages: 1, Pages: []doctree.Page{{Number: 1}}}
	chunks, err = newTestChunker(t, DefaultConfig()).Chunk(empty)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunk_DependencyFailures(t *testing.T) {
	cause := errors.New("model unavailable")
	tests := []struct {
		name    string
		counter TokenCounter
		seg     SentenceSegmenter
	}{
		{"counter", failingCounter{cause}, periodSegmenter{}},
		{"segmenter", wordCounter{}, failingSegmenter{cause}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(DefaultConfig(), tt.counter, tt.seg, discardLogger())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			chunks, err := c.Chunk(textDoc(sentence("a", 3), sentence("b", 3)))
			if err == nil {
				t.Fatal("expected error")
			}
			if chunks != nil {
				t.Errorf("expected no partial result, got %d chunks", len(chunks))
			}
			var ce *ChunkingError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ChunkingError, got %T", err)
			}
			if ce.DocumentID != "doc-1" {
				t.Errorf("unexpected document id %q", ce.DocumentID)
			}
			if !errors.Is(err, cause) {
				t.Errorf("expected cause to be preserved")
			}
		})
	}
}

// overlapFailCounter fails once it sees text that spans two pages.
type overlapFailCounter struct{}

func (overlapFailCounter) CountTokens(text string) (int, error) {
	if strings.Contains(text, "a1") && strings.Contains(text, "b1") {
		return 0, errors.New("boom")
	}
	return len(strings.Fields(text)), nil
}

func TestChunk_OverlapFailureIsAllOrNothing(t *testing.T) {
	c, err := New(Config{ChunkSize: 10, OverlapRatio: 0.5}, overlapFailCounter{}, periodSegmenter{}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks, err := c.Chunk(textDoc(sentence("x", 3)+" "+sentence("a", 1), sentence("b", 2)))
	if !IsChunkingError(err) {
		t.Fatalf("expected ChunkingError, got %v", err)
	}
	if chunks != nil {
		t.Errorf("expected no chunks")
	}
}

func TestChunk_InvalidDocument(t *testing.T) {
	c := newTestChunker(t, DefaultConfig())
	_, err := c.Chunk(&doctree.Document{Filename: "x.pdf", TotalPages: 1, Pages: []doctree.Page{{Number: 0}}})
	if !errors.Is(err, doctree.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
	if IsChunkingError(err) {
		t.Error("validation errors are not chunking errors")
	}
}

func TestChunk_Deterministic(t *testing.T) {
	doc := textDoc(sentence("a", 7)+" "+sentence("b", 9), sentence("c", 5))
	c := newTestChunker(t, Config{ChunkSize: 10, OverlapRatio: 0.3})
	first, err := c.Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Chunk(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Content != second[i].Content || first[i].Metadata.TokenCount != second[i].Metadata.TokenCount {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestConfig(t *testing.T) {
	if got := DefaultConfig().OverlapSize(); got != 51 {
		t.Errorf("default overlap size = %d, want 51", got)
	}
	tests := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{ChunkSize: 512, OverlapRatio: 0.1}, false},
		{Config{ChunkSize: 1, OverlapRatio: 0}, false},
		{Config{ChunkSize: 0, OverlapRatio: 0.1}, true},
		{Config{ChunkSize: 512, OverlapRatio: 1}, true},
		{Config{ChunkSize: 512, OverlapRatio: -0.1}, true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
	if _, err := New(Config{}, wordCounter{}, periodSegmenter{}, discardLogger()); err == nil {
		t.Error("expected New to reject zero config")
	}
}

func TestJoinSpans(t *testing.T) {
	tests := []struct {
		spans []string
		want  string
	}{
		{[]string{"第1章", "概要"}, "第1章概要"},
		{[]string{"Hello", "world"}, "Hello world"},
		{[]string{"日本", "text"}, "日本 text"},
		{[]string{" padded ", "", "  ", "end"}, "padded end"},
		{nil, ""},
	}
	for _, tt := range tests {
		var spans []doctree.TextSpan
		for _, s := range tt.spans {
			spans = append(spans, doctree.TextSpan{Content: s})
		}
		if got := JoinSpans(spans); got != tt.want {
			t.Errorf("JoinSpans(%q) = %q, want %q", tt.spans, got, tt.want)
		}
	}
}
