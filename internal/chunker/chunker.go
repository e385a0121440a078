// Package chunker packs page text into token-bounded, overlapping chunks
// tagged with their page and section.
package chunker

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docchunk/internal/doctree"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize    int     `json:"chunk_size" yaml:"chunk_size"`       // Token budget per chunk.
	OverlapRatio float64 `json:"overlap_ratio" yaml:"overlap_ratio"` // Share of ChunkSize repeated from the previous chunk.
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    512,
		OverlapRatio: 0.1,
	}
}

// OverlapSize is the overlap budget in tokens.
func (c Config) OverlapSize() int {
	return int(math.Floor(float64(c.ChunkSize) * c.OverlapRatio))
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("overlap ratio must be in [0, 1), got %v", c.OverlapRatio)
	}
	return nil
}

// ChunkingError reports that a document could not be chunked because the
// sentence segmenter or token counter failed. The whole document must be
// retried.
type ChunkingError struct {
	DocumentID string
	Cause      error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking document %s: %v", e.DocumentID, e.Cause)
}

func (e *ChunkingError) Unwrap() error { return e.Cause }

// IsChunkingError reports whether err is or wraps a ChunkingError.
func IsChunkingError(err error) bool {
	var ce *ChunkingError
	return errors.As(err, &ce)
}

// Chunker splits documents into chunks. It holds no per-document state and is
// safe for concurrent use as long as its counter and segmenter are.
type Chunker struct {
	cfg     Config
	counter TokenCounter
	seg     SentenceSegmenter
	log     *slog.Logger
}

// New creates a chunker.
func New(cfg Config, counter TokenCounter, seg SentenceSegmenter, log *slog.Logger) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counter == nil || seg == nil {
		return nil, errors.New("chunker: token counter and sentence segmenter are required")
	}
	return &Chunker{cfg: cfg, counter: counter, seg: seg, log: log}, nil
}

// Config returns the active configuration.
func (c *Chunker) Config() Config { return c.cfg }

// WithConfig returns a chunker sharing c's dependencies with a different
// configuration.
func (c *Chunker) WithConfig(cfg Config) (*Chunker, error) {
	return New(cfg, c.counter, c.seg, c.log)
}

// piece is a packed chunk before it becomes a TextChunk.
type piece struct {
	content string
	tokens  int
	page    int
	section *doctree.Section
}

// Chunk packs every page of doc and applies the cross-chunk overlap. Chunks
// come back in document order. On any segmenter or counter failure nothing is
// returned but a *ChunkingError.
func (c *Chunker) Chunk(doc *doctree.Document) ([]doctree.TextChunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}

	chunks, err := c.chunk(doc)
	if err != nil {
		c.log.Error("chunking failed", "document_id", doc.ID, "filename", doc.Filename, "error", err)
		return nil, &ChunkingError{DocumentID: doc.ID, Cause: err}
	}

	c.log.Debug("document chunked", "document_id", doc.ID, "chunks", len(chunks))
	return chunks, nil
}

func (c *Chunker) chunk(doc *doctree.Document) ([]doctree.TextChunk, error) {
	structure, _ := doc.Structure()

	var pieces []piece
	for _, page := range doc.Pages {
		var section *doctree.Section
		if sec, ok := structure.SectionForPage(page.Number); ok {
			section = &sec
		}

		packed, err := c.packPage(page, section)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Number, err)
		}
		pieces = append(pieces, packed...)
	}

	chunks := make([]doctree.TextChunk, 0, len(pieces))
	for _, p := range pieces {
		tc, err := doctree.NewTextChunk(p.content, metadataFor(doc, p))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, tc)
	}

	return c.applyOverlap(chunks, pieces)
}

// packPage greedily fills chunks with whole sentences of the page text.
func (c *Chunker) packPage(page doctree.Page, section *doctree.Section) ([]piece, error) {
	text := JoinSpans(page.Spans)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sentences, err := c.seg.Segment(text)
	if err != nil {
		return nil, fmt.Errorf("segment sentences: %w", err)
	}

	var out []piece
	current, currentTokens := "", 0
	emit := func() {
		out = append(out, piece{
			content: current,
			tokens:  currentTokens,
			page:    page.Number,
			section: section,
		})
		current, currentTokens = "", 0
	}

	// Counters are not additive across the joining space, so the budget is
	// checked against the joined candidate rather than a running sum.
	for _, sent := range sentences {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		candidate := sent
		if current != "" {
			candidate = current + " " + sent
		}
		n, err := c.counter.CountTokens(candidate)
		if err != nil {
			return nil, fmt.Errorf("count tokens: %w", err)
		}

		if n > c.cfg.ChunkSize && current != "" {
			emit()
			candidate = sent
			if n, err = c.counter.CountTokens(sent); err != nil {
				return nil, fmt.Errorf("count tokens: %w", err)
			}
		}
		current, currentTokens = candidate, n
	}
	if current != "" {
		emit()
	}
	return out, nil
}

func metadataFor(doc *doctree.Document, p piece) doctree.ChunkMetadata {
	meta := doctree.ChunkMetadata{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		PageNumber: p.page,
		TokenCount: p.tokens,
	}
	if p.section != nil {
		level, title := p.section.Level, p.section.Title
		meta.ChapterNumber = &level
		meta.SectionName = &title
	}
	return meta
}

// JoinSpans concatenates span contents into page text. Adjacent CJK text is
// joined directly; anything else gets a single space.
func JoinSpans(spans []doctree.TextSpan) string {
	var b strings.Builder
	var last rune
	for _, s := range spans {
		t := strings.TrimSpace(s.Content)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			first, _ := utf8.DecodeRuneInString(t)
			if !(isCJK(last) && isCJK(first)) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t)
		last, _ = utf8.DecodeLastRuneInString(t)
	}
	return b.String()
}
