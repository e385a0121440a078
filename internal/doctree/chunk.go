package doctree

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/docchunk/internal/idgen"
)

// ErrInvalidChunk is returned by NewTextChunk when an invariant is violated.
var ErrInvalidChunk = errors.New("invalid chunk")

// ChunkMetadata records where a chunk came from.
type ChunkMetadata struct {
	DocumentID    string    `json:"document_id"`
	Filename      string    `json:"filename"`
	PageNumber    int       `json:"page_number"`
	ChapterNumber *int      `json:"chapter_number"`
	SectionName   *string   `json:"section_name"`
	StartPos      *Position `json:"start_pos"`
	EndPos        *Position `json:"end_pos"`
	// TokenCount always reflects the final content, overlap included.
	TokenCount int `json:"token_count"`
}

// TextChunk is the unit handed to embedding and storage.
//
// Chunks are built by NewTextChunk and treated as values; nothing in this
// module modifies a chunk after it has been returned to a caller.
type TextChunk struct {
	ID        string        `json:"chunk_id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewTextChunk validates content and metadata and stamps an id and creation time.
func NewTextChunk(content string, meta ChunkMetadata) (TextChunk, error) {
	c := TextChunk{
		ID:        idgen.New(),
		Content:   content,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return TextChunk{}, err
	}
	return c, nil
}

// Validate checks the chunk invariants.
func (c TextChunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidChunk)
	}
	if c.Metadata.PageNumber < 1 {
		return fmt.Errorf("%w: page number %d", ErrInvalidChunk, c.Metadata.PageNumber)
	}
	if c.Metadata.TokenCount <= 0 {
		return fmt.Errorf("%w: token count %d", ErrInvalidChunk, c.Metadata.TokenCount)
	}
	return nil
}

// WithPrefix returns a copy of c whose content starts with prefix, keeping the
// id and creation time. tokens is the token count of the combined content.
func (c TextChunk) WithPrefix(prefix string, tokens int) (TextChunk, error) {
	out := c
	out.Content = prefix + " " + c.Content
	out.Metadata.TokenCount = tokens
	if err := out.Validate(); err != nil {
		return TextChunk{}, err
	}
	return out, nil
}

// Record is the flat, serializable form of a chunk consumed by storage and
// citation display.
type Record struct {
	ChunkID       string    `json:"chunk_id"`
	DocumentID    string    `json:"document_id"`
	Content       string    `json:"content"`
	Filename      string    `json:"filename"`
	PageNumber    int       `json:"page_number"`
	ChapterNumber *int      `json:"chapter_number"`
	SectionName   *string   `json:"section_name"`
	StartPos      *Position `json:"start_pos"`
	EndPos        *Position `json:"end_pos"`
	TokenCount    int       `json:"token_count"`
	CreatedAt     string    `json:"created_at"`
}

// Record flattens the chunk for hand-off.
func (c TextChunk) Record() Record {
	return Record{
		ChunkID:       c.ID,
		DocumentID:    c.Metadata.DocumentID,
		Content:       c.Content,
		Filename:      c.Metadata.Filename,
		PageNumber:    c.Metadata.PageNumber,
		ChapterNumber: c.Metadata.ChapterNumber,
		SectionName:   c.Metadata.SectionName,
		StartPos:      c.Metadata.StartPos,
		EndPos:        c.Metadata.EndPos,
		TokenCount:    c.Metadata.TokenCount,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}
