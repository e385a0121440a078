package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgallion1/docchunk/internal/doctree"
	"github.com/dgallion1/docchunk/internal/embed"
)

// SearchResult is one chunk ranked by similarity to a query vector.
type SearchResult struct {
	Chunk doctree.Record `json:"chunk"`
	Score float64        `json:"score"`
}

// SaveChunks replaces the chunks of documentID with chunks, in order.
// vectors is either nil or aligned with chunks. Nothing is written if any
// insert fails.
func (s *Store) SaveChunks(ctx context.Context, documentID string, chunks []doctree.TextChunk, vectors [][]float32) (err error) {
	if vectors != nil && len(vectors) != len(chunks) {
		return fmt.Errorf("save chunks: %d vectors for %d chunks", len(vectors), len(chunks))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save chunks: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("save chunks: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, content, filename, page_number,
			chapter_number, section_name, start_pos, end_pos, token_count, created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save chunks: prepare: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		startPos, err := encodePosition(c.Metadata.StartPos)
		if err != nil {
			return err
		}
		endPos, err := encodePosition(c.Metadata.EndPos)
		if err != nil {
			return err
		}
		var chapter sql.NullInt64
		if c.Metadata.ChapterNumber != nil {
			chapter = sql.NullInt64{Int64: int64(*c.Metadata.ChapterNumber), Valid: true}
		}
		var section sql.NullString
		if c.Metadata.SectionName != nil {
			section = sql.NullString{String: *c.Metadata.SectionName, Valid: true}
		}
		var blob []byte
		if vectors != nil {
			blob = embed.EncodeVector(vectors[i])
		}

		_, err = stmt.ExecContext(ctx, c.ID, documentID, i, c.Content, c.Metadata.Filename,
			c.Metadata.PageNumber, chapter, section, startPos, endPos, c.Metadata.TokenCount,
			c.Record().CreatedAt, blob)
		if err != nil {
			return fmt.Errorf("save chunk %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save chunks: commit: %w", err)
	}
	return nil
}

// ListChunks returns the chunks of a document in emission order.
func (s *Store) ListChunks(ctx context.Context, documentID string) ([]doctree.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+`, NULL
		FROM chunks c WHERE c.document_id = ? ORDER BY c.ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := []doctree.Record{}
	for rows.Next() {
		rec, _, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search ranks embedded chunks by cosine similarity to query and returns
// the best k. An empty filename searches every document.
func (s *Store) Search(ctx context.Context, query []float32, k int, filename string) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	q := `SELECT ` + chunkColumns + `, c.embedding FROM chunks c WHERE c.embedding IS NOT NULL`
	args := []any{}
	if filename != "" {
		q += ` AND c.filename = ?`
		args = append(args, filename)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		rec, vec, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Chunk: rec, Score: embed.Cosine(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

const chunkColumns = `c.id, c.document_id, c.content, c.filename, c.page_number,
	c.chapter_number, c.section_name, c.start_pos, c.end_pos, c.token_count, c.created_at`

func scanChunk(row scanner) (doctree.Record, []float32, error) {
	var (
		rec              doctree.Record
		chapter          sql.NullInt64
		section          sql.NullString
		startPos, endPos sql.NullString
		blob             []byte
	)
	err := row.Scan(&rec.ChunkID, &rec.DocumentID, &rec.Content, &rec.Filename, &rec.PageNumber,
		&chapter, &section, &startPos, &endPos, &rec.TokenCount, &rec.CreatedAt, &blob)
	if err != nil {
		return doctree.Record{}, nil, fmt.Errorf("scan chunk: %w", err)
	}
	if chapter.Valid {
		n := int(chapter.Int64)
		rec.ChapterNumber = &n
	}
	if section.Valid {
		name := section.String
		rec.SectionName = &name
	}
	if rec.StartPos, err = decodePosition(startPos); err != nil {
		return doctree.Record{}, nil, err
	}
	if rec.EndPos, err = decodePosition(endPos); err != nil {
		return doctree.Record{}, nil, err
	}
	var vec []float32
	if blob != nil {
		vec = embed.DecodeVector(blob)
	}
	return rec, vec, nil
}

func encodePosition(p *doctree.Position) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode position: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodePosition(s sql.NullString) (*doctree.Position, error) {
	if !s.Valid {
		return nil, nil
	}
	var p doctree.Position
	if err := json.Unmarshal([]byte(s.String), &p); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	return &p, nil
}
