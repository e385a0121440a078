package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/docchunk/internal/doctree"
)

// DocumentRecord is the stored summary of a processed document.
type DocumentRecord struct {
	ID          string             `json:"document_id"`
	Filename    string             `json:"filename"`
	Title       string             `json:"title"`
	ContentHash string             `json:"content_hash"`
	TotalPages  int                `json:"total_pages"`
	Status      doctree.Status     `json:"status"`
	ChunkCount  int                `json:"chunk_count"`
	Structure   *doctree.Structure `json:"-"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewDocumentRecord summarizes doc for storage.
func NewDocumentRecord(doc *doctree.Document, contentHash string) DocumentRecord {
	now := time.Now().UTC()
	st, _ := doc.Structure()
	return DocumentRecord{
		ID:          doc.ID,
		Filename:    doc.Filename,
		Title:       doc.Title(),
		ContentHash: contentHash,
		TotalPages:  doc.TotalPages,
		Status:      doc.Status,
		Structure:   st,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

const documentColumns = `d.id, d.filename, d.title, d.content_hash, d.total_pages, d.status,
	d.structure, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)`

// SaveDocument inserts or replaces the document row. Existing chunks are kept.
func (s *Store) SaveDocument(ctx context.Context, rec DocumentRecord) error {
	var structure sql.NullString
	if rec.Structure != nil {
		b, err := json.Marshal(rec.Structure)
		if err != nil {
			return fmt.Errorf("marshal structure: %w", err)
		}
		structure = sql.NullString{String: string(b), Valid: true}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, title, content_hash, total_pages, status, structure, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			title = excluded.title,
			content_hash = excluded.content_hash,
			total_pages = excluded.total_pages,
			status = excluded.status,
			structure = excluded.structure,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Filename, rec.Title, rec.ContentHash, rec.TotalPages, string(rec.Status),
		structure, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save document %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateStatus sets the processing status of a document.
func (s *Store) UpdateStatus(ctx context.Context, id string, status doctree.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	return requireRow(res, id)
}

// GetDocument returns the document with its structure.
func (s *Store) GetDocument(ctx context.Context, id string) (DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, id)
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// FindByContentHash returns the most recent completed document with the
// given content hash.
func (s *Store) FindByContentHash(ctx context.Context, hash string) (DocumentRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d
		WHERE d.content_hash = ? AND d.status = ?
		ORDER BY d.created_at DESC LIMIT 1`, hash, string(doctree.StatusCompleted))
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, false, nil
	}
	if err != nil {
		return DocumentRecord{}, false, err
	}
	return rec, true, nil
}

// ListDocuments returns documents newest first.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]DocumentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents d
		ORDER BY d.created_at DESC, d.id LIMIT ? OFFSET ?`, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentRecord{}
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, rec)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return requireRow(res, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (DocumentRecord, error) {
	var (
		rec                  DocumentRecord
		status               string
		structure            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.Filename, &rec.Title, &rec.ContentHash, &rec.TotalPages,
		&status, &structure, &createdAt, &updatedAt, &rec.ChunkCount)
	if err != nil {
		return DocumentRecord{}, err
	}
	rec.Status = doctree.Status(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	if structure.Valid {
		var st doctree.Structure
		if err := json.Unmarshal([]byte(structure.String), &st); err != nil {
			return DocumentRecord{}, fmt.Errorf("decode structure of %s: %w", rec.ID, err)
		}
		rec.Structure = &st
	}
	return rec, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
