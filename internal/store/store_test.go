package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dgallion1/docchunk/internal/doctree"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(id, filename, hash string) DocumentRecord {
	doc := &doctree.Document{
		ID:         id,
		Filename:   filename,
		TotalPages: 2,
		Status:     doctree.StatusCompleted,
		Metadata:   map[string]any{"title": "Guide"},
	}
	doc.AttachStructure(&doctree.Structure{
		Sections: []doctree.Section{
			{ID: 0, Title: "Chapter 1", Level: 1, StartPage: 1, EndPage: 2, Confidence: 0.8, Parent: doctree.NoSection},
		},
		Roots:           []doctree.SectionID{0},
		Confidence:      0.7,
		HeadingPatterns: []string{"chapter_en"},
		TotalHeadings:   1,
	})
	return NewDocumentRecord(doc, hash)
}

func testChunks(t *testing.T, docID, filename string, contents ...string) []doctree.TextChunk {
	t.Helper()
	chapter := 1
	section := "Chapter 1"
	var out []doctree.TextChunk
	for i, c := range contents {
		meta := doctree.ChunkMetadata{
			DocumentID: docID,
			Filename:   filename,
			PageNumber: i + 1,
			TokenCount: 3,
		}
		if i == 0 {
			meta.ChapterNumber = &chapter
			meta.SectionName = &section
			meta.StartPos = &doctree.Position{X: 72, Y: 100}
		}
		chunk, err := doctree.NewTextChunk(c, meta)
		if err != nil {
			t.Fatalf("NewTextChunk: %v", err)
		}
		out = append(out, chunk)
	}
	return out
}

func TestStoreDocumentRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	rec := testDocument("doc-1", "guide.pdf", "abc")
	if err := s.SaveDocument(ctx, rec); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "Guide" || got.Filename != "guide.pdf" || got.TotalPages != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Status != doctree.StatusCompleted {
		t.Errorf("status = %q", got.Status)
	}
	if got.Structure == nil || len(got.Structure.Sections) != 1 {
		t.Fatalf("structure not restored: %+v", got.Structure)
	}
	sec := got.Structure.Sections[0]
	if sec.Title != "Chapter 1" || sec.Parent != doctree.NoSection || sec.EndPage != 2 {
		t.Errorf("section = %+v", sec)
	}
	if got.Structure.Confidence != 0.7 {
		t.Errorf("confidence = %v", got.Structure.Confidence)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := openTest(t)
	_, err := s.GetDocument(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreFindByContentHash(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	failed := testDocument("doc-failed", "a.pdf", "same")
	failed.Status = doctree.StatusFailed
	if err := s.SaveDocument(ctx, failed); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.FindByContentHash(ctx, "same"); err != nil || ok {
		t.Fatalf("failed documents must not match: ok=%v err=%v", ok, err)
	}

	if err := s.SaveDocument(ctx, testDocument("doc-ok", "a.pdf", "same")); err != nil {
		t.Fatal(err)
	}
	rec, ok, err := s.FindByContentHash(ctx, "same")
	if err != nil || !ok {
		t.Fatalf("expected match: ok=%v err=%v", ok, err)
	}
	if rec.ID != "doc-ok" {
		t.Errorf("matched %q, want doc-ok", rec.ID)
	}
}

func TestStoreChunksInOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.SaveDocument(ctx, testDocument("doc-1", "guide.pdf", "h")); err != nil {
		t.Fatal(err)
	}
	chunks := testChunks(t, "doc-1", "guide.pdf", "first", "second", "third")
	if err := s.SaveChunks(ctx, "doc-1", chunks, nil); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}

	got, err := s.ListChunks(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Content != want {
			t.Errorf("chunk %d = %q, want %q", i, got[i].Content, want)
		}
	}
	first := got[0]
	if first.ChapterNumber == nil || *first.ChapterNumber != 1 {
		t.Errorf("chapter = %v", first.ChapterNumber)
	}
	if first.SectionName == nil || *first.SectionName != "Chapter 1" {
		t.Errorf("section = %v", first.SectionName)
	}
	if first.StartPos == nil || first.StartPos.X != 72 {
		t.Errorf("start pos = %v", first.StartPos)
	}
	if got[1].ChapterNumber != nil || got[1].SectionName != nil || got[1].StartPos != nil {
		t.Errorf("optional fields should stay null: %+v", got[1])
	}
	want := chunks[0].Record()
	if first.ChunkID != want.ChunkID || first.CreatedAt != want.CreatedAt || first.TokenCount != want.TokenCount {
		t.Errorf("record mismatch:\n got %+v\nwant %+v", first, want)
	}

	doc, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.ChunkCount != 3 {
		t.Errorf("chunk count = %d", doc.ChunkCount)
	}
}

func TestStoreSaveChunksAllOrNothing(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.SaveDocument(ctx, testDocument("doc-1", "guide.pdf", "h")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChunks(ctx, "doc-1", testChunks(t, "doc-1", "guide.pdf", "keep"), nil); err != nil {
		t.Fatal(err)
	}

	dup := testChunks(t, "doc-1", "guide.pdf", "a", "b")
	dup[1].ID = dup[0].ID
	if err := s.SaveChunks(ctx, "doc-1", dup, nil); err == nil {
		t.Fatal("expected duplicate id error")
	}

	got, err := s.ListChunks(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "keep" {
		t.Fatalf("failed save must leave previous chunks intact, got %+v", got)
	}
}

func TestStoreSaveChunksVectorMismatch(t *testing.T) {
	s := openTest(t)
	chunks := testChunks(t, "doc-1", "guide.pdf", "a", "b")
	err := s.SaveChunks(context.Background(), "doc-1", chunks, [][]float32{{1}})
	if err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestStoreSaveChunksRequiresDocument(t *testing.T) {
	s := openTest(t)
	chunks := testChunks(t, "ghost", "guide.pdf", "a")
	if err := s.SaveChunks(context.Background(), "ghost", chunks, nil); err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestStoreSearch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for _, d := range []struct{ id, file string }{{"d1", "a.pdf"}, {"d2", "b.pdf"}} {
		if err := s.SaveDocument(ctx, testDocument(d.id, d.file, d.id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveChunks(ctx, "d1", testChunks(t, "d1", "a.pdf", "east", "north"),
		[][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChunks(ctx, "d2", testChunks(t, "d2", "b.pdf", "northeast"),
		[][]float32{{1, 1}}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 2, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Content != "east" || results[1].Chunk.Content != "northeast" {
		t.Errorf("ranking = %q, %q", results[0].Chunk.Content, results[1].Chunk.Content)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores not descending: %v %v", results[0].Score, results[1].Score)
	}

	filtered, err := s.Search(ctx, []float32{1, 0}, 10, "b.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Chunk.Filename != "b.pdf" {
		t.Fatalf("filename filter failed: %+v", filtered)
	}
}

func TestStoreDeleteCascades(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.SaveDocument(ctx, testDocument("doc-1", "guide.pdf", "h")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChunks(ctx, "doc-1", testChunks(t, "doc-1", "guide.pdf", "a"), nil); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	chunks, err := s.ListChunks(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("chunks survived delete: %d", len(chunks))
	}
	if err := s.DeleteDocument(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestStoreListAndStatus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	rec := testDocument("doc-1", "guide.pdf", "h")
	rec.Status = doctree.StatusProcessing
	if err := s.SaveDocument(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, "doc-1", doctree.StatusFailed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := s.UpdateStatus(ctx, "missing", doctree.StatusFailed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	docs, err := s.ListDocuments(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Status != doctree.StatusFailed {
		t.Fatalf("unexpected list: %+v", docs)
	}
}

func TestStoreOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docchunk.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.SaveDocument(context.Background(), testDocument("doc-1", "g.pdf", "h")); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
