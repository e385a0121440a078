package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docchunk/internal/chunker"
	"github.com/dgallion1/docchunk/internal/doctree"
	"github.com/dgallion1/docchunk/internal/embed"
	"github.com/dgallion1/docchunk/internal/metrics"
	"github.com/dgallion1/docchunk/internal/parser"
	"github.com/dgallion1/docchunk/internal/store"
	"github.com/dgallion1/docchunk/internal/structure"
)

// DocumentStore is the persistence the worker needs. *store.Store satisfies it.
type DocumentStore interface {
	FindByContentHash(ctx context.Context, hash string) (store.DocumentRecord, bool, error)
	SaveDocument(ctx context.Context, rec store.DocumentRecord) error
	SaveChunks(ctx context.Context, documentID string, chunks []doctree.TextChunk, vectors [][]float32) error
	UpdateStatus(ctx context.Context, id string, status doctree.Status) error
}

// Deps bundles what a Worker uses. Embedder and Metrics may be nil.
type Deps struct {
	Store    DocumentStore
	Analyzer *structure.Analyzer
	Chunker  *chunker.Chunker
	Embedder embed.Embedder
	Metrics  *metrics.Metrics
	Log      *slog.Logger

	ParserOptions  parser.Options
	EmbedBatchSize int
	// Retry defaults to DefaultRetry when zero.
	Retry Retry
}

const failRecordTimeout = 5 * time.Second

// Worker processes a single document job.
type Worker struct {
	deps     Deps
	embedSem chan struct{}
}

// NewWorker creates a worker. embedSem bounds concurrent embedding calls
// across workers; nil means unbounded.
func NewWorker(deps Deps, embedSem chan struct{}) *Worker {
	if deps.Retry == (Retry{}) {
		deps.Retry = DefaultRetry()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Worker{deps: deps, embedSem: embedSem}
}

// Process runs the full pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.deps.Log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	start := time.Now()
	p, err := parser.ForFileOptions(job.Filename, w.deps.ParserOptions)
	if err != nil {
		w.fail(ctx, log, job, nil, "parsing", err)
		return
	}
	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		w.fail(ctx, log, job, nil, "parsing", fmt.Errorf("parse: %w", err))
		return
	}
	w.deps.Metrics.ObserveStage("parsing", start)
	job.SetDocument(doc.ID, doc.TotalPages)
	log = log.With("doc_id", doc.ID)

	text := flattenText(doc)
	if text == "" {
		text = string(job.FileData())
	}
	hash := ContentHashHex([]byte(text))
	job.SetContentHash(hash)

	// Phase 1.5: Dedup check
	if !job.Force {
		existing, found, err := w.deps.Store.FindByContentHash(ctx, hash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if found {
			log.Info("duplicate document, skipping", "existing_doc_id", existing.ID)
			job.MarkDuplicate(existing.ID)
			w.deps.Metrics.DocumentProcessed(string(StatusDupSkipped))
			return
		}
	}

	// Phase 2: Structure
	job.SetStatus(StatusStructuring, "structuring")
	start = time.Now()
	st, err := w.deps.Analyzer.Analyze(doc)
	if err != nil {
		w.fail(ctx, log, job, doc, "structuring", err)
		return
	}
	doc.AttachStructure(st)
	job.SetStructure(len(st.Sections), st.Confidence)
	w.deps.Metrics.ObserveStage("structuring", start)
	w.deps.Metrics.ObserveConfidence(st.Confidence)

	// Phase 3: Chunk
	job.SetStatus(StatusChunking, "chunking")
	start = time.Now()
	ch := w.deps.Chunker
	if job.ChunkConfig != nil {
		if ch, err = ch.WithConfig(*job.ChunkConfig); err != nil {
			w.fail(ctx, log, job, doc, "chunking", err)
			return
		}
	}
	chunks, err := ch.Chunk(doc)
	if err != nil {
		w.fail(ctx, log, job, doc, "chunking", err)
		return
	}
	job.SetTotalChunks(len(chunks))
	w.deps.Metrics.ObserveStage("chunking", start)
	w.deps.Metrics.ChunksEmitted(len(chunks))
	if len(chunks) == 0 {
		log.Warn("no chunks produced")
	} else {
		log.Info("chunked document", "chunks", len(chunks), "sections", len(st.Sections))
	}

	// Phase 4: Embed
	var vectors [][]float32
	if w.deps.Embedder != nil && len(chunks) > 0 {
		job.SetStatus(StatusEmbedding, "embedding")
		start = time.Now()
		vectors, err = w.embed(ctx, log, job, chunks)
		if err != nil {
			w.fail(ctx, log, job, doc, "embedding", err)
			return
		}
		w.deps.Metrics.ObserveStage("embedding", start)
	}

	// Phase 5: Store
	job.SetStatus(StatusStoring, "storing")
	start = time.Now()
	if err := w.persist(ctx, doc, hash, chunks, vectors); err != nil {
		w.fail(ctx, log, job, doc, "storing", err)
		return
	}
	w.deps.Metrics.ObserveStage("storing", start)

	doc.Status = doctree.StatusCompleted
	job.SetStatus(StatusCompleted, "done")
	w.deps.Metrics.DocumentProcessed(string(StatusCompleted))
	log.Info("document processed", "chunks", len(chunks), "embedded", len(vectors),
		"structure_confidence", st.Confidence)
}

func (w *Worker) embed(ctx context.Context, log *slog.Logger, job *Job, chunks []doctree.TextChunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	if w.embedSem != nil {
		select {
		case w.embedSem <- struct{}{}:
			defer func() { <-w.embedSem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	vecs, err := embed.EmbedAll(ctx, w.deps.Embedder, texts, w.deps.EmbedBatchSize, w.deps.Retry.policy(log, w, job))
	if err != nil {
		w.deps.Metrics.EmbeddingRequest("error")
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vecs, nil
}

// persist writes the document as processing, then its chunks, then marks it
// completed, so an interrupted run never shows as completed.
func (w *Worker) persist(ctx context.Context, doc *doctree.Document, hash string, chunks []doctree.TextChunk, vectors [][]float32) error {
	rec := store.NewDocumentRecord(doc, hash)
	rec.Status = doctree.StatusProcessing
	if err := w.deps.Store.SaveDocument(ctx, rec); err != nil {
		return err
	}
	if err := w.deps.Store.SaveChunks(ctx, doc.ID, chunks, vectors); err != nil {
		return err
	}
	return w.deps.Store.UpdateStatus(ctx, doc.ID, doctree.StatusCompleted)
}

// fail marks the job failed. A parsed document is recorded as failed too.
func (w *Worker) fail(ctx context.Context, log *slog.Logger, job *Job, doc *doctree.Document, phase string, err error) {
	log.Error(phase+" failed", "error", err)
	job.AddError(fmt.Sprintf("%s: %s", phase, err))
	job.SetStatus(StatusFailed, phase)
	w.deps.Metrics.DocumentProcessed(string(StatusFailed))

	if doc == nil {
		return
	}
	// Recorded even on shutdown so no row is left in processing.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failRecordTimeout)
	defer cancel()
	doc.Status = doctree.StatusFailed
	rec := store.NewDocumentRecord(doc, job.Snapshot().ContentHash)
	if serr := w.deps.Store.SaveDocument(saveCtx, rec); serr != nil {
		log.Warn("record failed document", "error", serr)
	}
}

// flattenText joins the text of every page for hashing.
func flattenText(doc *doctree.Document) string {
	var sb strings.Builder
	for _, p := range doc.Pages {
		text := chunker.JoinSpans(p.Spans)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return sb.String()
}
