package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docoutline/internal/chunker"
	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/outline"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/pathstore"
	"github.com/dgallion1/docoutline/internal/stats"
)

// Store is the subset of the pathstore client the pipeline writes through.
type Store interface {
	PutNode(ctx context.Context, key string, req pathstore.NodeRequest) error
	ListChildren(ctx context.Context, key string, limit int) ([]pathstore.ListChildrenResponse, error)
	PutLink(ctx context.Context, req pathstore.LinkRequest) error
}

// WorkerConfig holds per-worker tuning.
type WorkerConfig struct {
	Chunk              chunker.Config
	ParseWorkers       int
	MaxLines           int
	MaxConcurrentStore int
	PDFFallback        bool
}

// Worker processes a single document job.
type Worker struct {
	store    Store
	catalogs *marker.Registry
	stats    *stats.ParseStats
	log      *slog.Logger
	cfg      WorkerConfig
	tracer   trace.Tracer
	backoff  func(int) time.Duration
}

// NewWorker creates a worker that writes through store.
func NewWorker(store Store, catalogs *marker.Registry, st *stats.ParseStats, log *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = 1
	}
	return &Worker{
		store:    store,
		catalogs: catalogs,
		stats:    st,
		log:      log,
		cfg:      cfg,
		tracer:   otel.Tracer("github.com/dgallion1/docoutline/internal/pipeline"),
		backoff:  Backoff,
	}
}

// DocumentPrefix is the pathstore prefix holding one stored document.
func DocumentPrefix(collection, docID string) string {
	return fmt.Sprintf("corpus/%s/documents/%s", collection, docID)
}

// HashIndexPrefix lists the documents stored with a given content hash.
func HashIndexPrefix(collection, hash string) string {
	return fmt.Sprintf("corpus/%s/by_hash/%s", collection, hash)
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	ctx, span := w.tracer.Start(ctx, "ingest", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("doc.id", job.DocID),
		attribute.String("doc.filename", job.Filename),
	))
	defer span.End()

	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "collection", job.Collection)
	fail := func(phase string, err error) {
		log.Error(phase+" failed", "error", err)
		job.AddError(fmt.Sprintf("%s: %s", phase, err))
		job.SetStatus(StatusFailed, phase)
		span.RecordError(err)
		span.SetStatus(codes.Error, phase)
	}

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	doc, err := w.parse(ctx, job)
	if err != nil {
		fail("parsing", err)
		return
	}
	job.releaseFileData()
	if job.Title != "" {
		doc.Title = job.Title
	}

	cat, err := w.catalogs.Lookup(job.Catalog)
	if err != nil {
		fail("outlining", err)
		return
	}

	// Hash the extracted text under the catalog, since the same text
	// outlines differently with another catalog.
	job.mu.Lock()
	job.ContentHash = ContentHashHex([]byte(cat.Name() + "\n" + strings.Join(doc.Lines(), "\n")))
	job.mu.Unlock()

	// Phase 1.5: Dedup check
	exists, existingDocID, err := w.checkDuplicate(ctx, job)
	if err != nil {
		log.Warn("dedup check failed, proceeding", "error", err)
	} else if exists {
		log.Info("duplicate document, skipping", "existing_doc_id", existingDocID)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 2: Outline
	job.SetStatus(StatusOutlining, "outlining")
	trees, hadErrors, err := w.outline(ctx, log, cat, doc, job)
	if err != nil {
		fail("outlining", err)
		return
	}

	// Phase 3: Chunk
	job.SetStatus(StatusChunking, "chunking")
	chunks := chunker.Flatten(trees, w.cfg.Chunk.Fill(cat.Policy()))
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks), "paragraphs", len(trees))
	if len(chunks) == 0 {
		fail("chunking", errors.New("no extractable content"))
		return
	}

	// Phase 4: Store
	job.SetStatus(StatusStoring, "storing")
	stored, storeErrs := w.storeChunks(ctx, log, job, doc, chunks)
	if storeErrs {
		hadErrors = true
	}
	// A document with no stored chunks is not indexed, so a resubmission
	// is not skipped as a duplicate.
	if stored > 0 {
		w.storeIndex(ctx, log, job, doc, cat.Name(), stored, len(chunks))
	}

	switch {
	case hadErrors && stored > 0:
		job.SetStatus(StatusPartial, "done")
	case stored == 0:
		fail("storing", errors.New("no chunks stored"))
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

func (w *Worker) parse(ctx context.Context, job *Job) (*doctree.Document, error) {
	_, span := w.tracer.Start(ctx, "parse")
	defer span.End()

	p, err := parser.ForFile(job.Filename)
	if err != nil {
		return nil, err
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = w.cfg.PDFFallback
	}
	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	span.SetAttributes(attribute.Int("doc.blocks", len(doc.Blocks)))
	return doc, nil
}

// outline builds one tree per paragraph. Invariant violations are recorded
// on the job and reported through hadErrors; the fallback trees are kept.
func (w *Worker) outline(ctx context.Context, log *slog.Logger, cat *marker.PatternCatalog, doc *doctree.Document, job *Job) ([]*doctree.Tree, bool, error) {
	ctx, span := w.tracer.Start(ctx, "outline", trace.WithAttributes(attribute.String("catalog", cat.Name())))
	defer span.End()

	start := time.Now()
	p := outline.New(cat, log, outline.WithWorkers(w.cfg.ParseWorkers), outline.WithMaxLines(w.cfg.MaxLines))
	trees, err := p.ParseDocument(ctx, doc)
	if trees == nil {
		return nil, false, err
	}

	fallbacks := 0
	for _, t := range trees {
		if t.Error != "" {
			fallbacks++
		}
	}
	job.SetOutline(len(trees), fallbacks)
	if w.stats != nil {
		w.stats.Record(stats.Run{
			Duration:   time.Since(start),
			Lines:      len(doc.Blocks),
			Paragraphs: len(trees),
			Fallbacks:  fallbacks,
		})
	}
	span.SetAttributes(attribute.Int("paragraphs", len(trees)), attribute.Int("fallbacks", fallbacks))

	if err != nil {
		job.AddError(fmt.Sprintf("outline: %s", err))
		span.RecordError(err)
		return trees, true, nil
	}
	return trees, false, nil
}

// storeChunks writes every chunk under the document prefix and links each
// stored chunk to its stored successor. It returns the stored count.
func (w *Worker) storeChunks(ctx context.Context, log *slog.Logger, job *Job, doc *doctree.Document, chunks []doctree.Chunk) (int, bool) {
	ctx, span := w.tracer.Start(ctx, "store", trace.WithAttributes(attribute.Int("chunks", len(chunks))))
	defer span.End()

	prefix := DocumentPrefix(job.Collection, job.DocID)
	keys := make([]string, len(chunks))
	for i := range chunks {
		keys[i] = prefix + "/chunks/" + generateULID()
	}

	ok := make([]bool, len(chunks))
	var mu sync.Mutex
	hadErrors := false

	var g errgroup.Group
	g.SetLimit(w.cfg.MaxConcurrentStore)
	for i, c := range chunks {
		g.Go(func() error {
			err := retry(ctx, log, w.backoff, "put chunk", func() error {
				return w.store.PutNode(ctx, keys[i], pathstore.NodeRequest{
					Value: map[string]any{
						"content":  c.Content,
						"metadata": c.Metadata,
						"doc_id":   job.DocID,
						"title":    doc.Title,
					},
					MemoryType: "semantic",
					Salience:   0.5,
					Source:     "docoutline:" + job.DocID,
				})
			})
			if err != nil {
				log.Error("store failed", "key", keys[i], "error", err)
				job.AddError(fmt.Sprintf("store %s: %s", keys[i], err))
				mu.Lock()
				hadErrors = true
				mu.Unlock()
				return nil
			}
			ok[i] = true
			job.IncrChunksStored()
			return nil
		})
	}
	g.Wait()

	stored := 0
	prev := -1
	for i := range chunks {
		if !ok[i] {
			continue
		}
		stored++
		if prev >= 0 {
			err := retry(ctx, log, w.backoff, "put link", func() error {
				return w.store.PutLink(ctx, pathstore.LinkRequest{
					From:    keys[prev],
					To:      keys[i],
					Weight:  1,
					Summary: "next",
				})
			})
			if err != nil {
				log.Warn("link write failed", "from", keys[prev], "to", keys[i], "error", err)
			}
		}
		prev = i
	}
	log.Info("storage complete", "stored", stored, "total", len(chunks))
	return stored, hadErrors
}

// storeIndex writes document metadata and the hash index used for dedup.
func (w *Worker) storeIndex(ctx context.Context, log *slog.Logger, job *Job, doc *doctree.Document, catalog string, stored, total int) {
	snap := job.Snapshot()
	meta := pathstore.NodeRequest{
		Value: map[string]any{
			"filename":      job.Filename,
			"title":         doc.Title,
			"catalog":       catalog,
			"law_like":      marker.LooksLikeLaw(doc.Lines()),
			"content_hash":  snap.ContentHash,
			"paragraphs":    snap.Progress.Paragraphs,
			"chunks_stored": stored,
			"total_chunks":  total,
			"created_at":    job.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.5,
		Source:     "docoutline:" + job.DocID,
	}
	metaKey := DocumentPrefix(job.Collection, job.DocID) + "/meta"
	if err := retry(ctx, log, w.backoff, "put meta", func() error {
		return w.store.PutNode(ctx, metaKey, meta)
	}); err != nil {
		log.Error("meta write failed", "error", err)
		job.AddError(fmt.Sprintf("meta: %s", err))
	}

	hashKey := HashIndexPrefix(job.Collection, snap.ContentHash) + "/" + job.DocID
	if err := w.store.PutNode(ctx, hashKey, pathstore.NodeRequest{
		Value: map[string]any{
			"filename":   job.Filename,
			"created_at": job.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.1,
		Source:     "docoutline:" + job.DocID,
	}); err != nil {
		log.Error("hash index write failed", "error", err)
	}
}

// checkDuplicate checks whether this content hash is already indexed in
// the collection.
func (w *Worker) checkDuplicate(ctx context.Context, job *Job) (bool, string, error) {
	children, err := w.store.ListChildren(ctx, HashIndexPrefix(job.Collection, job.Snapshot().ContentHash), 1)
	if err != nil {
		return false, "", err
	}
	if len(children) == 0 {
		return false, "", nil
	}
	return true, lastSegment(children[0].Key), nil
}

// lastSegment returns the final component of a pathstore key, which may be
// separated by dots or slashes.
func lastSegment(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '.' || r == '/' })
	if len(parts) == 0 {
		return key
	}
	return parts[len(parts)-1]
}
