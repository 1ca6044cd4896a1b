// Package ingest turns uploaded documents into catalog rows and vector
// entries: validation, section chunking, embedding, and storage run as a
// staged pipeline, one document at a time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuchat/docuchat/engine/annotate"
	"github.com/docuchat/docuchat/engine/catalog"
	"github.com/docuchat/docuchat/engine/domain"
	"github.com/docuchat/docuchat/engine/semantic"
	"github.com/docuchat/docuchat/pkg/fn"
	"github.com/docuchat/docuchat/pkg/metrics"
)

// VectorStore is the slice of the vector index ingestion needs.
type VectorStore interface {
	EnsureCollection(ctx context.Context, collection string) error
	DeleteCollection(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, records []semantic.Record) error
	DeleteByDocument(ctx context.Context, collection, documentID string) error
}

// Options tune one ingestion service instance.
type Options struct {
	// SentencesPerSection is the section granularity.
	SentencesPerSection int
	// EmbedWorkers bounds concurrent embedding calls per document.
	EmbedWorkers int
}

// DefaultOptions returns the deployed defaults.
func DefaultOptions() Options {
	return Options{
		SentencesPerSection: DefaultSentencesPerSection,
		EmbedWorkers:        4,
	}
}

// Service ingests, re-indexes, and deletes documents.
type Service struct {
	embedder annotate.Embedder
	taggers  *annotate.Registry
	store    *catalog.Store
	vectors  VectorStore
	opts     Options
	log      *slog.Logger

	docsIngested *metrics.Counter
	docsFailed   *metrics.Counter
	ingestTime   *metrics.Histogram
}

// New builds an ingestion service. reg may be nil to disable metrics.
func New(
	embedder annotate.Embedder,
	taggers *annotate.Registry,
	store *catalog.Store,
	vectors VectorStore,
	opts Options,
	log *slog.Logger,
	reg *metrics.Registry,
) *Service {
	if opts.SentencesPerSection <= 0 {
		opts.SentencesPerSection = DefaultSentencesPerSection
	}
	if opts.EmbedWorkers <= 0 {
		opts.EmbedWorkers = DefaultOptions().EmbedWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		embedder: embedder,
		taggers:  taggers,
		store:    store,
		vectors:  vectors,
		opts:     opts,
		log:      log,
	}
	if reg != nil {
		s.docsIngested = reg.Counter("ingest_documents_total", "Documents ingested")
		s.docsFailed = reg.Counter("ingest_failures_total", "Documents that failed ingestion")
		s.ingestTime = reg.Histogram("ingest_document_seconds", "Per-document ingestion latency", nil)
	}
	return s
}

// --- Pipeline stages ---

func (s *Service) validate() fn.Stage[Job, Job] {
	return func(_ context.Context, job Job) fn.Result[Job] {
		if err := domain.ValidateUpload(job.ExternalID, job.Filename, job.Text); err != nil {
			return fn.Err[Job](err)
		}
		return fn.Ok(job)
	}
}

func (s *Service) resolve() fn.Stage[Job, resolved] {
	return func(ctx context.Context, job Job) fn.Result[resolved] {
		user, err := s.store.Users.GetByExternalID(ctx, job.ExternalID)
		if err != nil {
			return fn.Err[resolved](err)
		}
		return fn.Ok(resolved{job: job, user: user})
	}
}

func (s *Service) persist() fn.Stage[resolved, persisted] {
	return func(ctx context.Context, r resolved) fn.Result[persisted] {
		doc, err := s.store.Documents.Create(ctx, domain.Document{
			UserID:   r.user.ID,
			Filename: r.job.Filename,
			Text:     r.job.Text,
			Lang:     r.user.Lang,
			FileSize: r.job.FileSize,
		})
		if err != nil {
			return fn.Errf[persisted]("persist document %s: %w", r.job.Filename, err)
		}
		return fn.Ok(persisted{resolved: r, doc: doc})
	}
}

// chunk segments the document into sections via the language tagger's
// sentence boundaries. Text the tagger cannot segment becomes one section.
func (s *Service) chunk() fn.Stage[persisted, chunked] {
	return func(ctx context.Context, p persisted) fn.Result[chunked] {
		tagger, err := s.taggers.Lookup(p.user.Lang)
		if err != nil {
			return fn.Err[chunked](err)
		}
		ann, err := tagger.Annotate(ctx, p.doc.Text)
		if err != nil {
			return fn.Errf[chunked]("annotate document %s: %w", p.doc.ID, err)
		}
		contents := SectionContents(ann.Sentences, s.opts.SentencesPerSection)
		if len(contents) == 0 {
			contents = []string{p.doc.Text}
		}
		return fn.Ok(chunked{persisted: p, contents: contents})
	}
}

func (s *Service) persistSections() fn.Stage[chunked, sectioned] {
	return func(ctx context.Context, c chunked) fn.Result[sectioned] {
		rows := make([]domain.Section, len(c.contents))
		for i, content := range c.contents {
			rows[i] = domain.Section{DocumentID: c.doc.ID, DocIndex: i, Content: content}
		}
		created, err := s.store.Sections.CreateBatch(ctx, rows)
		if err != nil {
			return fn.Err[sectioned](err)
		}
		return fn.Ok(sectioned{persisted: c.persisted, sections: created})
	}
}

func (s *Service) embed() fn.Stage[sectioned, embedded] {
	return func(ctx context.Context, sec sectioned) fn.Result[embedded] {
		results := fn.ParMapResult(sec.sections, s.opts.EmbedWorkers, func(row domain.Section) fn.Result[[]float32] {
			return fn.FromPair(s.embedder.Embed(ctx, row.Content))
		})
		vectors, err := fn.Collect(results).Unwrap()
		if err != nil {
			return fn.Errf[embedded]("embed sections of %s: %w", sec.doc.ID, err)
		}
		return fn.Ok(embedded{sectioned: sec, vectors: vectors})
	}
}

// index writes the section vectors. The document and section rows are
// already persisted at this point, so an index failure is a consistency gap
// rather than a clean abort.
func (s *Service) index() fn.Stage[embedded, domain.Document] {
	return func(ctx context.Context, e embedded) fn.Result[domain.Document] {
		collection := domain.CollectionID(e.user.ExternalID)
		records := make([]semantic.Record, len(e.sections))
		for i, row := range e.sections {
			records[i] = semantic.Record{
				SectionID:  row.ID,
				DocumentID: e.doc.ID,
				File:       e.doc.Filename,
				Lang:       e.doc.Lang,
				DocIndex:   row.DocIndex,
				Embedding:  e.vectors[i],
			}
		}
		if err := s.vectors.Upsert(ctx, collection, records); err != nil {
			return fn.Err[domain.Document](&domain.ConsistencyGapError{
				DocumentID: e.doc.ID,
				Cause:      err,
			})
		}
		return fn.Ok(e.doc)
	}
}

// loggedTap logs stage entry with duration on exit.
func loggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		start := time.Now()
		defer func() {
			log.DebugContext(ctx, "stage done", "stage", name, "elapsed", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

func (s *Service) pipeline() fn.Stage[Job, domain.Document] {
	validated := fn.Then(s.validate(), fn.TracedStage("ingest.resolve", s.resolve()))
	persistStage := fn.Then(validated, fn.TracedStage("ingest.persist", s.persist()))
	chunked := fn.Then(persistStage, fn.Then(loggedTap[persisted]("chunk", s.log), fn.TracedStage("ingest.chunk", s.chunk())))
	sectionStage := fn.Then(chunked, fn.TracedStage("ingest.sections", s.persistSections()))
	embedded := fn.Then(sectionStage, fn.Then(loggedTap[sectioned]("embed", s.log),
		fn.TracedStage("ingest.embed", fn.RetryStage(fn.DefaultRetry, s.embed()))))
	return fn.Then(embedded, fn.TracedStage("ingest.index", s.index()))
}

// Ingest runs one job through the full pipeline and returns the persisted
// document.
func (s *Service) Ingest(ctx context.Context, job Job) (domain.Document, error) {
	start := time.Now()
	doc, err := s.pipeline()(ctx, job).Unwrap()
	if err != nil {
		if s.docsFailed != nil {
			s.docsFailed.Inc()
		}
		return domain.Document{}, err
	}
	if s.docsIngested != nil {
		s.docsIngested.Inc()
	}
	if s.ingestTime != nil {
		s.ingestTime.Since(start)
	}
	s.log.InfoContext(ctx, "document ingested",
		"document", doc.ID, "file", doc.Filename, "elapsed", time.Since(start))
	return doc, nil
}

// IngestBatch ingests several files for one user. Failures are collected
// per file; the batch never aborts early.
func (s *Service) IngestBatch(ctx context.Context, jobs []Job) BatchResult {
	res := BatchResult{Failed: make(map[string]string)}
	for _, job := range jobs {
		if _, err := s.Ingest(ctx, job); err != nil {
			res.Failed[job.Filename] = err.Error()
			continue
		}
		res.Processed = append(res.Processed, job.Filename)
	}
	if len(res.Failed) == 0 {
		res.Failed = nil
	}
	return res
}

// ProvisionUser creates the user row and their empty vector collection.
func (s *Service) ProvisionUser(ctx context.Context, u domain.User) (domain.User, error) {
	if err := domain.ValidateUser(u); err != nil {
		return domain.User{}, err
	}
	if u.Lang == "" {
		u.Lang = "de"
	}
	created, err := s.store.Users.Create(ctx, u)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.vectors.EnsureCollection(ctx, domain.CollectionID(created.ExternalID)); err != nil {
		return domain.User{}, err
	}
	s.log.InfoContext(ctx, "user provisioned", "user", created.ID, "lang", created.Lang)
	return created, nil
}

// DeleteDocument removes a document everywhere: vector entries first, then
// the section and document rows. The catalog is the system of record, so
// its rows go last.
func (s *Service) DeleteDocument(ctx context.Context, externalID, documentID string) error {
	user, err := s.store.Users.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	doc, err := s.store.Documents.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.UserID != user.ID {
		return fmt.Errorf("document %s does not belong to user %s: %w", documentID, user.ID, domain.ErrNotFound)
	}

	collection := domain.CollectionID(user.ExternalID)
	if err := s.vectors.DeleteByDocument(ctx, collection, documentID); err != nil {
		return err
	}
	if _, err := s.store.Sections.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.store.Documents.Delete(ctx, documentID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "document deleted", "document", documentID, "user", user.ID)
	return nil
}

// Rebuild re-indexes every document of one user from the catalog. The
// collection is dropped and recreated, then each section is re-embedded and
// re-upserted. Per-document failures are logged and skipped so one corrupt
// document cannot block the rest of the rebuild.
func (s *Service) Rebuild(ctx context.Context, externalID string) (RebuildResult, error) {
	user, err := s.store.Users.GetByExternalID(ctx, externalID)
	if err != nil {
		return RebuildResult{}, err
	}
	collection := domain.CollectionID(user.ExternalID)

	if err := s.vectors.DeleteCollection(ctx, collection); err != nil {
		return RebuildResult{}, err
	}
	if err := s.vectors.EnsureCollection(ctx, collection); err != nil {
		return RebuildResult{}, err
	}

	docs, err := s.store.Documents.ListByUser(ctx, user.ID)
	if err != nil {
		return RebuildResult{}, err
	}

	var res RebuildResult
	for _, doc := range docs {
		n, err := s.reindexDocument(ctx, collection, doc)
		if err != nil {
			s.log.ErrorContext(ctx, "rebuild: document skipped", "document", doc.ID, "error", err)
			continue
		}
		res.Documents++
		res.Sections += n
	}
	s.log.InfoContext(ctx, "collection rebuilt",
		"user", user.ID, "documents", res.Documents, "sections", res.Sections)
	return res, nil
}

func (s *Service) reindexDocument(ctx context.Context, collection string, doc domain.Document) (int, error) {
	sections, err := s.store.Sections.ListByDocument(ctx, doc.ID)
	if err != nil {
		return 0, err
	}

	results := fn.ParMapResult(sections, s.opts.EmbedWorkers, func(row domain.Section) fn.Result[[]float32] {
		return fn.FromPair(s.embedder.Embed(ctx, row.Content))
	})
	vectors, err := fn.Collect(results).Unwrap()
	if err != nil {
		return 0, fmt.Errorf("embed sections of %s: %w", doc.ID, err)
	}

	records := make([]semantic.Record, len(sections))
	for i, row := range sections {
		records[i] = semantic.Record{
			SectionID:  row.ID,
			DocumentID: doc.ID,
			File:       doc.Filename,
			Lang:       doc.Lang,
			DocIndex:   row.DocIndex,
			Embedding:  vectors[i],
		}
	}
	if err := s.vectors.Upsert(ctx, collection, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// IsConsistencyGap reports whether an ingest error left the catalog and the
// index out of sync.
func IsConsistencyGap(err error) bool {
	return errors.Is(err, domain.ErrConsistencyGap)
}
