// Package retrieve answers questions: vector search over the asker's
// collection, context expansion around each hit, and pseudonymization of
// person and location entities before anything leaves the engine.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuchat/docuchat/engine/annotate"
	"github.com/docuchat/docuchat/engine/anonymize"
	"github.com/docuchat/docuchat/engine/catalog"
	"github.com/docuchat/docuchat/engine/domain"
	"github.com/docuchat/docuchat/engine/semantic"
	"github.com/docuchat/docuchat/pkg/fn"
	"github.com/docuchat/docuchat/pkg/metrics"
)

// Searcher is the slice of the vector store retrieval needs.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]semantic.Hit, error)
}

// Options tune one retrieval service instance.
type Options struct {
	// MaxResults caps the number of vector hits per question.
	MaxResults int
	// ContextBefore and ContextAfter are the section window half-widths.
	ContextBefore int
	ContextAfter  int
	// HitWorkers bounds the goroutines preparing hits concurrently.
	HitWorkers int
	// Tracked selects which entity labels get pseudonymized.
	Tracked anonymize.Tracked
}

// DefaultOptions mirror the deployed defaults: three hits, five sections of
// context either side.
func DefaultOptions() Options {
	return Options{
		MaxResults:    3,
		ContextBefore: 5,
		ContextAfter:  5,
		HitWorkers:    4,
		Tracked:       anonymize.DefaultTracked(),
	}
}

// Service answers questions against one user's documents.
type Service struct {
	embedder  annotate.Embedder
	taggers   *annotate.Registry
	searcher  Searcher
	users     catalog.Users
	docs      catalog.Documents
	sections  catalog.Sections
	templates *TemplateStore
	opts      Options
	log       *slog.Logger

	questionsTotal *metrics.Counter
	hitsSkipped    *metrics.Counter
	answerLatency  *metrics.Histogram
}

// New builds a retrieval service. reg may be nil to disable metrics.
func New(
	embedder annotate.Embedder,
	taggers *annotate.Registry,
	searcher Searcher,
	store *catalog.Store,
	templates *TemplateStore,
	opts Options,
	log *slog.Logger,
	reg *metrics.Registry,
) *Service {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}
	if opts.HitWorkers <= 0 {
		opts.HitWorkers = DefaultOptions().HitWorkers
	}
	if opts.Tracked == nil {
		opts.Tracked = anonymize.DefaultTracked()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		embedder:  embedder,
		taggers:   taggers,
		searcher:  searcher,
		users:     store.Users,
		docs:      store.Documents,
		sections:  store.Sections,
		templates: templates,
		opts:      opts,
		log:       log,
	}
	if reg != nil {
		s.questionsTotal = reg.Counter("retrieve_questions_total", "Questions answered")
		s.hitsSkipped = reg.Counter("retrieve_hits_skipped_total", "Hits dropped for consistency gaps")
		s.answerLatency = reg.Histogram("retrieve_answer_seconds", "End-to-end answer latency", nil)
	}
	return s
}

// preparedHit carries everything gathered for one hit before
// pseudonymization. Preparation runs concurrently; pseudonymization does
// not, so the per-request pseudonym counters stay deterministic.
type preparedHit struct {
	hit      semantic.Hit
	file     string
	block    string
	before   string
	after    string
	blockAnn *domain.Annotation
	docAnn   *domain.Annotation
}

// AnswerQuestion runs the full retrieval pipeline for one question asked by
// the user with the given external identity. Embedding and search failures
// are fatal; a hit whose catalog rows have gone missing is logged and
// skipped. Zero surviving hits yield an empty fact list, not an error.
func (s *Service) AnswerQuestion(ctx context.Context, externalID, question string) (domain.Answer, error) {
	start := time.Now()
	if s.questionsTotal != nil {
		s.questionsTotal.Inc()
	}

	if err := domain.ValidateQuestion(externalID, question); err != nil {
		return domain.Answer{}, err
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return domain.Answer{}, err
	}
	// The asker's tagger only covers documents without a recorded
	// language; each hit is annotated with its own document's tagger.
	fallback, err := s.taggers.Lookup(user.Lang)
	if err != nil {
		return domain.Answer{}, err
	}

	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("embed question: %w", err)
	}

	hits, err := s.searcher.Search(ctx, domain.CollectionID(user.ExternalID), vector, s.opts.MaxResults)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("search: %w", err)
	}

	prepared := fn.ParMapResult(hits, s.opts.HitWorkers, func(hit semantic.Hit) fn.Result[preparedHit] {
		return s.prepare(ctx, fallback, hit)
	})

	mapping := anonymize.NewMapping()
	facts := make([]domain.Fact, 0, len(hits))
	for _, r := range prepared {
		p, err := r.Unwrap()
		if err != nil {
			if errors.Is(err, domain.ErrConsistencyGap) {
				s.log.WarnContext(ctx, "skipping hit", "user", user.ID, "error", err)
				if s.hitsSkipped != nil {
					s.hitsSkipped.Inc()
				}
				continue
			}
			return domain.Answer{}, err
		}

		res := anonymize.Pseudonymize(p.block, p.blockAnn.Entities, s.opts.Tracked, mapping)
		facts = append(facts, domain.Fact{
			Answer:           res.Text,
			File:             p.file,
			Score:            p.hit.Score,
			ContextBefore:    p.before,
			ContextAfter:     p.after,
			Entities:         p.docAnn.Entities,
			OriginalEntities: res.Used,
		})
	}

	if s.answerLatency != nil {
		s.answerLatency.Since(start)
	}
	s.log.InfoContext(ctx, "question answered",
		"user", user.ID, "hits", len(hits), "facts", len(facts),
		"pseudonyms", mapping.Len(), "elapsed", time.Since(start))

	return domain.Answer{Facts: facts, PromptTemplate: s.templates.Get()}, nil
}

// taggerFor picks the tagger for a document's language. Documents written
// before languages were recorded have none and use the asker's tagger.
func (s *Service) taggerFor(lang string, fallback annotate.Annotator) annotate.Annotator {
	if lang == "" {
		return fallback
	}
	t, err := s.taggers.Lookup(lang)
	if err != nil {
		return fallback
	}
	return t
}

// prepare resolves one hit's catalog rows, annotates the full document for
// the transparency entity list, expands context, and annotates the
// assembled block for pseudonymization. Annotation uses the document's
// language, not the asker's current preference.
func (s *Service) prepare(ctx context.Context, fallback annotate.Annotator, hit semantic.Hit) fn.Result[preparedHit] {
	section, err := s.sections.Get(ctx, hit.SectionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fn.Err[preparedHit](&domain.ConsistencyGapError{
				DocumentID: hit.DocumentID, SectionID: hit.SectionID, Cause: err,
			})
		}
		return fn.Err[preparedHit](err)
	}

	doc, err := s.docs.Get(ctx, section.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fn.Err[preparedHit](&domain.ConsistencyGapError{
				DocumentID: section.DocumentID, SectionID: section.ID, Cause: err,
			})
		}
		return fn.Err[preparedHit](err)
	}

	tagger := s.taggerFor(doc.Lang, fallback)
	docAnn, err := tagger.Annotate(ctx, doc.Text)
	if err != nil {
		return fn.Errf[preparedHit]("annotate document %s: %w", doc.ID, err)
	}

	siblings, err := s.sections.ListByDocument(ctx, doc.ID)
	if err != nil {
		return fn.Err[preparedHit](err)
	}
	before, after := ExpandContext(siblings, section.DocIndex, s.opts.ContextBefore, s.opts.ContextAfter)

	block := section.Content
	if before != "" {
		block += " " + before
	}
	if after != "" {
		block += " " + after
	}

	blockAnn, err := tagger.Annotate(ctx, block)
	if err != nil {
		return fn.Errf[preparedHit]("annotate context block of %s: %w", section.ID, err)
	}

	return fn.Ok(preparedHit{
		hit:      hit,
		file:     doc.Filename,
		block:    block,
		before:   before,
		after:    after,
		blockAnn: blockAnn,
		docAnn:   docAnn,
	})
}
