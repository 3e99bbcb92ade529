// Package orchestrator is the Pipeline Orchestrator: it moves a Case through
// extraction and rule evaluation under an at-most-one-worker guarantee, and
// reclaims work left behind by a crashed worker.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
	"github.com/nordicgov/citizenship-review/pkg/domain"
	"github.com/nordicgov/citizenship-review/pkg/extractor"
	"github.com/nordicgov/citizenship-review/pkg/priority"
	"github.com/nordicgov/citizenship-review/pkg/rules"
	"github.com/nordicgov/citizenship-review/pkg/store"
)

// CaseLocker is the per-case exclusive processing lock. Acquisition is
// non-blocking; an implementation backed by Redis (SET NX PX) or Postgres
// (conditional upsert, see pkg/store) are both structurally valid.
type CaseLocker interface {
	AcquireLock(ctx context.Context, caseID, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, caseID, holder string) error
	LockHeld(ctx context.Context, caseID string) (bool, error)
	ReclaimStale(ctx context.Context) ([]string, error)
}

// CaseStore is the subset of the Case Store the orchestrator drives.
type CaseStore interface {
	GetCase(ctx context.Context, caseID string) (*domain.Case, error)
	CountDocuments(ctx context.Context, caseID string) (int, error)
	NextQueuedCase(ctx context.Context) (*domain.Case, error)
	ReadDocuments(ctx context.Context, caseID string) ([]domain.Document, error)
	UpdateDocumentResult(ctx context.Context, documentID string, status domain.DocumentStatus, text string, fields domain.FieldBag, failureReason string) error
	ReplaceRuleResults(ctx context.Context, caseID string, results []domain.RuleResult, derived store.DerivedFields) error
	ApplyStatusTransition(ctx context.Context, caseID string, to domain.CaseStatus, actorID, action, reason string, metadata domain.Metadata) (*domain.Case, error)
	AppendAudit(ctx context.Context, caseID, action, actorID, reason string, metadata domain.Metadata) error
}

// DocumentReader fetches the raw bytes of an uploaded Document from wherever
// the Artifact Store placed them.
type DocumentReader interface {
	Read(ctx context.Context, storageHandle string) ([]byte, error)
}

// Options configures an Orchestrator.
type Options struct {
	PoolSize        int
	StaleLockTTL    time.Duration
	ReclaimInterval time.Duration
	SLAWindow       priority.SLAWindow
	WorkerIDPrefix  string
}

// Orchestrator runs the bounded worker pool that drains the Queued backlog.
type Orchestrator struct {
	store     CaseStore
	locker    CaseLocker
	extractor *extractor.Extractor
	docs      DocumentReader
	log       *slog.Logger
	opts      Options
}

// New builds an Orchestrator. log may be nil, in which case slog.Default() is
// used, matching the rest of the service's logging convention.
func New(store CaseStore, locker CaseLocker, ex *extractor.Extractor, docs DocumentReader, log *slog.Logger, opts Options) *Orchestrator {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	if opts.StaleLockTTL <= 0 {
		opts.StaleLockTTL = 10 * time.Minute
	}
	if opts.ReclaimInterval <= 0 {
		opts.ReclaimInterval = time.Minute
	}
	if opts.WorkerIDPrefix == "" {
		opts.WorkerIDPrefix = "worker"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{store: store, locker: locker, extractor: ex, docs: docs, log: log, opts: opts}
}

// QueueProcessing implements the enqueue contract of the Pipeline
// Orchestrator (spec §4.4): it validates the Case is eligible, transitions it
// to Queued, and audits processing_queued.
func (o *Orchestrator) QueueProcessing(ctx context.Context, caseID, actorID string, forceReprocess bool) error {
	c, err := o.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}

	switch c.Status {
	case domain.StatusQueued:
		// Already queued and not yet claimed by a worker: queue_processing
		// is idempotent here, so return success without a duplicate audit.
		return nil
	case domain.StatusDocumentsUploaded, domain.StatusReviewReady, domain.StatusMoreInfoRequired:
		n, err := o.store.CountDocuments(ctx, caseID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NoDocuments("case %s has no documents to process", caseID)
		}
	case domain.StatusProcessing:
		if !forceReprocess {
			return apperr.AlreadyProcessing("case %s is already processing", caseID)
		}
		held, err := o.locker.LockHeld(ctx, caseID)
		if err != nil {
			return err
		}
		if held {
			return apperr.AlreadyProcessing("case %s is already processing", caseID)
		}
	default:
		return apperr.InvalidTransition("cannot queue processing for case %s in status %s", caseID, c.Status)
	}

	_, err = o.store.ApplyStatusTransition(ctx, caseID, domain.StatusQueued, actorID, domain.ActionProcessingQueued, "",
		domain.Metadata{"force_reprocess": forceReprocess})
	return err
}

// Run starts the bounded worker pool and the stale-lock reclamation loop. It
// blocks until ctx is cancelled, then waits for in-flight work to finish.
func (o *Orchestrator) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < o.opts.PoolSize; i++ {
		go o.workerLoop(ctx, fmt.Sprintf("%s-%d", o.opts.WorkerIDPrefix, i), done)
	}
	go o.reclaimLoop(ctx)

	<-ctx.Done()
	for i := 0; i < o.opts.PoolSize; i++ {
		<-done
	}
}

func (o *Orchestrator) workerLoop(ctx context.Context, workerID string, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.claimAndProcess(ctx, workerID)
		}
	}
}

// claimAndProcess pulls at most one Queued case and runs it to completion.
// A polling claim rather than a push queue keeps backpressure simple: a
// saturated pool just leaves cases sitting in Queued (spec §4.4).
func (o *Orchestrator) claimAndProcess(ctx context.Context, workerID string) {
	c, err := o.store.NextQueuedCase(ctx)
	if err != nil {
		o.log.Error("claim next queued case", "error", err)
		return
	}
	if c == nil {
		return
	}

	ok, err := o.locker.AcquireLock(ctx, c.ID, workerID, o.opts.StaleLockTTL)
	if err != nil {
		o.log.Error("acquire case lock", "case_id", c.ID, "error", err)
		return
	}
	if !ok {
		// Another worker's lock is still live; leave the case in Processing
		// for its owner or for reclamation.
		return
	}
	defer func() {
		if err := o.locker.ReleaseLock(ctx, c.ID, workerID); err != nil {
			o.log.Error("release case lock", "case_id", c.ID, "error", err)
		}
	}()

	o.process(ctx, c, workerID)
}

func (o *Orchestrator) process(ctx context.Context, c *domain.Case, workerID string) (procErr error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("rule engine panic", "case_id", c.ID, "panic", r)
			procErr = fmt.Errorf("rule engine panic: %v", r)
		}
		if procErr != nil {
			o.fail(ctx, c.ID, procErr)
		}
	}()

	if ctx.Err() != nil {
		o.cancel(c.ID)
		return nil
	}

	docs, err := o.store.ReadDocuments(ctx, c.ID)
	if err != nil {
		return err
	}

	for i := range docs {
		if ctx.Err() != nil {
			o.cancel(c.ID)
			return nil
		}
		d := &docs[i]
		if d.Status != domain.DocumentUploaded && d.Status != domain.DocumentFailed {
			continue
		}
		o.extractOne(ctx, d)
	}

	if ctx.Err() != nil {
		o.cancel(c.ID)
		return nil
	}

	docs, err = o.store.ReadDocuments(ctx, c.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	breakdown := rules.Evaluate(*c, docs, now)

	queuedAt := now
	if c.QueuedAt != nil {
		queuedAt = *c.QueuedAt
	}
	slaDueAt := c.SLADueAt
	if slaDueAt == nil {
		d := o.opts.SLAWindow.DueAt(breakdown.RiskLevel, queuedAt)
		slaDueAt = &d
	}
	priorityScore := priority.Score(breakdown.ConfidenceScore, queuedAt, slaDueAt, now)

	if err := o.store.ReplaceRuleResults(ctx, c.ID, breakdown.Results, store.DerivedFields{
		ConfidenceScore:       breakdown.ConfidenceScore,
		RiskLevel:             breakdown.RiskLevel,
		RecommendationSummary: breakdown.RecommendationSummary,
		PriorityScore:         priorityScore,
		SLADueAt:              slaDueAt,
	}); err != nil {
		return apperr.RuleEngine(err, "persist rule results for case %s", c.ID)
	}

	if _, err := o.store.ApplyStatusTransition(ctx, c.ID, domain.StatusReviewReady, workerID, domain.ActionProcessingCompleted, "",
		domain.Metadata{"confidence_score": breakdown.ConfidenceScore, "risk_level": string(breakdown.RiskLevel)}); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) extractOne(ctx context.Context, d *domain.Document) {
	data, err := o.docs.Read(ctx, d.StorageHandle)
	if err != nil {
		o.markFailed(ctx, d, fmt.Sprintf("read document bytes: %v", err))
		return
	}

	result, err := o.extractor.Extract(ctx, d.ContentType, data, d.DocumentType)
	if err != nil {
		o.markFailed(ctx, d, err.Error())
		return
	}

	if err := o.store.UpdateDocumentResult(ctx, d.ID, domain.DocumentProcessed, result.ExtractedText, result.ExtractedFields, ""); err != nil {
		o.log.Error("persist extraction result", "document_id", d.ID, "error", err)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, d *domain.Document, reason string) {
	if err := o.store.UpdateDocumentResult(ctx, d.ID, domain.DocumentFailed, "", domain.FieldBag{}, reason); err != nil {
		o.log.Error("persist document failure", "document_id", d.ID, "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, caseID string, cause error) {
	if _, err := o.store.ApplyStatusTransition(ctx, caseID, domain.StatusDocumentsUploaded, "", domain.ActionProcessingFailed, "",
		domain.Metadata{"error_class": string(apperr.KindOf(cause))}); err != nil {
		o.log.Error("transition case back to DocumentsUploaded after failure", "case_id", caseID, "error", err)
	}
}

// cancel rolls a case back to DocumentsUploaded with a processing_cancelled
// audit when a shutdown signal interrupts processing: before the documents
// are read, between documents, or before rule evaluation. The worker's own ctx is already cancelled by this point, so the write uses a
// fresh context rather than inheriting it.
func (o *Orchestrator) cancel(caseID string) {
	writeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if _, err := o.store.ApplyStatusTransition(writeCtx, caseID, domain.StatusDocumentsUploaded, "", domain.ActionProcessingCancelled, "", nil); err != nil {
		o.log.Error("transition case back to DocumentsUploaded after cancellation", "case_id", caseID, "error", err)
	}
}

// reclaimLoop periodically reopens cases whose worker crashed mid-execution.
func (o *Orchestrator) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(o.opts.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := o.locker.ReclaimStale(ctx)
			if err != nil {
				o.log.Error("reclaim stale case locks", "error", err)
				continue
			}
			for _, id := range ids {
				if _, err := o.store.ApplyStatusTransition(ctx, id, domain.StatusQueued, "", domain.ActionProcessingRecovered, "", nil); err != nil {
					o.log.Error("reopen reclaimed case", "case_id", id, "error", err)
				}
			}
		}
	}
}
