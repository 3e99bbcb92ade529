// Package store is the Case Store: transactional Postgres persistence for
// Cases, Documents, RuleResults, and the append-only audit trail, plus the
// per-case row lock the Pipeline Orchestrator uses for its at-most-one
// processing guarantee.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
	"github.com/nordicgov/citizenship-review/pkg/domain"
)

// Store is the Postgres-backed Case Store.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB. The caller owns its lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Pagination bounds a list_cases read.
type Pagination struct {
	Offset int
	Limit  int
}

// NewCaseInput is the writable subset of Case fields at creation time.
type NewCaseInput struct {
	ApplicantFullName    string
	ApplicantNationality string
	Notes                string
}

// CasePatch is the writable subset of Case fields update_case may change.
// Derived fields (status, scores, sla_due_at, final_decision) are never
// accepted here; only the Pipeline Orchestrator and Decision Controller
// mutate those, through dedicated operations.
type CasePatch struct {
	ApplicantFullName    *string
	ApplicantNationality *string
	Notes                *string
}

// CreateCase inserts a new Case owned by ownerID in StatusDraft and audits
// case_created.
func (s *Store) CreateCase(ctx context.Context, ownerID string, in NewCaseInput) (*domain.Case, error) {
	now := time.Now().UTC()
	c := &domain.Case{
		ID:                   uuid.New().String(),
		OwnerID:              ownerID,
		ApplicantFullName:    in.ApplicantFullName,
		ApplicantNationality: in.ApplicantNationality,
		Notes:                in.Notes,
		Status:               domain.StatusDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cases (id, owner_id, applicant_full_name, applicant_nationality, notes, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, c.ID, c.OwnerID, c.ApplicantFullName, c.ApplicantNationality, c.Notes, c.Status, now)
		if err != nil {
			return apperr.Storage(err, "insert case")
		}
		return appendAuditTx(ctx, tx, c.ID, domain.ActionCaseCreated, ownerID, "", nil, now)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCase applies a partial patch to mutable fields and audits
// case_updated when anything actually changed.
func (s *Store) UpdateCase(ctx context.Context, caseID string, patch CasePatch, actorID string) (*domain.Case, error) {
	var updated *domain.Case
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := getCaseForUpdateTx(ctx, tx, caseID)
		if err != nil {
			return err
		}

		changed := false
		if patch.ApplicantFullName != nil && *patch.ApplicantFullName != c.ApplicantFullName {
			c.ApplicantFullName = *patch.ApplicantFullName
			changed = true
		}
		if patch.ApplicantNationality != nil && *patch.ApplicantNationality != c.ApplicantNationality {
			c.ApplicantNationality = *patch.ApplicantNationality
			changed = true
		}
		if patch.Notes != nil && *patch.Notes != c.Notes {
			c.Notes = *patch.Notes
			changed = true
		}
		if !changed {
			updated = c
			return nil
		}

		now := time.Now().UTC()
		c.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			UPDATE cases SET applicant_full_name=$1, applicant_nationality=$2, notes=$3, updated_at=$4
			WHERE id=$5
		`, c.ApplicantFullName, c.ApplicantNationality, c.Notes, now, caseID)
		if err != nil {
			return apperr.Storage(err, "update case")
		}
		if err := appendAuditTx(ctx, tx, caseID, domain.ActionCaseUpdated, actorID, "", nil, now); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetCase reads one Case by id.
func (s *Store) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	row := s.db.QueryRowContext(ctx, caseSelectColumns+` FROM cases WHERE id=$1`, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("case %s not found", caseID)
	}
	if err != nil {
		return nil, apperr.Storage(err, "get case")
	}
	return c, nil
}

// ListCases returns Cases owned by ownerID, or every Case when includeAll is
// true (reviewer scope), ordered by created_at DESC.
func (s *Store) ListCases(ctx context.Context, ownerID string, includeAll bool, p Pagination) ([]domain.Case, int, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		countRow *sql.Row
		rows     *sql.Rows
		err      error
	)
	if includeAll {
		countRow = s.db.QueryRowContext(ctx, `SELECT count(*) FROM cases`)
		rows, err = s.db.QueryContext(ctx, caseSelectColumns+` FROM cases ORDER BY created_at DESC OFFSET $1 LIMIT $2`, p.Offset, limit)
	} else {
		countRow = s.db.QueryRowContext(ctx, `SELECT count(*) FROM cases WHERE owner_id=$1`, ownerID)
		rows, err = s.db.QueryContext(ctx, caseSelectColumns+` FROM cases WHERE owner_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`, ownerID, p.Offset, limit)
	}
	if err != nil {
		return nil, 0, apperr.Storage(err, "list cases")
	}
	defer rows.Close()

	var total int
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, apperr.Storage(err, "count cases")
	}

	var out []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, apperr.Storage(err, "scan case")
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// NewDocument is the writable subset of Document fields at upload time. ID
// is caller-supplied because the artifact store must key the uploaded bytes
// by the same id before this row is inserted.
type NewDocument struct {
	ID            string
	DocumentType  string
	OriginalFname string
	ContentType   domain.ContentType
	SizeBytes     int64
	StorageHandle string
}

// AddDocument inserts a Document under caseID, transitioning Draft to
// DocumentsUploaded on the case's first upload, and audits
// document_uploaded.
func (s *Store) AddDocument(ctx context.Context, caseID string, in NewDocument, actorID string) (*domain.Document, error) {
	now := time.Now().UTC()
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	d := &domain.Document{
		ID:            id,
		CaseID:        caseID,
		DocumentType:  in.DocumentType,
		OriginalFname: in.OriginalFname,
		ContentType:   in.ContentType,
		SizeBytes:     in.SizeBytes,
		StorageHandle: in.StorageHandle,
		Status:        domain.DocumentUploaded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := getCaseForUpdateTx(ctx, tx, caseID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (id, case_id, document_type, original_filename, content_type, size_bytes, storage_handle, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		`, d.ID, d.CaseID, d.DocumentType, d.OriginalFname, d.ContentType, d.SizeBytes, d.StorageHandle, d.Status, now)
		if err != nil {
			return apperr.Storage(err, "insert document")
		}

		if c.Status == domain.StatusDraft {
			if err := transitionTx(ctx, tx, c, domain.StatusDocumentsUploaded, actorID, "", nil, now); err != nil {
				return err
			}
		}
		return appendAuditTx(ctx, tx, caseID, domain.ActionDocumentUploaded, actorID, "", domain.Metadata{"document_id": d.ID, "document_type": d.DocumentType}, now)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ReadDocuments returns every Document for a Case, oldest first.
func (s *Store) ReadDocuments(ctx context.Context, caseID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, document_type, original_filename, content_type, size_bytes, storage_handle, status,
		       coalesce(extracted_text, ''), extracted_fields, coalesce(failure_reason, ''), created_at, updated_at
		FROM documents WHERE case_id=$1 ORDER BY created_at ASC
	`, caseID)
	if err != nil {
		return nil, apperr.Storage(err, "read documents")
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.CaseID, &d.DocumentType, &d.OriginalFname, &d.ContentType, &d.SizeBytes,
			&d.StorageHandle, &d.Status, &d.ExtractedText, &d.ExtractedFields, &d.FailureReason, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, apperr.Storage(err, "scan document")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentResult persists one Document's extraction outcome.
func (s *Store) UpdateDocumentResult(ctx context.Context, documentID string, status domain.DocumentStatus, text string, fields domain.FieldBag, failureReason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status=$1, extracted_text=$2, extracted_fields=$3, failure_reason=$4, updated_at=$5
		WHERE id=$6
	`, status, text, fields, nullIfEmpty(failureReason), now, documentID)
	if err != nil {
		return apperr.Storage(err, "update document result")
	}
	return nil
}

// DerivedFields is the set of Case fields recomputed whenever RuleResults
// are replaced (spec.md §4.5).
type DerivedFields struct {
	ConfidenceScore       float64
	RiskLevel             domain.RiskLevel
	RecommendationSummary string
	PriorityScore         float64
	SLADueAt              *time.Time
}

// ReplaceRuleResults atomically swaps a Case's RuleResults and updates its
// derived fields.
func (s *Store) ReplaceRuleResults(ctx context.Context, caseID string, results []domain.RuleResult, derived DerivedFields) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_results WHERE case_id=$1`, caseID); err != nil {
			return apperr.Storage(err, "delete rule results")
		}
		for _, r := range results {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rule_results (id, case_id, rule_code, rule_name, passed, score, weight, rationale, evidence, evaluated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, uuid.New().String(), caseID, r.RuleCode, r.RuleName, r.Passed, r.Score, r.Weight, r.Rationale, r.Evidence, r.EvaluatedAt); err != nil {
				return apperr.Storage(err, "insert rule result")
			}
		}

		now := time.Now().UTC()
		_, err := tx.ExecContext(ctx, `
			UPDATE cases SET confidence_score=$1, risk_level=$2, recommendation_summary=$3, priority_score=$4, sla_due_at=$5, updated_at=$6
			WHERE id=$7
		`, derived.ConfidenceScore, derived.RiskLevel, derived.RecommendationSummary, derived.PriorityScore, derived.SLADueAt, now, caseID)
		if err != nil {
			return apperr.Storage(err, "update case derived fields")
		}
		return nil
	})
}

// ReadBreakdown returns the current RuleResults for a Case.
func (s *Store) ReadBreakdown(ctx context.Context, caseID string) ([]domain.RuleResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, rule_code, rule_name, passed, score, weight, rationale, evidence, evaluated_at
		FROM rule_results WHERE case_id=$1 ORDER BY weight DESC
	`, caseID)
	if err != nil {
		return nil, apperr.Storage(err, "read breakdown")
	}
	defer rows.Close()

	var out []domain.RuleResult
	for rows.Next() {
		var r domain.RuleResult
		if err := rows.Scan(&r.ID, &r.CaseID, &r.RuleCode, &r.RuleName, &r.Passed, &r.Score, &r.Weight, &r.Rationale, &r.Evidence, &r.EvaluatedAt); err != nil {
			return nil, apperr.Storage(err, "scan rule result")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplyStatusTransition enforces the §4.4 state graph and audits the
// transition under the given action.
func (s *Store) ApplyStatusTransition(ctx context.Context, caseID string, to domain.CaseStatus, actorID, action, reason string, metadata domain.Metadata) (*domain.Case, error) {
	var updated *domain.Case
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := getCaseForUpdateTx(ctx, tx, caseID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := transitionTx(ctx, tx, c, to, actorID, reason, metadata, now); err != nil {
			return err
		}
		if action != "" {
			if err := appendAuditTx(ctx, tx, caseID, action, actorID, reason, metadata, now); err != nil {
				return err
			}
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyReviewDecision transitions a Case per a reviewer's decision, sets
// final_decision, clears sla_due_at (spec.md §4.6 applies this on every
// outcome, including MoreInfoRequired, so the case's read-time priority
// recompute in pkg/queue no longer treats it as overdue against a window
// that has already served its purpose), and audits the decision.
func (s *Store) ApplyReviewDecision(ctx context.Context, caseID string, to domain.CaseStatus, actorID, action, reason string, finalDecision domain.FinalDecision) (*domain.Case, error) {
	var updated *domain.Case
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := getCaseForUpdateTx(ctx, tx, caseID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := transitionTx(ctx, tx, c, to, actorID, reason, nil, now); err != nil {
			return err
		}

		c.FinalDecision = finalDecision
		c.SLADueAt = nil
		_, err = tx.ExecContext(ctx, `UPDATE cases SET final_decision=$1, sla_due_at=NULL, updated_at=$2 WHERE id=$3`,
			finalDecision, now, caseID)
		if err != nil {
			return apperr.Storage(err, "set final decision")
		}

		if err := appendAuditTx(ctx, tx, caseID, action, actorID, reason, nil, now); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendAudit appends one immutable audit entry. It never fails except on a
// genuine storage error.
func (s *Store) AppendAudit(ctx context.Context, caseID, action, actorID, reason string, metadata domain.Metadata) error {
	return appendAuditTx(ctx, noTx{s.db}, caseID, action, actorID, reason, metadata, time.Now().UTC())
}

// ReadAuditTrail returns every AuditEvent for a Case, oldest first.
func (s *Store) ReadAuditTrail(ctx context.Context, caseID string) ([]domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, coalesce(actor_id, ''), action, coalesce(reason, ''), metadata, created_at
		FROM audit_events WHERE case_id=$1 ORDER BY created_at ASC
	`, caseID)
	if err != nil {
		return nil, apperr.Storage(err, "read audit trail")
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.CaseID, &e.ActorID, &e.Action, &e.Reason, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan audit event")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NextQueuedCase claims and returns the oldest Queued case not already
// claimed by another worker, using SKIP LOCKED so a bounded worker pool can
// dequeue concurrently without blocking on each other's row locks. It
// returns (nil, nil) when the queue is empty.
func (s *Store) NextQueuedCase(ctx context.Context) (*domain.Case, error) {
	var c *domain.Case
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, caseSelectColumns+`
			FROM cases WHERE status=$1 ORDER BY queued_at ASC NULLS LAST
			FOR UPDATE SKIP LOCKED LIMIT 1
		`, domain.StatusQueued)
		found, err := scanCase(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return apperr.Storage(err, "claim next queued case")
		}
		now := time.Now().UTC()
		if err := transitionTx(ctx, tx, found, domain.StatusProcessing, "", "", nil, now); err != nil {
			return err
		}
		if err := appendAuditTx(ctx, tx, found.ID, domain.ActionProcessingStarted, "", "", nil, now); err != nil {
			return err
		}
		c = found
		return nil
	})
	return c, err
}

// ListPendingManual returns every Case awaiting a reviewer decision
// (ReviewReady or MoreInfoRequired) — the Review Queue's source set.
func (s *Store) ListPendingManual(ctx context.Context) ([]domain.Case, error) {
	rows, err := s.db.QueryContext(ctx, caseSelectColumns+`
		FROM cases WHERE status IN ($1, $2)
	`, domain.StatusReviewReady, domain.StatusMoreInfoRequired)
	if err != nil {
		return nil, apperr.Storage(err, "list pending manual cases")
	}
	defer rows.Close()

	var out []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan pending manual case")
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdatePriorityScore persists a recomputed priority_score without touching
// any other Case field, used by the Review Queue's read-time recompute.
func (s *Store) UpdatePriorityScore(ctx context.Context, caseID string, score float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cases SET priority_score=$1 WHERE id=$2`, score, caseID)
	if err != nil {
		return apperr.Storage(err, "update priority score")
	}
	return nil
}

// CountDocuments returns how many Documents exist for a Case, used by
// queue_processing's NoDocuments guard.
func (s *Store) CountDocuments(ctx context.Context, caseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE case_id=$1`, caseID).Scan(&n)
	if err != nil {
		return 0, apperr.Storage(err, "count documents")
	}
	return n, nil
}

// Ping checks connectivity to the underlying database, used by the
// readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- internal helpers -------------------------------------------------

const caseSelectColumns = `
	SELECT id, owner_id, applicant_full_name, applicant_nationality, coalesce(notes, ''), status,
	       confidence_score, coalesce(risk_level, ''), coalesce(recommendation_summary, ''), priority_score,
	       sla_due_at, queued_at, coalesce(final_decision, ''), created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*domain.Case, error) {
	var c domain.Case
	var risk, summary, finalDecision string
	if err := row.Scan(&c.ID, &c.OwnerID, &c.ApplicantFullName, &c.ApplicantNationality, &c.Notes, &c.Status,
		&c.ConfidenceScore, &risk, &summary, &c.PriorityScore, &c.SLADueAt, &c.QueuedAt, &finalDecision,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.RiskLevel = domain.RiskLevel(risk)
	c.RecommendationSummary = summary
	c.FinalDecision = domain.FinalDecision(finalDecision)
	return &c, nil
}

func getCaseForUpdateTx(ctx context.Context, tx *sql.Tx, caseID string) (*domain.Case, error) {
	row := tx.QueryRowContext(ctx, caseSelectColumns+` FROM cases WHERE id=$1 FOR UPDATE`, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("case %s not found", caseID)
	}
	if err != nil {
		return nil, apperr.Storage(err, "get case for update")
	}
	return c, nil
}

func transitionTx(ctx context.Context, tx *sql.Tx, c *domain.Case, to domain.CaseStatus, actorID, reason string, metadata domain.Metadata, now time.Time) error {
	if !domain.CanTransition(c.Status, to) {
		return apperr.InvalidTransition("cannot transition case from %s to %s", c.Status, to)
	}

	var queuedAt any = c.QueuedAt
	if to == domain.StatusQueued {
		queuedAt = now
	}

	_, err := tx.ExecContext(ctx, `UPDATE cases SET status=$1, queued_at=$2, updated_at=$3 WHERE id=$4`, to, queuedAt, now, c.ID)
	if err != nil {
		return apperr.Storage(err, "apply status transition")
	}
	c.Status = to
	if to == domain.StatusQueued {
		c.QueuedAt = &now
	}
	c.UpdatedAt = now
	return nil
}

// execer is satisfied by both *sql.Tx and *sql.DB, letting AppendAudit reuse
// the same insert whether or not it is already inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type noTx struct{ db *sql.DB }

func (n noTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return n.db.ExecContext(ctx, query, args...)
}

func appendAuditTx(ctx context.Context, x execer, caseID, action, actorID, reason string, metadata domain.Metadata, now time.Time) error {
	_, err := x.ExecContext(ctx, `
		INSERT INTO audit_events (id, case_id, actor_id, action, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New().String(), caseID, nullIfEmpty(actorID), action, nullIfEmpty(reason), metadata, now)
	if err != nil {
		return apperr.Storage(err, "append audit event")
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage(err, "commit transaction")
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation; signup uses it to answer a duplicate email with 409.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
