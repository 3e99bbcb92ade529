package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
	"github.com/nordicgov/citizenship-review/pkg/domain"
)

func TestCreateCase_InsertsAndAudits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cases")).
		WithArgs(sqlmock.AnyArg(), "owner-1", "Ola Nordmann", "Norwegian", "", domain.StatusDraft, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "owner-1", domain.ActionCaseCreated, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c, err := s.CreateCase(context.Background(), "owner-1", NewCaseInput{ApplicantFullName: "Ola Nordmann", ApplicantNationality: "Norwegian"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDraft, c.Status)
	require.Equal(t, "owner-1", c.OwnerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCase_RollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cases")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err = s.CreateCase(context.Background(), "owner-1", NewCaseInput{ApplicantFullName: "X", ApplicantNationality: "Y"})
	require.Error(t, err)
	require.Equal(t, apperr.KindStorageError, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCase_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cases WHERE id=$1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = s.GetCase(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestApplyStatusTransition_RejectsInvalidEdge(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "applicant_full_name", "applicant_nationality", "notes", "status",
		"confidence_score", "risk_level", "recommendation_summary", "priority_score",
		"sla_due_at", "queued_at", "final_decision", "created_at", "updated_at",
	}).AddRow("case-1", "owner-1", "Ola Nordmann", "Norwegian", "", domain.StatusDraft,
		0.0, "", "", 0.0, nil, nil, "", now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM cases WHERE id=$1 FOR UPDATE")).
		WithArgs("case-1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err = s.ApplyStatusTransition(context.Background(), "case-1", domain.StatusApproved, "reviewer-1", domain.ActionReviewApproved, "", nil)
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_BuildsConditionalUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO case_locks")).
		WithArgs("case-1", "worker-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.AcquireLock(context.Background(), "case-1", "worker-1", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_ReturnsFalseWhenHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO case_locks")).
		WithArgs("case-1", "worker-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.AcquireLock(context.Background(), "case-1", "worker-2", 10*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplyReviewDecision_ClearsSLAAndSetsFinalDecision(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	now := time.Now().UTC()
	due := now.Add(48 * time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "applicant_full_name", "applicant_nationality", "notes", "status",
		"confidence_score", "risk_level", "recommendation_summary", "priority_score",
		"sla_due_at", "queued_at", "final_decision", "created_at", "updated_at",
	}).AddRow("case-1", "owner-1", "Ola Nordmann", "Norwegian", "", domain.StatusReviewReady,
		0.4, domain.RiskHigh, "", 80.0, due, now, "", now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM cases WHERE id=$1 FOR UPDATE")).
		WithArgs("case-1").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cases SET status=$1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cases SET final_decision=$1, sla_due_at=NULL")).
		WithArgs(domain.DecisionApproved, sqlmock.AnyArg(), "case-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c, err := s.ApplyReviewDecision(context.Background(), "case-1", domain.StatusApproved, "reviewer-1", domain.ActionReviewApproved, "Documents verified.", domain.DecisionApproved)
	require.NoError(t, err)
	require.Equal(t, domain.StatusApproved, c.Status)
	require.Equal(t, domain.DecisionApproved, c.FinalDecision)
	require.Nil(t, c.SLADueAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
