// Package decision is the Decision Controller: it validates and applies a
// reviewer's terminal (or reopening) decision on a Case awaiting manual
// review.
package decision

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
	"github.com/nordicgov/citizenship-review/pkg/domain"
)

// Action is one of the three decisions a reviewer may submit.
type Action string

const (
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestMoreInfo Action = "request_more_info"
)

const (
	minReasonLen = 8
	maxReasonLen = 1000
)

// Reviewer is the minimal actor shape the Decision Controller authorizes
// against.
type Reviewer struct {
	ID         string
	IsReviewer bool
}

// CaseStore is the subset of the Case Store the Decision Controller drives.
type CaseStore interface {
	GetCase(ctx context.Context, caseID string) (*domain.Case, error)
	ApplyReviewDecision(ctx context.Context, caseID string, to domain.CaseStatus, actorID, action, reason string, finalDecision domain.FinalDecision) (*domain.Case, error)
}

// SubmitReviewDecision implements spec.md §4.6: validate, transition, audit.
func SubmitReviewDecision(ctx context.Context, store CaseStore, caseID string, action Action, reason string, actor Reviewer) (*domain.Case, error) {
	if !actor.IsReviewer {
		return nil, apperr.Forbidden("actor %s is not a reviewer", actor.ID)
	}

	to, auditAction, finalDecision, err := resolve(action)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(trimmed); n < minReasonLen || n > maxReasonLen {
		return nil, apperr.InvalidInput("reason must be between %d and %d characters after trimming, got %d", minReasonLen, maxReasonLen, n)
	}

	c, err := store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.StatusReviewReady && c.Status != domain.StatusMoreInfoRequired {
		return nil, apperr.InvalidTransition("case %s is in status %s, not eligible for a review decision", caseID, c.Status)
	}

	return store.ApplyReviewDecision(ctx, caseID, to, actor.ID, auditAction, trimmed, finalDecision)
}

func resolve(action Action) (to domain.CaseStatus, auditAction string, finalDecision domain.FinalDecision, err error) {
	switch action {
	case ActionApprove:
		return domain.StatusApproved, domain.ActionReviewApproved, domain.DecisionApproved, nil
	case ActionReject:
		return domain.StatusRejected, domain.ActionReviewRejected, domain.DecisionRejected, nil
	case ActionRequestMoreInfo:
		return domain.StatusMoreInfoRequired, domain.ActionMoreInfoRequested, domain.DecisionMoreInfoRequired, nil
	default:
		return "", "", "", apperr.InvalidInput("unknown review action %q", action)
	}
}
