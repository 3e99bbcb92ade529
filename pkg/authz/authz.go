// Package authz is the authorization layer the API Surface calls before
// serving any Case-scoped operation: owner-or-reviewer reads, owner-only
// writes, and reviewer-only review/queue actions.
package authz

import "github.com/nordicgov/citizenship-review/pkg/apperr"

// Actor is the authenticated identity an operation is authorized against.
type Actor struct {
	UserID     string
	IsReviewer bool
}

// RequireOwnerOrReviewer authorizes Case-scoped reads shared by owners and
// reviewers (decision-breakdown, audit-trail, documents, advisory memos).
// A non-owner non-reviewer gets NotFound rather than Forbidden, so the
// response does not confirm the Case exists to an unrelated identity.
func RequireOwnerOrReviewer(actor Actor, ownerID string) error {
	if actor.IsReviewer || actor.UserID == ownerID {
		return nil
	}
	return apperr.NotFound("case not found")
}

// RequireOwner authorizes owner-only writes (update fields, upload a
// document).
func RequireOwner(actor Actor, ownerID string) error {
	if actor.UserID == ownerID {
		return nil
	}
	return apperr.NotFound("case not found")
}

// RequireOwnerOrReviewerWrite authorizes the one write both an owner and a
// reviewer may perform: queueing processing.
func RequireOwnerOrReviewerWrite(actor Actor, ownerID string) error {
	return RequireOwnerOrReviewer(actor, ownerID)
}

// RequireReviewer authorizes reviewer-only operations: review decisions and
// the review queue endpoints. Unlike the Case-scoped checks above, this is
// never ownership-relative, so a failure is reported as Forbidden.
func RequireReviewer(actor Actor) error {
	if actor.IsReviewer {
		return nil
	}
	return apperr.Forbidden("actor %s is not a reviewer", actor.UserID)
}
