package authz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nordicgov/citizenship-review/pkg/apperr"
)

func TestRequireOwnerOrReviewer_AllowsOwner(t *testing.T) {
	require.NoError(t, RequireOwnerOrReviewer(Actor{UserID: "u1"}, "u1"))
}

func TestRequireOwnerOrReviewer_AllowsReviewer(t *testing.T) {
	require.NoError(t, RequireOwnerOrReviewer(Actor{UserID: "u2", IsReviewer: true}, "u1"))
}

func TestRequireOwnerOrReviewer_RejectsUnrelatedIdentityAsNotFound(t *testing.T) {
	err := RequireOwnerOrReviewer(Actor{UserID: "u2"}, "u1")
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRequireOwner_RejectsReviewerWhoIsNotOwner(t *testing.T) {
	err := RequireOwner(Actor{UserID: "u2", IsReviewer: true}, "u1")
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRequireReviewer_RejectsOwner(t *testing.T) {
	err := RequireReviewer(Actor{UserID: "u1"})
	require.Error(t, err)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestRequireReviewer_AllowsReviewer(t *testing.T) {
	require.NoError(t, RequireReviewer(Actor{UserID: "u2", IsReviewer: true}))
}
