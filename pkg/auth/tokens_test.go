package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nordicgov/citizenship-review/pkg/auth"
	"github.com/nordicgov/citizenship-review/pkg/domain"
)

func TestTokenManager_IssueAndParseRoundTrips(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", time.Hour)
	u := domain.User{ID: "u1", Email: "ola@example.no", IsReviewer: true}

	token, expiresAt, err := tm.Issue(u)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, "ola@example.no", claims.Email)
	require.True(t, claims.IsReviewer)
}

func TestTokenManager_RejectsTokenFromDifferentSecret(t *testing.T) {
	issuer := auth.NewTokenManager("secret-a", time.Hour)
	verifier := auth.NewTokenManager("secret-b", time.Hour)

	token, _, err := issuer.Issue(domain.User{ID: "u1"})
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	require.Error(t, err)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", -time.Minute)

	token, _, err := tm.Issue(domain.User{ID: "u1"})
	require.NoError(t, err)

	_, err = tm.Parse(token)
	require.Error(t, err)
}

func TestHashPassword_VerifyPassword_RoundTrips(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	require.True(t, auth.VerifyPassword(hash, "correct horse battery staple"))
	require.False(t, auth.VerifyPassword(hash, "wrong password"))
}
