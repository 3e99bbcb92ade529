package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nordicgov/citizenship-review/pkg/auth"
	"github.com/nordicgov/citizenship-review/pkg/config"
	"github.com/nordicgov/citizenship-review/pkg/server"
	"github.com/nordicgov/citizenship-review/pkg/store"
)

func testServer(t *testing.T) (*server.Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &server.Server{
		Store:  store.New(db),
		Tokens: auth.NewTokenManager("test-secret", time.Hour),
		Config: &config.Config{
			AllowedContentTypes: []string{"application/pdf", "image/jpeg", "image/png", "image/webp"},
			MaxUploadBytes:      25 * 1024 * 1024,
		},
	}, mock
}

func TestHealth_OK(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness_OKWhenDBReachable(t *testing.T) {
	s, mock := testServer(t)
	mock.ExpectPing()

	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness_ServiceUnavailableWhenDBUnreachable(t *testing.T) {
	s, mock := testServer(t)
	mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestApplications_RejectsUnauthenticated(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateCase_AuthenticatedOwnerSucceeds(t *testing.T) {
	s, mock := testServer(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cases")).
		WithArgs(sqlmock.AnyArg(), "owner-1", "Ola Nordmann", "Norwegian", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	token, _, err := s.Tokens.Issue(testOwner())
	require.NoError(t, err)

	body := `{"applicant_full_name":"Ola Nordmann","applicant_nationality":"Norwegian","notes":""}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/", jsonBody(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCase_RejectsMissingFields(t *testing.T) {
	s, _ := testServer(t)
	token, _, err := s.Tokens.Issue(testOwner())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/", jsonBody(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQueueReview_RejectsNonReviewer(t *testing.T) {
	s, _ := testServer(t)
	token, _, err := s.Tokens.Issue(testOwner())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/queue/review", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)

	var problem struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&problem))
	require.NotEmpty(t, problem.Detail)
}
