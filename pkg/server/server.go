// Package server wires the Case Store, Pipeline Orchestrator, Review Queue,
// Decision Controller, and AI Advisory behind the versioned HTTP surface
// named in the external interface contract. It is the one package allowed
// to depend on both pkg/api (transport helpers) and pkg/auth (principal
// extraction) — those two packages cannot depend on each other, so the
// composition root lives here instead of in either.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nordicgov/citizenship-review/pkg/advisory"
	"github.com/nordicgov/citizenship-review/pkg/artifacts"
	"github.com/nordicgov/citizenship-review/pkg/auth"
	"github.com/nordicgov/citizenship-review/pkg/config"
	"github.com/nordicgov/citizenship-review/pkg/observability"
	"github.com/nordicgov/citizenship-review/pkg/orchestrator"
	"github.com/nordicgov/citizenship-review/pkg/queue"
	"github.com/nordicgov/citizenship-review/pkg/store"
)

// Server holds every collaborator a handler may need. It has no behavior of
// its own beyond routing; each operation is implemented by the pipeline
// package that owns it.
type Server struct {
	Store        *store.Store
	Documents    artifacts.Store
	Orchestrator *orchestrator.Orchestrator
	Queue        *queue.Queue
	Advisor      *advisory.Advisor
	Tokens       *auth.TokenManager
	Config       *config.Config
	Obs          *observability.Provider
	Log          *slog.Logger
}

// Routes builds the complete, middleware-wrapped HTTP handler.
func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readiness", s.handleReadiness)

	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/users/signup", s.handleSignup)
	mux.HandleFunc("GET /api/v1/users/me", s.handleMe)

	mux.HandleFunc("POST /api/v1/applications/", s.handleCreateCase)
	mux.HandleFunc("GET /api/v1/applications/", s.handleListCases)
	mux.HandleFunc("PATCH /api/v1/applications/{id}", s.handleUpdateCase)
	mux.HandleFunc("POST /api/v1/applications/{id}/documents", s.handleAddDocument)
	mux.HandleFunc("GET /api/v1/applications/{id}/documents", s.handleListDocuments)
	mux.HandleFunc("POST /api/v1/applications/{id}/process", s.handleProcess)
	mux.HandleFunc("GET /api/v1/applications/{id}/decision-breakdown", s.handleBreakdown)
	mux.HandleFunc("GET /api/v1/applications/{id}/audit-trail", s.handleAuditTrail)
	mux.HandleFunc("POST /api/v1/applications/{id}/review-decision", s.handleReviewDecision)
	mux.HandleFunc("GET /api/v1/applications/{id}/case-explainer", s.handleCaseExplainer)
	mux.HandleFunc("GET /api/v1/applications/{id}/evidence-recommendations", s.handleEvidenceRecommendations)

	mux.HandleFunc("GET /api/v1/applications/queue/review", s.handleQueueReview)
	mux.HandleFunc("GET /api/v1/applications/queue/metrics", s.handleQueueMetrics)

	withAuth := auth.NewMiddleware(s.Tokens)(mux)
	return auth.RequestIDMiddleware(withAuth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
