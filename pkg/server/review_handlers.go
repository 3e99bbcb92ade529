package server

import (
	"net/http"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/api"
	"github.com/nordicgov/citizenship-review/pkg/authz"
	"github.com/nordicgov/citizenship-review/pkg/decision"
)

func (s *Server) handleReviewDecision(w http.ResponseWriter, r *http.Request) {
	act, err := actor(r)
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	if err := authz.RequireReviewer(act); err != nil {
		writeAppError(w, r, err)
		return
	}
	caseID := r.PathValue("id")

	var req reviewDecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := decision.SubmitReviewDecision(r.Context(), s.Store, caseID, decision.Action(req.Action), req.Reason, decision.Reviewer{
		ID:         act.UserID,
		IsReviewer: act.IsReviewer,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCaseExplainer(w http.ResponseWriter, r *http.Request) {
	act, err := actor(r)
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	caseID := r.PathValue("id")

	c, err := s.Store.GetCase(r.Context(), caseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := authz.RequireOwnerOrReviewer(act, c.OwnerID); err != nil {
		writeAppError(w, r, err)
		return
	}

	explanation, err := s.Advisor.CaseExplainer(r.Context(), caseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, explanation)
}

func (s *Server) handleEvidenceRecommendations(w http.ResponseWriter, r *http.Request) {
	act, err := actor(r)
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	caseID := r.PathValue("id")

	c, err := s.Store.GetCase(r.Context(), caseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := authz.RequireOwnerOrReviewer(act, c.OwnerID); err != nil {
		writeAppError(w, r, err)
		return
	}

	recommendation, err := s.Advisor.EvidenceRecommendations(r.Context(), caseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recommendation)
}

func (s *Server) handleQueueReview(w http.ResponseWriter, r *http.Request) {
	act, err := actor(r)
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	if err := authz.RequireReviewer(act); err != nil {
		writeAppError(w, r, err)
		return
	}

	offset, limit := pagination(r)
	items, total, err := s.Queue.List(r.Context(), queuePagination(offset, limit), time.Now().UTC())
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	resp := make([]queueItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, queueItemResponse{
			Case:              it.Case,
			IsOverdue:         it.IsOverdue,
			WaitingForSeconds: int64(it.WaitingFor.Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, listResponse[queueItemResponse]{Items: resp, Total: total})
}

func (s *Server) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	act, err := actor(r)
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	if err := authz.RequireReviewer(act); err != nil {
		writeAppError(w, r, err)
		return
	}

	metrics, err := s.Queue.Metrics(r.Context(), time.Now().UTC())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}
