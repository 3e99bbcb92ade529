package server

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/nordicgov/citizenship-review/pkg/api"
	"github.com/nordicgov/citizenship-review/pkg/authz"
	"github.com/nordicgov/citizenship-review/pkg/domain"
	"github.com/nordicgov/citizenship-review/pkg/store"
)

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	act, err := actor(r)
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}

	var req createCaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ApplicantFullName == "" || req.ApplicantNationality == "" {
		api.WriteUnprocessableEntity(w, "applicant_full_name and applicant_nationality are required")
		return
	}

	c, err := s.Store.CreateCase(r.Context(), act.UserID, store.NewCaseInput{
		ApplicantFullName:    req.ApplicantFullName,
		ApplicantNationality: req.ApplicantNationality,
		Notes:                req.Notes,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	act, err := actor(r)
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}

	offset, limit := pagination(r)
	cases, total, err := s.Store.ListCases(r.Context(), act.UserID, false, store.Pagination{Offset: offset, Limit: limit})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Case]{Items: cases, Total: total})
}

func (s *Server) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
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
	if err := authz.RequireOwner(act, c.OwnerID); err != nil {
		writeAppError(w, r, err)
		return
	}

	var req updateCaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := s.Store.UpdateCase(r.Context(), caseID, store.CasePatch{
		ApplicantFullName:    req.ApplicantFullName,
		ApplicantNationality: req.ApplicantNationality,
		Notes:                req.Notes,
	}, act.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
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
	if err := authz.RequireOwner(act, c.OwnerID); err != nil {
		writeAppError(w, r, err)
		return
	}

	maxBytes := s.Config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		api.WriteUnprocessableEntity(w, "request body exceeds the configured upload limit or is not valid multipart form data")
		return
	}

	documentType := r.FormValue("document_type")
	if documentType == "" {
		api.WriteUnprocessableEntity(w, "document_type is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.WriteUnprocessableEntity(w, "file is required")
		return
	}
	defer file.Close()

	contentType := domain.ContentType(header.Header.Get("Content-Type"))
	if !allowedContentType(contentType, s.Config.AllowedContentTypes) {
		api.WriteUnprocessableEntity(w, "unsupported content type: "+string(contentType))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		api.WriteUnprocessableEntity(w, "failed to read uploaded file")
		return
	}

	documentID := uuid.New().String()
	handle, err := s.Documents.Store(r.Context(), documentID, data)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	d, err := s.Store.AddDocument(r.Context(), caseID, store.NewDocument{
		ID:            documentID,
		DocumentType:  documentType,
		OriginalFname: header.Filename,
		ContentType:   contentType,
		SizeBytes:     int64(len(data)),
		StorageHandle: handle,
	}, act.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func allowedContentType(ct domain.ContentType, allowed []string) bool {
	for _, a := range allowed {
		if string(ct) == a {
			return true
		}
	}
	return false
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
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

	docs, err := s.Store.ReadDocuments(r.Context(), caseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Document]{Items: docs, Total: len(docs)})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
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
	if err := authz.RequireOwnerOrReviewerWrite(act, c.OwnerID); err != nil {
		writeAppError(w, r, err)
		return
	}

	var req processRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	if err := s.Orchestrator.QueueProcessing(r.Context(), caseID, act.UserID, req.ForceReprocess); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
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

	results, err := s.Store.ReadBreakdown(r.Context(), caseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Case    *domain.Case        `json:"case"`
		Results []domain.RuleResult `json:"rule_results"`
	}{Case: c, Results: results})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
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

	events, err := s.Store.ReadAuditTrail(r.Context(), caseID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.AuditEvent]{Items: events, Total: len(events)})
}
