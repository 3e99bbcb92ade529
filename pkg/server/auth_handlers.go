package server

import (
	"net/http"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/api"
	"github.com/nordicgov/citizenship-review/pkg/auth"
	"github.com/nordicgov/citizenship-review/pkg/store"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		api.WriteUnauthorized(w, "invalid email or password")
		return
	}
	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		api.WriteUnauthorized(w, "invalid email or password")
		return
	}
	if !u.IsActive {
		api.WriteForbidden(w, "account is not active")
		return
	}

	token, expiresAt, err := s.Tokens.Issue(*u)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		api.WriteUnprocessableEntity(w, "email and password are required")
		return
	}
	if len(req.Password) < 8 {
		api.WriteUnprocessableEntity(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	u, err := s.Store.CreateUser(r.Context(), store.NewUserInput{
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			api.WriteConflict(w, "an account with that email already exists")
			return
		}
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	u, err := s.Store.GetUser(r.Context(), p.GetID())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
