package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nordicgov/citizenship-review/pkg/api"
	"github.com/nordicgov/citizenship-review/pkg/auth"
	"github.com/nordicgov/citizenship-review/pkg/authz"
	"github.com/nordicgov/citizenship-review/pkg/queue"
)

const maxJSONBodyBytes = 1 << 20 // 1 MiB, generous for any JSON body this API accepts

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		api.WriteUnprocessableEntity(w, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// actor resolves the request's auth.Principal into an authz.Actor.
func actor(r *http.Request) (authz.Actor, error) {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		return authz.Actor{}, err
	}
	return authz.Actor{UserID: p.GetID(), IsReviewer: p.IsReviewerRole()}, nil
}

func pagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	return offset, limit
}

func queuePagination(offset, limit int) queue.Pagination {
	return queue.Pagination{Offset: offset, Limit: limit}
}
