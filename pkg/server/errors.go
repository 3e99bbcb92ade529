package server

import (
	"net/http"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/api"
	"github.com/nordicgov/citizenship-review/pkg/apperr"
)

const readinessTimeout = 2 * time.Second

// writeAppError maps an apperr.Kind to the HTTP status the external
// interface contract names for it (spec.md §6/§7).
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		api.WriteErrorR(w, r, http.StatusNotFound, "Not Found", err.Error())
	case apperr.KindUnauthorized:
		api.WriteUnauthorized(w, err.Error())
	case apperr.KindForbidden:
		api.WriteForbidden(w, err.Error())
	case apperr.KindInvalidInput:
		api.WriteUnprocessableEntity(w, err.Error())
	case apperr.KindInvalidTransition, apperr.KindAlreadyProcessing, apperr.KindNoDocuments:
		api.WriteConflict(w, err.Error())
	case apperr.KindExtractionError, apperr.KindRuleEngineError, apperr.KindAdvisoryUnavail:
		api.WriteErrorR(w, r, http.StatusBadGateway, "Upstream Dependency Failed", err.Error())
	case apperr.KindStorageError:
		api.WriteInternal(w, err)
	default:
		api.WriteInternal(w, err)
	}
}
