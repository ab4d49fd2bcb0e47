// Package httpapi exposes the operator and client-facing REST surface
// (spec.md §6): fetch job submission/readback, the CAPTCHA task API, and
// the shared event-stream notification channel.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/apperrors"
	"github.com/titanscrape/titan/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn(logging.HTTPAPI, "failed to encode response body", zap.Error(err))
	}
}

// writeError maps err to an HTTP status and a serialized apperrors.ScrapeError.
// Errors not already a *ScrapeError are wrapped as internal errors.
func writeError(w http.ResponseWriter, err error) {
	var scrapeErr *apperrors.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = apperrors.NewInternalError("unexpected error", err)
	}
	writeJSON(w, scrapeErr.HTTPStatus(), scrapeErr)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("malformed request body: " + err.Error())
	}
	return nil
}
