package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/freeeve/parley/internal/middleware"
)

// apiError is the body of every non-2xx response.
type apiError struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

// respond encodes v as the JSON body. Encoding failures are logged with the
// request logger since the status line is already sent.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Encode response failed")
	}
}

// fail writes an apiError. A non-nil cause is logged, never sent.
func fail(w http.ResponseWriter, r *http.Request, status int, msg string, cause error) {
	if cause != nil {
		zerolog.Ctx(r.Context()).Error().Err(cause).Int("status", status).Msg(msg)
	}
	respond(w, r, status, apiError{
		Error:     msg,
		Status:    status,
		RequestID: w.Header().Get(middleware.RequestIDHeader),
	})
}
