package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/middleware"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageResponse is returned by endpoints with nothing else to report
type MessageResponse struct {
	Message string `json:"message"`
}

// Responder writes JSON bodies and maps domain errors to status codes
type Responder struct {
	logger *slog.Logger
	debug  bool
}

// NewResponder creates a responder. With debug set, internal error causes are echoed as details.
func NewResponder(logger *slog.Logger, debug bool) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{logger: logger, debug: debug}
}

// JSON writes v with the given status
func (rs *Responder) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// Error writes err as {error, message}
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	de := domain.AsError(err)
	status := de.Kind.HTTPStatus()

	body := ErrorResponse{Error: http.StatusText(status), Message: de.Message}
	if de.Kind == domain.KindInternal {
		body.Message = "Internal server error"
		rs.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		if rs.debug {
			if cause := errors.Unwrap(de); cause != nil {
				body.Details = cause.Error()
			} else {
				body.Details = err.Error()
			}
		}
	}

	rs.JSON(w, status, body)
}
