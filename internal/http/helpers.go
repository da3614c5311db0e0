package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"finlight/internal/core"
	"finlight/internal/log"
)

// apiResponse is the envelope every JSON endpoint returns.
type apiResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest, log.ErrorTypeValidation
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized, log.ErrorTypeAuth
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, log.ErrorTypeForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, log.ErrorTypeNotFound
	case errors.Is(err, core.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, log.ErrorTypeDependency
	default:
		return http.StatusInternalServerError, log.ErrorTypeInternal
	}
}

// writeError logs err and writes the envelope. Dependency and internal
// failures are reported to the client without their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := statusFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithError(err, errType).ToSlice()

	var detail string
	switch status {
	case http.StatusServiceUnavailable:
		logger.ErrorContext(r.Context(), "Dependency unavailable", fields...)
		detail = "a required service is temporarily unavailable"
		w.Header().Set("Retry-After", "5")
	case http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "Unhandled error", fields...)
		detail = "internal error"
	default:
		logger.WarnContext(r.Context(), "Request rejected", fields...)
		detail = clientMessage(err)
	}

	writeJSON(w, status, apiResponse{
		Success: false,
		Message: http.StatusText(status),
		Errors:  []string{detail},
	})
}

// clientMessage drops the sentinel prefix from a wrapped validation error so
// the client sees what was wrong.
func clientMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{core.ErrInvalidArgument, core.ErrUnauthenticated, core.ErrForbidden, core.ErrNotFound} {
		prefix := sentinel.Error() + ": "
		if i := strings.Index(msg, prefix); i >= 0 {
			return msg[i+len(prefix):]
		}
	}
	return msg
}
