package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/wa-gateway/internal/auth"
	"github.com/nerrad567/wa-gateway/internal/credentials"
	"github.com/nerrad567/wa-gateway/internal/dispatch"
	"github.com/nerrad567/wa-gateway/internal/media"
	"github.com/nerrad567/wa-gateway/internal/pairing"
	"github.com/nerrad567/wa-gateway/internal/session"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeTooLarge       = "payload_too_large"
	ErrCodeInvalidTenant  = "invalid_tenant"
	ErrCodeUnavailable    = "service_unavailable"
	ErrCodeTimeout        = "timeout"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// Gateway error codes. These are stable; clients switch on them.
const (
	ErrCodeAwaitingConnection  = "awaiting_connection"
	ErrCodeNoActiveConnection  = "no_active_connection"
	ErrCodeRecipientNotFound   = "recipient_not_found"
	ErrCodeInvalidRecipient    = "invalid_recipient"
	ErrCodeMissingParameters   = "missing_parameters"
	ErrCodePairingNotAvailable = "pairing_not_available"
	ErrCodeClientConstruction  = "client_construction_failed"
	ErrCodeUnsupportedMedia    = "unsupported_media"
	ErrCodeMediaNotFound       = "media_not_found"
	ErrCodeMediaFetch          = "media_fetch_failed"
)

// serviceError maps a domain error to its HTTP status, code and message.
// Messages for the connection and recipient errors keep the wording
// existing integrations match on.
func serviceError(err error) Error {
	switch {
	case errors.Is(err, session.ErrAwaitingConnection):
		return Error{http.StatusConflict, ErrCodeAwaitingConnection, "please wait a second"}
	case errors.Is(err, session.ErrNoActiveConnection):
		return Error{http.StatusConflict, ErrCodeNoActiveConnection, "please scan barcode"}
	case errors.Is(err, dispatch.ErrRecipientNotFound):
		return Error{http.StatusNotFound, ErrCodeRecipientNotFound, "number not exists"}
	case errors.Is(err, dispatch.ErrInvalidRecipientFormat):
		return Error{http.StatusBadRequest, ErrCodeInvalidRecipient, "invalid recipient format"}
	case errors.Is(err, dispatch.ErrMissingParameters):
		return Error{http.StatusBadRequest, ErrCodeMissingParameters, "missing required parameters"}
	case errors.Is(err, pairing.ErrPairingNotAvailable):
		return Error{http.StatusNotFound, ErrCodePairingNotAvailable, "qr code not available"}
	case errors.Is(err, session.ErrClientConstruction):
		return Error{http.StatusInternalServerError, ErrCodeClientConstruction, "failed to start session"}
	case errors.Is(err, dispatch.ErrUnsupportedMediaKind):
		return Error{http.StatusBadRequest, ErrCodeUnsupportedMedia, "unsupported media"}
	case errors.Is(err, media.ErrNotFound):
		return Error{http.StatusNotFound, ErrCodeMediaNotFound, "uploaded file not found"}
	case errors.Is(err, media.ErrInvalidSource):
		return Error{http.StatusBadRequest, ErrCodeValidation, "media_url must be an absolute http(s) url"}
	case errors.Is(err, media.ErrTooLarge):
		return Error{http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "media exceeds the size limit"}
	case errors.Is(err, media.ErrDownloadFailed):
		return Error{http.StatusBadGateway, ErrCodeMediaFetch, "failed to fetch media"}
	case errors.Is(err, credentials.ErrInvalidTenantID):
		return Error{http.StatusBadRequest, ErrCodeInvalidTenant, "invalid tenant id"}
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrTenantDenied):
		return Error{http.StatusForbidden, ErrCodeForbidden, err.Error()}
	case errors.Is(err, dispatch.ErrSendFailed):
		return Error{http.StatusInternalServerError, ErrCodeInternal, "failed send message"}
	case errors.Is(err, context.DeadlineExceeded):
		return Error{http.StatusGatewayTimeout, ErrCodeTimeout, "operation timed out"}
	case errors.Is(err, context.Canceled):
		return Error{http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled"}
	}
	return Error{http.StatusInternalServerError, ErrCodeInternal, "internal server error"}
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeServiceError writes the mapped response for a domain error.
func writeServiceError(w http.ResponseWriter, err error) {
	e := serviceError(err)
	writeJSON(w, e.Status, e)
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidation writes a 400 validation error response.
func writeValidation(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
