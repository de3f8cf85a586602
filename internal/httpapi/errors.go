package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"elementd/internal/content"
	"elementd/internal/events"
	"elementd/internal/lifecycle"
	"elementd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps well-known errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	var ve *events.ValidationError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case events.IsDestroyed(err), lifecycle.IsDestroyed(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, events.ErrElementNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, content.ErrNoSuitableRepresentation):
		return http.StatusNotAcceptable
	case errors.Is(err, content.ErrUnsupportedSource), content.LoadErrorCode(err) == content.CodeInvalidSource:
		return http.StatusUnprocessableEntity
	case content.IsSizeLimit(err):
		return http.StatusRequestEntityTooLarge
	case content.IsCanceled(err):
		return http.StatusServiceUnavailable
	case content.IsTimeout(err):
		return http.StatusGatewayTimeout
	case content.IsNotFound(err):
		return http.StatusNotFound
	case content.IsNetwork(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError maps err and writes it.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

// sendStatus maps a rejected SendEventResponse to a status code.
func sendStatus(res types.SendEventResponse) int {
	if res.Success {
		return http.StatusAccepted
	}
	switch res.Code {
	case types.SendNotFound:
		return http.StatusNotFound
	case types.SendInvalid:
		return http.StatusUnprocessableEntity
	case types.SendQueueFull:
		IncrementBackpressure("queue_full")
		return http.StatusTooManyRequests
	case types.SendUnknownPriority:
		return http.StatusBadRequest
	case types.SendNotAvailable:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
