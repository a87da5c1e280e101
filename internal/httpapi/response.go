// Package httpapi is the HTTP/WebSocket transport over the Chat Facade,
// grounded on the teacher's api/v1 handlers and internal/gateway/handlers
// response helpers, trimmed to this core's operations (no SSE streaming,
// image attachments, or multi-agent delegation — those belong to features
// this core's Non-goals exclude).
package httpapi

import (
	"encoding/json"
	"net/http"

	"loom/internal/apperr"
)

// errorResponse is the JSON body written for any non-2xx response.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendJSON writes data as a JSON response with the given status code.
func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// sendError writes a structured error response.
func sendError(w http.ResponseWriter, status int, code apperr.Code, message string) {
	sendJSON(w, status, errorResponse{Error: errorDetail{Code: string(code), Message: message}})
}

// sendAppErr classifies err (an *apperr.Error, if the Chat Facade returned
// one) into an HTTP status code and writes it.
func sendAppErr(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeSessionNotFound, apperr.CodeNotFound, apperr.CodeToolNotFound:
		status = http.StatusNotFound
	case apperr.CodeValidationError, apperr.CodeToolInvalidArgs, apperr.CodeCLIArgument:
		status = http.StatusBadRequest
	case apperr.CodeProviderAuthFailed, apperr.CodeToolPermissionDenied:
		status = http.StatusForbidden
	case apperr.CodeProviderRateLimited:
		status = http.StatusTooManyRequests
	case apperr.CodeNetworkTimeout, apperr.CodeToolTimeout:
		status = http.StatusGatewayTimeout
	}
	sendError(w, status, code, err.Error())
}
