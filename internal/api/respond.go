package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tallybot/tallybot/internal/service"
)

// errorBody is the JSON shape of every failure response. The code is
// machine-readable so a chat front end can decide whether to re-prompt.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// writeError maps a service error to an HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	code := service.CodeOf(err)
	writeJSON(w, statusOf(code), errorBody{Error: errorDetail{
		Code:    string(code),
		Message: err.Error(),
	}})
}

func statusOf(code service.Code) int {
	switch code {
	case service.CodeInvalidArgument:
		return http.StatusBadRequest
	case service.CodeUnauthenticated:
		return http.StatusUnauthorized
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeFailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// badRequest writes a plain invalid_argument failure, for malformed
// requests that never reach the service layer.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Code:    string(service.CodeInvalidArgument),
		Message: message,
	}})
}
