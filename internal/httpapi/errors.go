package httpapi

import (
	"encoding/json"
	"net/http"

	"jobsync-engine/internal/logger"
)

// APIError is the body of every non-2xx JSON response.
type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// WriteJSON encodes v as the response body. Responses describe live engine
// state, so nothing is cacheable.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ComponentLogger("httpapi").Debugw("encode response", logger.FieldError, err)
	}
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var body APIError
	body.Error.Code = code
	body.Error.Message = message
	body.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, body)
}

// writeFailure reports err as a 500 and logs it with the request id.
func writeFailure(w http.ResponseWriter, r *http.Request, code string, err error) {
	rid := RequestIDFrom(r.Context())
	logger.ComponentLogger("httpapi").Errorw("request failed",
		"code", code, "path", r.URL.Path, "request_id", rid, logger.FieldError, err)
	WriteError(w, r, http.StatusInternalServerError, code, err.Error())
}
