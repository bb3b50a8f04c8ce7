package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

type SecretsHandler struct {
	SetToken func(account, token string) error
}

type setTokenReq struct {
	Account string `json:"account"`
	Token   string `json:"token"`
}

// SetSourceToken stores a bearer token for a source's tokenAccount. Only
// loopback callers are allowed.
func (h SecretsHandler) SetSourceToken(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r) {
		WriteError(w, r, http.StatusForbidden, "forbidden", "forbidden")
		return
	}

	var req setTokenReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if strings.TrimSpace(req.Account) == "" || strings.TrimSpace(req.Token) == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "account and token are required")
		return
	}

	if err := h.SetToken(req.Account, req.Token); err != nil {
		writeFailure(w, r, "keyring_error", errors.Wrap(err, "store token"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
