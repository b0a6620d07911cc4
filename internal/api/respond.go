package api

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the `{ "status":"error", "message": … }` shape used by the
// pull and ingest paths.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	writeJSON(w, status, errorBody{Status: "error", Message: message, Details: details})
}

// bootstrapBody is the `{ "error":"bootstrap_required", "message": … }`
// shape the v2 replay path uses, distinct from the pull/ingest error
// shape.
type bootstrapBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeBootstrapRequired(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, bootstrapBody{Error: "bootstrap_required", Message: message})
}
