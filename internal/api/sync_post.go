package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fieldsync/syncd/internal/domain"
	"github.com/fieldsync/syncd/internal/ingest"
)

// defaultDevUserID stands in for X-User-ID whenever the header is absent.
// The handler has no production mode and never rejects a request for a
// missing header.
const defaultDevUserID = "dev-user"

func (s *Server) handleSyncPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", nil)
		return
	}

	var overlays []domain.Overlay
	if err := json.Unmarshal(body, &overlays); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON array of overlays", nil)
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = defaultDevUserID
	}

	err = s.ingestor.Ingest(r.Context(), userID, overlays)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	var syncErr *ingest.SyncError
	if errors.As(err, &syncErr) {
		writeError(w, syncErr.HTTPStatus(), syncErr.Message, syncErr.Details)
		return
	}

	writeError(w, http.StatusInternalServerError, "internal error applying overlay batch", nil)
}
