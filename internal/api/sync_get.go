package api

import (
	"net/http"

	"github.com/fieldsync/syncd/internal/canon"
)

func (s *Server) handleSyncGet(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}

	since := r.URL.Query().Get("since")
	if since == "" {
		since = canon.GenesisTime
	} else if _, err := canon.ParseTime(since); err != nil {
		writeError(w, http.StatusBadRequest, "since must be a second-precision ISO-8601 UTC instant", nil)
		return
	}

	serverTime := canon.FormatTime(s.clock.Now())

	bundle, err := s.projection.ReadBundle(r.Context(), tenantID, since, serverTime)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error reading sync bundle", nil)
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}
