package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldsync/syncd/internal/domain"
	"github.com/fieldsync/syncd/internal/replay"
)

// wireEntry is the JSON shape of one change-log entry on the v2 replay
// endpoint: identical to domain.ChangeEntry except change_data is emitted
// as parsed JSON rather than the canonical string it's stored as.
type wireEntry struct {
	SequenceID        int64           `json:"sequence_id"`
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	UserID            string          `json:"user_id"`
	ObjectName        string          `json:"object_name"`
	RecordID          string          `json:"record_id"`
	ChangeData        json.RawMessage `json:"change_data"`
	StateHash         string          `json:"state_hash"`
	PreviousStateHash string          `json:"previous_state_hash"`
	CreatedAt         string          `json:"created_at"`
}

func toWireEntry(e domain.ChangeEntry) wireEntry {
	return wireEntry{
		SequenceID:        e.SequenceID,
		ID:                e.ID,
		TenantID:          e.TenantID,
		UserID:            e.UserID,
		ObjectName:        e.ObjectName,
		RecordID:          e.RecordID,
		ChangeData:        json.RawMessage(e.ChangeData),
		StateHash:         e.StateHash,
		PreviousStateHash: e.PreviousStateHash,
		CreatedAt:         e.CreatedAt,
	}
}

func (s *Server) handleSyncV2(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	sinceHash := r.URL.Query().Get("since_hash")

	entries, err := s.replay.Replay(r.Context(), tenantID, sinceHash)
	if errors.Is(err, replay.ErrBootstrapRequired) {
		writeBootstrapRequired(w, "since_hash is missing or does not resolve to a known chain entry; perform a full pull first")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error replaying change log", nil)
		return
	}

	wire := make([]wireEntry, len(entries))
	for i, e := range entries {
		wire[i] = toWireEntry(e)
	}

	writeJSON(w, http.StatusOK, wire)
}
