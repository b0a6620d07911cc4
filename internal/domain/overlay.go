package domain

import "encoding/json"

// Overlay is one client-submitted change-log candidate from a POST /sync
// batch, before it has been verified or persisted.
type Overlay struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	ObjectID          string          `json:"object_id"`
	ObjectName        string          `json:"object_name"`
	Changes           json.RawMessage `json:"changes"`
	CreatedAt         string          `json:"created_at"`
	StateHash         string          `json:"state_hash"`
	PreviousStateHash string          `json:"previous_state_hash"`
}
