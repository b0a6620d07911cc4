// Package codec maps between the fixed-column-plus-JSON-payload shape
// SQLite hands back for any kind table and the typed domain.Record the
// rest of the system works with. It never touches the store itself.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fieldsync/syncd/internal/domain"
	"github.com/fieldsync/syncd/internal/store"
)

// Error reports a decode failure for one row, tagged with enough context
// to find the offending row again.
type Error struct {
	Kind domain.Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: kind %s id %s: %v", e.Kind, e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Decode converts a raw row into a domain.Record for the given kind.
// Decoding is total for any row SQLite actually returns: a JSON parse
// failure on the payload is the only failure mode, surfaced as an *Error.
func Decode(kind domain.Kind, row store.RawRow) (domain.Record, error) {
	if !json.Valid(row.Data) {
		return domain.Record{}, &Error{Kind: kind, ID: row.ID, Err: fmt.Errorf("payload is not valid JSON")}
	}
	return domain.Record{
		ID:         row.ID,
		TenantID:   row.TenantID,
		ObjectName: row.ObjectName,
		ObjectType: row.ObjectType,
		Status:     row.Status,
		Version:    row.Version,
		CreatedBy:  row.CreatedBy,
		ModifiedBy: row.ModifiedBy,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		Data:       json.RawMessage(row.Data),
	}, nil
}
