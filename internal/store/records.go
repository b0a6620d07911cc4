package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldsync/syncd/internal/domain"
)

// UpsertJob applies changesJSON (already canonicalized) to the job with id
// recordID via JSON merge-patch, bumping version and updated_at. If no row
// matched, it inserts a fresh one seeded with changesJSON as the initial
// payload: status "active", version 0, object_name and object_type both
// set to objectName (the overlay's object_name), created_by/modified_by
// both userID. Only "job" is a live upsert target today; other kinds are
// reserved for future extension per spec.
func UpsertJob(ctx context.Context, q querier, tenantID, recordID, userID, createdAt, objectName, changesJSON string, mergedData func(existing []byte) ([]byte, error)) error {
	var existing []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ? AND tenant_id = ?`, recordID, tenantID).Scan(&existing)
	switch {
	case err == nil:
		merged, mergeErr := mergedData(existing)
		if mergeErr != nil {
			return fmt.Errorf("store: upsert job: merge: %w", mergeErr)
		}
		_, execErr := q.ExecContext(ctx, `
			UPDATE jobs
			SET data = ?, version = version + 1, updated_at = ?, modified_by = ?
			WHERE id = ? AND tenant_id = ?
		`, merged, createdAt, userID, recordID, tenantID)
		if execErr != nil {
			return fmt.Errorf("store: upsert job: update: %w", execErr)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
		_, insertErr := q.ExecContext(ctx, `
			INSERT INTO jobs
			(id, tenant_id, object_name, object_type, status, version, created_by, modified_by, created_at, updated_at, data)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
		`, recordID, tenantID, objectName, objectName, domain.StatusActive, userID, userID, createdAt, createdAt, changesJSON)
		if insertErr != nil {
			return fmt.Errorf("store: upsert job: insert: %w", insertErr)
		}
		return nil
	default:
		return fmt.Errorf("store: upsert job: lookup: %w", err)
	}
}

// ReadKind selects every row for kind updated strictly after since in
// tenantID, ordered by updated_at ascending then id ascending — the exact
// ordering the deterministic-pull property requires. The scan callback is
// invoked once per row with the raw columns; the projection reader adapts
// this into domain.Record values via the codec.
func ReadKind(ctx context.Context, q querier, kind domain.Kind, tenantID, since string, hasStatus bool, scan func(RawRow) error) error {
	var query string
	if hasStatus {
		query = fmt.Sprintf(`
			SELECT id, tenant_id, object_name, object_type, status, version, created_by, modified_by, created_at, updated_at, data
			FROM %s
			WHERE tenant_id = ? AND updated_at > ?
			ORDER BY updated_at ASC, id ASC
		`, kind.Table())
	} else {
		query = fmt.Sprintf(`
			SELECT id, tenant_id, object_name, object_type, NULL, version, created_by, modified_by, created_at, updated_at, data
			FROM %s
			WHERE tenant_id = ? AND updated_at > ?
			ORDER BY updated_at ASC, id ASC
		`, kind.Table())
	}

	rows, err := q.QueryContext(ctx, query, tenantID, since)
	if err != nil {
		return fmt.Errorf("store: read kind %s: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r RawRow
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ObjectName, &r.ObjectType, &r.Status, &r.Version,
			&r.CreatedBy, &r.ModifiedBy, &r.CreatedAt, &r.UpdatedAt, &r.Data); err != nil {
			return fmt.Errorf("store: read kind %s: scan: %w", kind, err)
		}
		if err := scan(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RawRow is the fixed-column shape shared by every kind table, exactly as
// it comes off the wire from SQLite, before the codec turns it into a
// domain.Record.
type RawRow struct {
	ID         string
	TenantID   string
	ObjectName string
	ObjectType *string
	Status     *string
	Version    int64
	CreatedBy  *string
	ModifiedBy *string
	CreatedAt  string
	UpdatedAt  string
	Data       []byte
}
