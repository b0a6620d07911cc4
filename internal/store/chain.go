package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldsync/syncd/internal/canon"
	"github.com/fieldsync/syncd/internal/domain"
)

// ErrAnchorNotFound is returned by ResolveAnchor when no change-log entry
// in the tenant's chain carries the given state hash.
var ErrAnchorNotFound = errors.New("store: anchor not found")

// querier is satisfied by both *sql.DB and *sql.Tx, letting the chain
// operations run either standalone or inside the ingestor's transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// BeginTx starts a transaction for callers (the overlay ingestor) that
// must read the chain head, verify a batch, and append under one atomic
// unit of work.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Lock serializes the caller's entire read-verify-write sequence against
// every other Store caller. The overlay ingestor wraps BeginTx/CurrentHead
// /Append/Commit in this to make the whole sequence atomic with respect to
// concurrent ingests for the same or different tenants.
func (s *Store) Lock(fn func() error) error {
	return s.withLock(fn)
}

// CurrentHead returns the state_hash of the tenant's chain head — the
// entry with the largest sequence_id — or the genesis constant if the
// tenant has no entries yet.
func CurrentHead(ctx context.Context, q querier, tenantID string) (string, error) {
	var head string
	err := q.QueryRowContext(ctx, `
		SELECT state_hash FROM chain_heads WHERE tenant_id = ?
	`, tenantID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return canon.Genesis, nil
	}
	if err != nil {
		return "", fmt.Errorf("store: current head: %w", err)
	}
	return head, nil
}

// Append inserts one change-log entry and advances the tenant's chain
// head. Callers must have already asserted entry.PreviousStateHash equals
// the current head; Append itself only enforces storage-level uniqueness
// via the UNIQUE(tenant_id, id) constraint and the unique
// (tenant_id, state_hash) index.
func Append(ctx context.Context, q querier, entry domain.ChangeEntry) error {
	result, err := q.ExecContext(ctx, `
		INSERT INTO change_log
		(id, tenant_id, user_id, object_name, object_id, created_at, changes, content_hash, previous_state_hash, state_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.TenantID,
		entry.UserID,
		entry.ObjectName,
		entry.RecordID,
		entry.CreatedAt,
		entry.ChangeData,
		canon.ContentHash(entry.ID, entry.TenantID, entry.UserID, entry.CreatedAt, entry.ObjectName, entry.RecordID, entry.ChangeData),
		entry.PreviousStateHash,
		entry.StateHash,
	)
	if err != nil {
		return fmt.Errorf("store: append change log entry: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: append: last insert id: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO chain_heads (tenant_id, state_hash, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET state_hash = excluded.state_hash, seq = excluded.seq
	`, entry.TenantID, entry.StateHash, seq)
	if err != nil {
		return fmt.Errorf("store: append: update chain head: %w", err)
	}
	return nil
}

// ResolveAnchor returns the sequence_id of the entry carrying stateHash in
// tenantID's chain, or ErrAnchorNotFound.
func ResolveAnchor(ctx context.Context, q querier, tenantID, stateHash string) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `
		SELECT seq FROM change_log WHERE tenant_id = ? AND state_hash = ?
	`, tenantID, stateHash).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAnchorNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: resolve anchor: %w", err)
	}
	return seq, nil
}

// ReadAfter returns every change-log entry for tenantID with sequence_id
// strictly greater than anchor, ordered ascending.
func ReadAfter(ctx context.Context, q querier, tenantID string, anchor int64) ([]domain.ChangeEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT seq, id, tenant_id, user_id, object_name, object_id, changes, state_hash, previous_state_hash, created_at
		FROM change_log
		WHERE tenant_id = ? AND seq > ?
		ORDER BY seq ASC
	`, tenantID, anchor)
	if err != nil {
		return nil, fmt.Errorf("store: read after: %w", err)
	}
	defer rows.Close()

	var entries []domain.ChangeEntry
	for rows.Next() {
		var e domain.ChangeEntry
		if err := rows.Scan(&e.SequenceID, &e.ID, &e.TenantID, &e.UserID, &e.ObjectName, &e.RecordID,
			&e.ChangeData, &e.StateHash, &e.PreviousStateHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: read after: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read after: rows: %w", err)
	}
	return entries, nil
}
