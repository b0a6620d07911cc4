// Package ingest implements the Overlay Ingestor: validates, hashes,
// links, persists, and applies a batched list of client overlays under a
// single transaction (begin tx, multi-step guarded inserts,
// commit-or-rollback as one unit).
package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldsync/syncd/internal/canon"
	"github.com/fieldsync/syncd/internal/domain"
	"github.com/fieldsync/syncd/internal/store"
)

// onlyApplicableKind is the one object_name the ingestor currently applies
// to domain state; others are rejected outright rather than silently
// consuming a chain link, a conservative choice for an otherwise
// unresolved ambiguity in the overlay-kind contract.
const onlyApplicableKind = "job"

// Ingestor applies POST /sync overlay batches.
type Ingestor struct {
	store *store.Store
}

// New builds an Ingestor over the given Store.
func New(s *store.Store) *Ingestor {
	return &Ingestor{store: s}
}

// Ingest applies overlays in strict array order inside one transaction.
// An empty batch succeeds immediately with no transaction opened. Any
// failure aborts the whole batch: no entry is persisted and the chain
// head is left exactly where it was.
func (ig *Ingestor) Ingest(ctx context.Context, userID string, overlays []domain.Overlay) error {
	if len(overlays) == 0 {
		return nil
	}

	tenantID := overlays[0].TenantID

	var outerErr error
	lockErr := ig.store.Lock(func() error {
		tx, err := ig.store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("ingest: begin tx: %w", err)
		}
		defer tx.Rollback()

		if err := preflight(ctx, tx, tenantID, userID); err != nil {
			outerErr = err
			return nil
		}

		head, err := store.CurrentHead(ctx, tx, tenantID)
		if err != nil {
			return fmt.Errorf("ingest: current head: %w", err)
		}

		for _, overlay := range overlays {
			if overlay.ObjectName != onlyApplicableKind {
				outerErr = newUnsupportedObjectKind(overlay.ObjectName)
				return nil
			}

			if overlay.PreviousStateHash != head {
				outerErr = newChainDiverged(tenantID, head, overlay.PreviousStateHash)
				return nil
			}

			canonicalChanges, err := canon.CanonicalizeJSON(overlay.Changes)
			if err != nil {
				return fmt.Errorf("ingest: canonicalize changes for overlay %s: %w", overlay.ID, err)
			}

			contentHash := canon.ContentHash(
				overlay.ID, overlay.TenantID, userID, overlay.CreatedAt,
				overlay.ObjectName, overlay.ObjectID, canonicalChanges,
			)
			expectedStateHash := canon.StateHash(contentHash, head)

			if expectedStateHash != overlay.StateHash {
				outerErr = newHashMismatch(expectedStateHash, overlay.StateHash, contentHash, canonicalChanges, overlay)
				return nil
			}

			entry := domain.ChangeEntry{
				ID:                overlay.ID,
				TenantID:          tenantID,
				UserID:            userID,
				ObjectName:        overlay.ObjectName,
				RecordID:          overlay.ObjectID,
				ChangeData:        canonicalChanges,
				StateHash:         overlay.StateHash,
				PreviousStateHash: overlay.PreviousStateHash,
				CreatedAt:         overlay.CreatedAt,
			}
			if err := store.Append(ctx, tx, entry); err != nil {
				return fmt.Errorf("ingest: append entry %s: %w", overlay.ID, err)
			}

			if err := applyJobPatch(ctx, tx, tenantID, overlay.ObjectID, userID, overlay.CreatedAt, overlay.ObjectName, canonicalChanges); err != nil {
				return fmt.Errorf("ingest: apply overlay %s: %w", overlay.ID, err)
			}

			head = overlay.StateHash
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("ingest: commit: %w", err)
		}
		return nil
	})
	if lockErr != nil {
		return lockErr
	}
	return outerErr
}

func preflight(ctx context.Context, tx *sql.Tx, tenantID, userID string) error {
	var tenantCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants WHERE id = ?`, tenantID).Scan(&tenantCount); err != nil {
		return fmt.Errorf("ingest: preflight tenant lookup: %w", err)
	}
	if tenantCount == 0 {
		return newInvalidTenant(tenantID)
	}

	var userCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ? AND tenant_id = ?`, userID, tenantID).Scan(&userCount); err != nil {
		return fmt.Errorf("ingest: preflight user lookup: %w", err)
	}
	if userCount == 0 {
		return newInvalidUser(userID)
	}
	return nil
}

func applyJobPatch(ctx context.Context, tx *sql.Tx, tenantID, recordID, userID, createdAt, objectName, canonicalChanges string) error {
	return store.UpsertJob(ctx, tx, tenantID, recordID, userID, createdAt, objectName, canonicalChanges, func(existing []byte) ([]byte, error) {
		return MergePatch(existing, []byte(canonicalChanges))
	})
}
