package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/syncd/internal/canon"
	"github.com/fieldsync/syncd/internal/domain"
	"github.com/fieldsync/syncd/internal/ingest"
	"github.com/fieldsync/syncd/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, tenantID, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateTenant(ctx, tenantID, tenantID, "1970-01-01T00:00:00Z"))
	_, err := s.DB().ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, object_name, object_type, status, version, created_by, modified_by, created_at, updated_at, data)
		VALUES (?, ?, 'user', 'user', 'active', 1, ?, ?, '1970-01-01T00:00:00Z', '1970-01-01T00:00:00Z', '{}')
	`, userID, tenantID, userID, userID)
	require.NoError(t, err)
}

func buildOverlay(t *testing.T, id, tenantID, userID, objectID, createdAt, previousHash, changesJSON string) domain.Overlay {
	t.Helper()
	canonical, err := canon.CanonicalizeJSON([]byte(changesJSON))
	require.NoError(t, err)
	contentHash := canon.ContentHash(id, tenantID, userID, createdAt, "job", objectID, canonical)
	stateHash := canon.StateHash(contentHash, previousHash)
	return domain.Overlay{
		ID:                id,
		TenantID:          tenantID,
		ObjectID:          objectID,
		ObjectName:        "job",
		Changes:           []byte(changesJSON),
		CreatedAt:         createdAt,
		StateHash:         stateHash,
		PreviousStateHash: previousHash,
	}
}

// TestReplay_S6_DeltaAfterAnchor covers S6: after two overlays extend a
// tenant's chain, replaying after the first entry's hash returns exactly
// the second entry.
func TestReplay_S6_DeltaAfterAnchor(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := ingest.New(s)
	ctx := context.Background()

	ov1 := buildOverlay(t, "c1", "t1", "u1", "j1", "2025-01-01T00:00:00Z", canon.Genesis, `{"job_number":"J-1"}`)
	require.NoError(t, ig.Ingest(ctx, "u1", []domain.Overlay{ov1}))

	ov2 := buildOverlay(t, "c2", "t1", "u1", "j1", "2025-01-02T00:00:00Z", ov1.StateHash, `{"status_note":"on site"}`)
	require.NoError(t, ig.Ingest(ctx, "u1", []domain.Overlay{ov2}))

	r := NewReader(s.DB())
	entries, err := r.Replay(ctx, "t1", ov1.StateHash)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, ov2.StateHash, entries[0].StateHash)
	assert.Equal(t, ov1.StateHash, entries[0].PreviousStateHash)
}

// TestReplay_S7_UnknownAnchor covers S7: an anchor that doesn't resolve to
// any entry in the tenant's chain is BootstrapRequired.
func TestReplay_S7_UnknownAnchor(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")

	unknownAnchor := "deadbeef" + canon.Genesis[8:]
	r := NewReader(s.DB())
	_, err := r.Replay(context.Background(), "t1", unknownAnchor)
	assert.ErrorIs(t, err, ErrBootstrapRequired)
}

// TestReplay_MissingSinceHash covers the absent-anchor branch of
// BootstrapRequired distinct from the unknown-anchor branch.
func TestReplay_MissingSinceHash(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")

	r := NewReader(s.DB())
	_, err := r.Replay(context.Background(), "t1", "")
	assert.ErrorIs(t, err, ErrBootstrapRequired)
}

// TestReplay_IdempotentWithoutInterveningPOSTs covers Testable Property 8:
// replaying twice without intervening POSTs yields identical results.
func TestReplay_IdempotentWithoutInterveningPOSTs(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := ingest.New(s)
	ctx := context.Background()

	ov1 := buildOverlay(t, "c1", "t1", "u1", "j1", "2025-01-01T00:00:00Z", canon.Genesis, `{"job_number":"J-1"}`)
	require.NoError(t, ig.Ingest(ctx, "u1", []domain.Overlay{ov1}))

	r := NewReader(s.DB())
	first, err := r.Replay(ctx, "t1", canon.Genesis)
	require.NoError(t, err)
	second, err := r.Replay(ctx, "t1", canon.Genesis)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestReplay_TenantIsolation covers Testable Property 2 on the v2 path:
// one tenant's chain entries never leak into another's replay.
func TestReplay_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	seed(t, s, "t2", "u2")
	ig := ingest.New(s)
	ctx := context.Background()

	ov1 := buildOverlay(t, "c1", "t1", "u1", "j1", "2025-01-01T00:00:00Z", canon.Genesis, `{"job_number":"J-1"}`)
	require.NoError(t, ig.Ingest(ctx, "u1", []domain.Overlay{ov1}))

	r := NewReader(s.DB())
	entriesT2, err := r.Replay(ctx, "t2", canon.Genesis)
	require.NoError(t, err)
	assert.Empty(t, entriesT2)
}
