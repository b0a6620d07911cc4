package ingest

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/syncd/internal/canon"
	"github.com/fieldsync/syncd/internal/domain"
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

// buildOverlay computes the state_hash for an overlay the same way the
// ingestor does, so tests can construct valid client submissions without
// duplicating the hash formula inline everywhere.
func buildOverlay(t *testing.T, id, tenantID, userID, objectID, objectName, createdAt, previousHash string, changes any) domain.Overlay {
	t.Helper()
	raw, err := json.Marshal(changes)
	require.NoError(t, err)

	canonical, err := canon.CanonicalizeJSON(raw)
	require.NoError(t, err)

	contentHash := canon.ContentHash(id, tenantID, userID, createdAt, objectName, objectID, canonical)
	stateHash := canon.StateHash(contentHash, previousHash)

	return domain.Overlay{
		ID:                id,
		TenantID:          tenantID,
		ObjectID:          objectID,
		ObjectName:        objectName,
		Changes:           raw,
		CreatedAt:         createdAt,
		StateHash:         stateHash,
		PreviousStateHash: previousHash,
	}
}

func jobRow(t *testing.T, s *store.Store, tenantID, id string) (data string, version int64, status string) {
	t.Helper()
	err := s.DB().QueryRow(`SELECT data, version, status FROM jobs WHERE id = ? AND tenant_id = ?`, id, tenantID).
		Scan(&data, &version, &status)
	require.NoError(t, err)
	return data, version, status
}

// TestIngest_EmptyBatch covers an empty overlay batch: it succeeds
// immediately and opens no transaction.
func TestIngest_EmptyBatch(t *testing.T) {
	s := newTestStore(t)
	ig := New(s)
	err := ig.Ingest(context.Background(), "u1", nil)
	assert.NoError(t, err)
}

// TestIngest_FirstOverlay_Inserts covers S2: the first overlay for a never
// before seen job id creates a new row at version 0, status active.
func TestIngest_FirstOverlay_Inserts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := New(s)

	ov := buildOverlay(t, "c1", "t1", "u1", "j1", "job", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-1"})
	require.NoError(t, ig.Ingest(context.Background(), "u1", []domain.Overlay{ov}))

	data, version, status := jobRow(t, s, "t1", "j1")
	assert.JSONEq(t, `{"job_number":"J-1"}`, data)
	assert.Equal(t, int64(0), version)
	assert.Equal(t, "active", status)

	head, err := store.CurrentHead(context.Background(), s.DB(), "t1")
	require.NoError(t, err)
	assert.Equal(t, ov.StateHash, head)
}

// TestIngest_SecondOverlay_ExtendsChain covers S3: a second overlay
// referencing the same job patch-merges onto the existing payload and
// bumps version to 1.
func TestIngest_SecondOverlay_ExtendsChain(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := New(s)
	ctx := context.Background()

	ov1 := buildOverlay(t, "c1", "t1", "u1", "j1", "job", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-1"})
	require.NoError(t, ig.Ingest(ctx, "u1", []domain.Overlay{ov1}))

	ov2 := buildOverlay(t, "c2", "t1", "u1", "j1", "job", "2025-01-02T00:00:00Z", ov1.StateHash, map[string]any{"status_note": "on site"})
	require.NoError(t, ig.Ingest(ctx, "u1", []domain.Overlay{ov2}))

	data, version, _ := jobRow(t, s, "t1", "j1")
	assert.JSONEq(t, `{"job_number":"J-1","status_note":"on site"}`, data)
	assert.Equal(t, int64(1), version)
}

// TestIngest_ForkRejected covers S4: an overlay whose previous_state_hash
// is stale is rejected with ChainDiverged and leaves no trace.
func TestIngest_ForkRejected(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := New(s)
	ctx := context.Background()

	ov1 := buildOverlay(t, "c1", "t1", "u1", "j1", "job", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-1"})
	require.NoError(t, ig.Ingest(ctx, "u1", []domain.Overlay{ov1}))

	fork := buildOverlay(t, "c2", "t1", "u1", "j1", "job", "2025-01-02T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-2"})
	err := ig.Ingest(ctx, "u1", []domain.Overlay{fork})

	require.Error(t, err)
	assert.True(t, IsChainDiverged(err))

	head, err := store.CurrentHead(ctx, s.DB(), "t1")
	require.NoError(t, err)
	assert.Equal(t, ov1.StateHash, head, "chain head must not move on a rejected fork")

	data, version, _ := jobRow(t, s, "t1", "j1")
	assert.JSONEq(t, `{"job_number":"J-1"}`, data)
	assert.Equal(t, int64(0), version)
}

// TestIngest_HashMismatch covers S5: altering the last hex digit of
// state_hash is
// rejected with HashMismatch, and the details include both hashes plus the
// server's canonical changes JSON.
func TestIngest_HashMismatch(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := New(s)

	ov := buildOverlay(t, "c1", "t1", "u1", "j1", "job", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-1"})
	ov.StateHash = flipLastHexDigit(ov.StateHash)

	err := ig.Ingest(context.Background(), "u1", []domain.Overlay{ov})
	require.Error(t, err)
	assert.True(t, IsHashMismatch(err))

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, 400, syncErr.HTTPStatus())
	assert.Contains(t, syncErr.Details, "server_state_hash")
	assert.Contains(t, syncErr.Details, "client_state_hash")
	assert.Contains(t, syncErr.Details, "server_changes_json")
	assert.JSONEq(t, `{"job_number":"J-1"}`, syncErr.Details["server_changes_json"])

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM jobs WHERE tenant_id = 't1'`).Scan(&count))
	assert.Equal(t, 0, count, "no job should be created on a rejected overlay")
}

func flipLastHexDigit(h string) string {
	b := []byte(h)
	if b[len(b)-1] == '0' {
		b[len(b)-1] = '1'
	} else {
		b[len(b)-1] = '0'
	}
	return string(b)
}

// TestIngest_UnsupportedObjectKind covers overlays naming a kind other
// than "job": they are rejected with 400 rather than silently consuming
// a chain link.
func TestIngest_UnsupportedObjectKind(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := New(s)

	ov := buildOverlay(t, "c1", "t1", "u1", "q1", "quote", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"total": 100})
	err := ig.Ingest(context.Background(), "u1", []domain.Overlay{ov})

	require.Error(t, err)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrCodeUnsupportedObjectKind, syncErr.Code)

	head, err := store.CurrentHead(context.Background(), s.DB(), "t1")
	require.NoError(t, err)
	assert.Equal(t, canon.Genesis, head, "chain head must not advance for a rejected batch")
}

// TestIngest_InvalidTenantAndUser covers the preflight checks: neither
// hash/chain work nor any commit happens when tenant or user is unknown.
func TestIngest_InvalidTenantAndUser(t *testing.T) {
	s := newTestStore(t)
	ig := New(s)

	ov := buildOverlay(t, "c1", "ghost-tenant", "u1", "j1", "job", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-1"})
	err := ig.Ingest(context.Background(), "u1", []domain.Overlay{ov})
	require.Error(t, err)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrCodeInvalidTenant, syncErr.Code)

	seed(t, s, "t1", "u1")
	ov2 := buildOverlay(t, "c2", "t1", "ghost-user", "j1", "job", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-1"})
	err = ig.Ingest(context.Background(), "ghost-user", []domain.Overlay{ov2})
	require.Error(t, err)
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrCodeInvalidUser, syncErr.Code)
}

// TestIngest_BatchAtomicity covers Testable Property 7: if the second
// overlay in a batch is rejected, the first overlay's effects (chain entry
// and domain mutation) must not persist either.
func TestIngest_BatchAtomicity(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", "u1")
	ig := New(s)

	ov1 := buildOverlay(t, "c1", "t1", "u1", "j1", "job", "2025-01-01T00:00:00Z", canon.Genesis, map[string]any{"job_number": "J-1"})
	badSecond := buildOverlay(t, "c2", "t1", "u1", "j1", "job", "2025-01-02T00:00:00Z", canon.Genesis /* wrong prev */, map[string]any{"status_note": "x"})

	err := ig.Ingest(context.Background(), "u1", []domain.Overlay{ov1, badSecond})
	require.Error(t, err)
	assert.True(t, IsChainDiverged(err))

	head, err := store.CurrentHead(context.Background(), s.DB(), "t1")
	require.NoError(t, err)
	assert.Equal(t, canon.Genesis, head, "head must be unchanged: the whole batch is one unit")

	var jobCount int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM jobs WHERE tenant_id = 't1'`).Scan(&jobCount))
	assert.Equal(t, 0, jobCount)

	var logCount int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM change_log WHERE tenant_id = 't1'`).Scan(&logCount))
	assert.Equal(t, 0, logCount)
}
