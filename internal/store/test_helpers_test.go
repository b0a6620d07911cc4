package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new on-disk SQLite store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedTenantAndUser inserts a minimal tenant/user pair so overlay
// preflight checks pass in tests that exercise the chain.
func seedTenantAndUser(t *testing.T, s *Store, tenantID, userID string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateTenant(ctx, tenantID, tenantID, "1970-01-01T00:00:00Z"); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	_, err := s.DB().ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, object_name, object_type, status, version, created_by, modified_by, created_at, updated_at, data)
		VALUES (?, ?, 'user', 'user', 'active', 1, ?, ?, '1970-01-01T00:00:00Z', '1970-01-01T00:00:00Z', '{}')
	`, userID, tenantID, userID, userID)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}
