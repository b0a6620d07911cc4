package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// TenantExists reports whether a tenant row exists for id.
func (s *Store) TenantExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: tenant exists: %w", err)
	}
	return count > 0, nil
}

// UserTenant returns the tenant_id a user belongs to, or ErrNotFound if the
// user is unknown.
func (s *Store) UserTenant(ctx context.Context, userID string) (string, error) {
	var tenantID string
	err := s.db.QueryRowContext(ctx, `SELECT tenant_id FROM users WHERE id = ?`, userID).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: user tenant: %w", err)
	}
	return tenantID, nil
}

// CreateTenant inserts a tenant row, used by the seed command and tests.
func (s *Store) CreateTenant(ctx context.Context, id, name, createdAt string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, createdAt)
	if err != nil {
		return fmt.Errorf("store: create tenant: %w", err)
	}
	return nil
}
