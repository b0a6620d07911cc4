package ingest

import (
	"errors"
	"fmt"

	"github.com/fieldsync/syncd/internal/domain"
)

// SyncError represents a failure detected while ingesting an overlay batch
// or serving a pull. It carries a stable Code the HTTP layer maps to a
// status, plus structured Details for client-side diagnosis (e.g. the
// HashMismatch tuple).
type SyncError struct {
	Code    SyncErrorCode
	Message string
	Details map[string]string
}

// SyncErrorCode categorizes sync protocol errors.
type SyncErrorCode string

const (
	ErrCodeInvalidTenant         SyncErrorCode = "InvalidTenant"
	ErrCodeInvalidUser           SyncErrorCode = "InvalidUser"
	ErrCodeHashMismatch          SyncErrorCode = "HashMismatch"
	ErrCodeChainDiverged         SyncErrorCode = "ChainDiverged"
	ErrCodeBootstrapRequired     SyncErrorCode = "BootstrapRequired"
	ErrCodeUnsupportedObjectKind SyncErrorCode = "UnsupportedObjectKind"
	ErrCodeInternal              SyncErrorCode = "InternalError"
)

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps a SyncErrorCode to the status the HTTP surface returns.
func (e *SyncError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidTenant, ErrCodeInvalidUser, ErrCodeHashMismatch, ErrCodeBootstrapRequired, ErrCodeUnsupportedObjectKind:
		return 400
	case ErrCodeChainDiverged:
		return 409
	default:
		return 500
	}
}

// Is lets errors.Is match on code alone for sentinel-style checks in tests.
func (e *SyncError) Is(target error) bool {
	var se *SyncError
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

func newInvalidTenant(tenantID string) *SyncError {
	return &SyncError{Code: ErrCodeInvalidTenant, Message: "tenant does not exist", Details: map[string]string{"tenant_id": tenantID}}
}

func newInvalidUser(userID string) *SyncError {
	return &SyncError{Code: ErrCodeInvalidUser, Message: "user does not exist", Details: map[string]string{"user_id": userID}}
}

func newChainDiverged(tenantID, expectedHead, gotPrevious string) *SyncError {
	return &SyncError{
		Code:    ErrCodeChainDiverged,
		Message: "overlay's previous_state_hash does not match the current chain head",
		Details: map[string]string{
			"tenant_id":             tenantID,
			"server_head":           expectedHead,
			"overlay_previous_hash": gotPrevious,
		},
	}
}

func newHashMismatch(expectedHash, gotHash, serverChangeHash, serverChangesJSON string, overlay domain.Overlay) *SyncError {
	return &SyncError{
		Code:    ErrCodeHashMismatch,
		Message: "recomputed state_hash does not match the overlay's supplied state_hash",
		Details: map[string]string{
			"server_state_hash":   expectedHash,
			"client_state_hash":   gotHash,
			"server_change_hash":  serverChangeHash,
			"server_changes_json": serverChangesJSON,
			"input_id":            overlay.ID,
			"input_tenant_id":     overlay.TenantID,
			"input_object_id":     overlay.ObjectID,
			"input_object_name":   overlay.ObjectName,
			"input_created_at":    overlay.CreatedAt,
			"input_previous_hash": overlay.PreviousStateHash,
		},
	}
}

func newUnsupportedObjectKind(objectName string) *SyncError {
	return &SyncError{
		Code:    ErrCodeUnsupportedObjectKind,
		Message: "object_name is not a recognized sync target",
		Details: map[string]string{"object_name": objectName},
	}
}

// IsChainDiverged reports whether err is (or wraps) a ChainDiverged SyncError.
func IsChainDiverged(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == ErrCodeChainDiverged
}

// IsHashMismatch reports whether err is (or wraps) a HashMismatch SyncError.
func IsHashMismatch(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == ErrCodeHashMismatch
}
