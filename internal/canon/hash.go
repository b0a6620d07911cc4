package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// Genesis is the sentinel previous_state_hash of a tenant's first change-log
// entry: 64 hex zeros.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// ContentHash computes the SHA-256 content hash of an overlay: the UTF-8
// byte concatenation, in order, with no separators, of id, tenant_id,
// user_id, created_at, object_name, object_id, and the canonical changes
// JSON. This is the hash an implementer might be tempted to add a domain
// separation prefix to - the wire contract here is fixed and does not
// include one, so clients and server must hash exactly this concatenation.
func ContentHash(id, tenantID, userID, createdAt, objectName, objectID, canonicalChanges string) string {
	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte(tenantID))
	h.Write([]byte(userID))
	h.Write([]byte(createdAt))
	h.Write([]byte(objectName))
	h.Write([]byte(objectID))
	h.Write([]byte(canonicalChanges))
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash computes the chain-linked state hash: SHA-256 over the 64-char
// lowercase hex content hash concatenated with the 64-char lowercase hex
// previous state hash.
func StateHash(contentHash, previousStateHash string) string {
	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte(previousStateHash))
	return hex.EncodeToString(h.Sum(nil))
}

// IsValidHash reports whether s has the shape of a SHA-256 hex digest:
// exactly 64 lowercase hex characters.
func IsValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
