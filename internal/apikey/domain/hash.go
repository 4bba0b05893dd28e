package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyPrefix marks every secret key issued by the gateway.
const KeyPrefix = "tg_live_"

// HashAPIKey hashes the raw key the same way it was hashed at creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
