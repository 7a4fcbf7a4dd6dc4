package accounts

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// KeyPrefix marks every issued API key.
const KeyPrefix = "prq_"

// Account is an API key holder. Only the key hash is ever stored.
type Account struct {
	ID         int64      `json:"id"`
	KeyHash    string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// GenerateAPIKey returns a new random key: the prefix followed by 32 random
// bytes in unpadded base64url.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAPIKey returns the lowercase hex SHA-256 of pepper followed by key.
func HashAPIKey(key, pepper string) string {
	h := sha256.New()
	h.Write([]byte(pepper))
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
