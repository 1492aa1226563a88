package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// newToken issues an opaque unsubscribe secret: 20 random bytes, hex
// encoded. Unique with overwhelming probability; the store's unique
// constraint treats a collision as an ordinary insert failure.
func newToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
