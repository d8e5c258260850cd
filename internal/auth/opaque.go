package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// OpaqueTokenTTL is the validity window for emailed verification and
// password-reset links.
const OpaqueTokenTTL = 20 * time.Minute

// OpaqueToken is a single-use secret shared with the user exactly once.
// Only Hash is ever stored; only Raw is ever mailed.
type OpaqueToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

func NewOpaqueToken(now time.Time) (OpaqueToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return OpaqueToken{}, fmt.Errorf("read token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return OpaqueToken{
		Raw:       raw,
		Hash:      HashOpaqueToken(raw),
		ExpiresAt: now.Add(OpaqueTokenTTL),
	}, nil
}

// HashOpaqueToken recomputes the stored form of a presented raw secret.
// Consumption compares hashes, never raw values.
func HashOpaqueToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
