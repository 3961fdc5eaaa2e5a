package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"strings"
)

const tokenBytes = 20

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateToken returns a new opaque bearer token: 20 cryptographically
// random bytes, base32-encoded in lowercase for cookie transport.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToLower(tokenEncoding.EncodeToString(raw)), nil
}

// IDFromToken derives the storage identifier for a token. The derivation is
// one-way (SHA-256, hex lowercase); the token itself is never stored.
func IDFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
