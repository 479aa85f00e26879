package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"strings"
)

// tokenEntropyBytes gives 160 bits of entropy, which encodes to exactly 32
// base32 characters without padding.
const tokenEntropyBytes = 20

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateToken returns a fresh bearer token: 20 random bytes encoded as
// lowercase unpadded base32.
func GenerateToken() (string, error) {
	var raw [tokenEntropyBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return strings.ToLower(tokenEncoding.EncodeToString(raw[:])), nil
}

// IDFromToken derives the storage identifier of a token: lowercase hex of
// its SHA-256 digest.
func IDFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
