package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const sessionTokenSize = 32

// NewSessionToken returns a fresh session binding token: 32 bytes of
// CSPRNG output, base64url without padding.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashSessionToken maps a session token of any length onto a fixed 32-byte
// digest. Comparing digests instead of raw tokens keeps the comparison
// constant-time even when an attacker controls the input length.
func HashSessionToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
