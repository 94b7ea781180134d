package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	pendingTokenSize      = 32
	verificationTokenSize = 32
)

// NewPendingToken mints the opaque token handed out by VerifyCredentials:
// 256 bits of entropy, base64url without padding.
func NewPendingToken() (string, error) {
	var raw [pendingTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewVerificationToken mints a single-use token for email, device, and
// password-reset verification flows.
func NewVerificationToken() (string, error) {
	var raw [verificationTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the hex-encoded SHA-256 of a token. Session rows store
// this hash instead of the raw refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
