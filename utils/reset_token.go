package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

const resetTokenBytes = 32

// GenerateResetToken produces a raw password-reset token: 32 bytes of CSPRNG
// entropy, hex-encoded to 64 characters. The raw value is only ever sent to
// the user; the store holds its hash.
func GenerateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashResetToken returns the hex-encoded SHA-256 of a raw token. A leaked
// stored hash cannot be replayed as a token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyResetToken hashes the candidate and compares it to the stored hash in
// constant time.
func VerifyResetToken(candidateRaw, storedHash string) bool {
	candidate := HashResetToken(candidateRaw)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}

// ResetTokenExpired reports whether expiry strictly precedes now (UTC).
func ResetTokenExpired(expiry, now time.Time) bool {
	return expiry.UTC().Before(now.UTC())
}
