package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SessionTokenBytes is the entropy of a session token. Tokens are hex-encoded,
// so the string form is twice as long.
const SessionTokenBytes = 32

// GenerateSessionToken returns a new random, hex-encoded session token.
func GenerateSessionToken() (string, error) {
	return generateRandomHex(SessionTokenBytes)
}

// IsSessionToken reports whether s has the shape of a token from GenerateSessionToken.
func IsSessionToken(s string) bool {
	if len(s) != SessionTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// generateRandomHex reads n bytes from crypto/rand and hex-encodes them.
func generateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
