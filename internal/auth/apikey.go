package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateToken creates a new webhook bearer token: relay-{40 random alphanumeric chars}.
func GenerateToken() (string, error) {
	random, err := randomString(40)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return "relay-" + random, nil
}

// HashKey returns the SHA-256 hex digest of a token.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// Fingerprint is a short, log-safe identifier for a token.
func Fingerprint(key string) string {
	if key == "" {
		return ""
	}
	return HashKey(key)[:12]
}

// Equal compares two tokens in constant time with respect to their contents.
func Equal(presented, expected string) bool {
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}
