package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAPIKey is returned when an API key does not match.
var ErrInvalidAPIKey = errors.New("auth: invalid API key") //nolint:gochecknoglobals // sentinel error

const (
	apiKeyPrefix  = "hd_"
	apiKeyRandLen = 16 // 16 bytes = 32 hex chars
)

// GenerateAPIKey creates a new random admin API key and its SHA-256 hash.
// Key format: "hd_" + 32 random hex chars.
func GenerateAPIKey() (rawKey, keyHash string, err error) {
	raw := make([]byte, apiKeyRandLen)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("auth.GenerateAPIKey: %w", err)
	}

	rawKey = apiKeyPrefix + hex.EncodeToString(raw)
	return rawKey, HashAPIKey(rawKey), nil
}

// HashAPIKey returns the hex SHA-256 of rawKey.
func HashAPIKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// KeyVerifier checks presented API keys against configured hashes. Only
// hashes are held in memory.
type KeyVerifier struct {
	hashes [][]byte
}

// NewKeyVerifier accepts hex SHA-256 hashes as produced by HashAPIKey.
func NewKeyVerifier(keyHashes []string) (*KeyVerifier, error) {
	v := &KeyVerifier{}
	for _, h := range keyHashes {
		b, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(b) != sha256.Size {
			return nil, fmt.Errorf("auth.NewKeyVerifier: malformed key hash %q", h)
		}
		v.hashes = append(v.hashes, b)
	}
	return v, nil
}

// Verify compares rawKey against every configured hash in constant time.
func (v *KeyVerifier) Verify(rawKey string) error {
	if !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return fmt.Errorf("auth.KeyVerifier.Verify: %w", ErrInvalidAPIKey)
	}

	sum := sha256.Sum256([]byte(rawKey))
	match := 0
	for _, h := range v.hashes {
		match |= subtle.ConstantTimeCompare(sum[:], h)
	}
	if match != 1 {
		return fmt.Errorf("auth.KeyVerifier.Verify: %w", ErrInvalidAPIKey)
	}
	return nil
}
