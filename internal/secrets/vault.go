package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

//nolint:gochecknoglobals // sentinel error
var ErrInvalidKey = errors.New("secrets: invalid encryption key")

//nolint:gochecknoglobals // sentinel error
var ErrMalformed = errors.New("secrets: malformed ciphertext")

// Vault encrypts/decrypts values using AES-256-GCM. The label passed to Seal
// and Open is authenticated as additional data, so a ciphertext only opens
// under the label it was sealed with.
type Vault struct {
	aead cipher.AEAD
}

// NewVault creates a Vault with the given 32-byte encryption key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewVault: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewVault: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// NewVaultFromBase64 decodes a standard base64 key and creates a Vault.
func NewVaultFromBase64(encoded string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewVaultFromBase64: %w", ErrInvalidKey)
	}
	return NewVault(key)
}

// GenerateKey returns a fresh random key in the form NewVaultFromBase64 accepts.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("secrets.GenerateKey: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext bound to label and returns base64-encoded ciphertext.
// The output format is base64(nonce || ciphertext).
func (v *Vault) Seal(plaintext, label string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets.Seal: generate nonce: %w", err)
	}

	// Seal appends the encrypted data to nonce, producing nonce || ciphertext.
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), []byte(label))

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts base64-encoded ciphertext sealed under label.
func (v *Vault) Open(ciphertext, label string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets.Open: base64 decode: %w", ErrMalformed)
	}

	nonceSize := v.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("secrets.Open: too short: %w", ErrMalformed)
	}

	nonce := data[:nonceSize]
	encrypted := data[nonceSize:]

	plaintext, err := v.aead.Open(nil, nonce, encrypted, []byte(label))
	if err != nil {
		return "", fmt.Errorf("secrets.Open: %w", err)
	}

	return string(plaintext), nil
}
