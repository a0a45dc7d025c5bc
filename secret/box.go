// Package secret provides authenticated at-rest encryption for sensitive
// fields such as federated assertion subjects. Ciphertexts carry a prefix
// so legacy plaintext values pass through decryption unchanged.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// prefix marks an encrypted value. Decrypt returns anything without it
// verbatim, which keeps rows written before encryption was enabled
// readable.
const prefix = "{gcm}"

const keySize = 32

// Box encrypts and decrypts field values with AES-256-GCM.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box from a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != keySize {
		return nil, errors.New("secret: key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals the value under a fresh nonce and returns the prefixed,
// base64-encoded ciphertext.
func (b *Box) Encrypt(plain string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a prefixed ciphertext. Values without the prefix are
// returned unchanged.
func (b *Box) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", errors.New("secret: malformed ciphertext encoding")
	}
	if len(raw) < b.aead.NonceSize() {
		return "", errors.New("secret: ciphertext too short")
	}

	nonce, sealed := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	plain, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.New("secret: decryption failed")
	}
	return string(plain), nil
}
