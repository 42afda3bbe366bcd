// Package cryptutil encrypts Plex and AniList tokens at rest using a
// key derived from a single master secret, so the sqlite database file
// does not hold plaintext credentials.
package cryptutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

const hkdfInfo = "plexanibridge/token-at-rest/v1"

// Box encrypts and decrypts tokens with a key derived from a master
// secret via HKDF. One Box is built per profile, salted with the
// profile name, so compromising one profile's derived key does not
// expose another's.
type Box struct {
	aead chacha20poly1305.AEAD
}

// NewBox derives an AEAD key from masterSecret and salt (typically the
// profile name) and returns a Box ready to seal/open tokens.
func NewBox(masterSecret []byte, salt string) (*Box, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("cryptutil: master secret must not be empty")
	}

	kdf := hkdf.New(sha3.New256, masterSecret, []byte(salt), []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("cryptutil: derive key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: init aead: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64 string safe for storage
// in a text column.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cryptutil: generate nonce: %w", err)
	}
	ciphertext := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a value previously produced by Seal.
func (b *Box) Open(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("cryptutil: decode: %w", err)
	}
	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("cryptutil: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("cryptutil: decrypt: %w", err)
	}
	return string(plaintext), nil
}
