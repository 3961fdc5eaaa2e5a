// Package secrets provides authenticated encryption for small secrets held
// at rest: TOTP keys and recovery codes. The cipher is AES-128-GCM with a
// random 16-byte nonce per call and a 16-byte tag. Wire format is
// nonce || ciphertext || tag, base64-encoded for storage.
//
// The key is process-wide configuration, loaded once at startup. It must
// never be logged or exported; this package never returns it.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

const (
	keySize   = 16
	nonceSize = 16
	tagSize   = 16
)

var (
	// ErrInvalidKey is returned by New for keys that are not 16 bytes.
	ErrInvalidKey = errors.New("encryption key must be 16 bytes")
	// ErrInvalidCiphertext is returned by Decrypt for truncated input and
	// for any tag verification failure. Decrypt never returns partial
	// plaintext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Codec encrypts and decrypts small secrets with a static server key.
// A Codec is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// New creates a Codec from a 16-byte server key.
func New(key []byte) (*Codec, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// base64-encoded nonce || ciphertext || tag.
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// EncryptString seals a string secret. See Encrypt.
func (c *Codec) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt opens a value produced by Encrypt. Input shorter than a nonce and
// tag, or failing tag verification, yields ErrInvalidCiphertext.
func (c *Codec) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	if len(raw) < nonceSize+tagSize {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// DecryptString opens a value produced by EncryptString.
func (c *Codec) DecryptString(encoded string) (string, error) {
	plaintext, err := c.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
