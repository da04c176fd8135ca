// Package crypto seals and opens small secret blobs with a password.
// The catalog credential file uses this when it is stored encrypted at
// rest; the key is derived from the password with SHA-256 and the blob
// is AES-256-GCM, base64-encoded on disk.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidCiphertext means the blob is truncated or not sealed data
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrWrongPassword means the blob did not authenticate under the key
	ErrWrongPassword = errors.New("wrong password or corrupted data")
)

// DeriveKey turns a password into a 32-byte AES key
func DeriveKey(password string) []byte {
	hash := sha256.Sum256([]byte(password))
	return hash[:]
}

// Seal encrypts plaintext under the password and returns a base64 blob
// with the nonce prepended
func Seal(plaintext []byte, password string) ([]byte, error) {
	gcm, err := newGCM(password)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(encoded, sealed)
	return encoded, nil
}

// Open decrypts a blob produced by Seal
func Open(encoded []byte, password string) ([]byte, error) {
	data := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(data, encoded)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	data = data[:n]

	gcm, err := newGCM(password)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func newGCM(password string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(password))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
