// Package seal encrypts container bodies with a password.
//
// The key is derived with PBKDF2-HMAC-SHA256 from the password and a fresh
// random salt, then used for AES-256-GCM:
//
//	salt (32) | nonce (12) | ciphertext | tag (16)
//
// Keys are derived per call and zeroed before returning.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Parameters of the sealed layout. Changing any of them breaks existing
// archives.
const (
	SaltSize   = 32
	NonceSize  = 12
	KeySize    = 32
	TagSize    = 16
	Iterations = 100_000

	// Overhead is the number of bytes Seal adds to the plaintext.
	Overhead = SaltSize + NonceSize + TagSize
)

var (
	// ErrAuth is returned when the password is wrong or the sealed data was
	// modified.
	ErrAuth = errors.New("seal: authentication failed")

	// ErrTruncated is returned when sealed data is shorter than Overhead.
	ErrTruncated = errors.New("seal: sealed data truncated")

	// ErrEmptyPassword is returned for an empty password.
	ErrEmptyPassword = errors.New("seal: empty password")
)

// Seal encrypts plaintext under password.
func Seal(password string, plaintext []byte) ([]byte, error) {
	return seal(rand.Reader, password, plaintext)
}

func seal(random io.Reader, password string, plaintext []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	out := make([]byte, SaltSize+NonceSize, len(plaintext)+Overhead)
	if _, err := io.ReadFull(random, out); err != nil {
		return nil, fmt.Errorf("seal: read random: %w", err)
	}
	gcm, err := newGCM(password, out[:SaltSize])
	if err != nil {
		return nil, err
	}
	return gcm.Seal(out, out[SaltSize:], plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func Open(password string, sealed []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(sealed) < Overhead {
		return nil, ErrTruncated
	}
	gcm, err := newGCM(password, sealed[:SaltSize])
	if err != nil {
		return nil, err
	}
	nonce := sealed[SaltSize : SaltSize+NonceSize]
	plain, err := gcm.Open(nil, nonce, sealed[SaltSize+NonceSize:], nil)
	if err != nil {
		return nil, ErrAuth
	}
	return plain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
	defer clear(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return gcm, nil
}
