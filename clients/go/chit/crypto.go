// Package chit provides a client for the Chit ephemeral encrypted chat
// protocol: chat key handling, the message envelope cipher, the pseudonym
// signature, and a thin REST client.
package chit

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the chat key length in bytes.
const KeySize = chacha20poly1305.KeySize

// CryptoError represents an encryption/decryption error. Decryption
// failures are per-message and discardable, never fatal to a session.
type CryptoError struct {
	Message string
}

func (e *CryptoError) Error() string {
	return e.Message
}

// ErrCrypto checks if an error is a CryptoError.
func ErrCrypto(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// ChatKey is the per-chat symmetric key. It is derived or generated on the
// client and MUST NOT be transmitted; the server only ever sees ServerKey.
type ChatKey []byte

// NewChatKey generates a random chat key.
func NewChatKey() (ChatKey, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// PBKDF2Params fixes the passphrase derivation so that every client of a
// chat derives the same key from the same passphrase.
type PBKDF2Params struct {
	Salt       []byte
	Iterations int
}

// DefaultPBKDF2 are the parameters used by the reference clients.
var DefaultPBKDF2 = PBKDF2Params{
	Salt:       []byte("chit/api/1"),
	Iterations: 100000,
}

// ChatKeyFromPassphrase derives a chat key deterministically from a
// user-chosen passphrase.
func ChatKeyFromPassphrase(passphrase string, params PBKDF2Params) ChatKey {
	return pbkdf2.Key([]byte(passphrase), params.Salt, params.Iterations, KeySize, sha256.New)
}

// ChatKeyFromBase64 decodes a key exchanged out of band (e.g. in a URL
// fragment, which never reaches the server).
func ChatKeyFromBase64(s string) (ChatKey, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &CryptoError{Message: fmt.Sprintf("invalid chat key: %v", err)}
	}
	if len(key) != KeySize {
		return nil, &CryptoError{Message: fmt.Sprintf("invalid chat key length: %d, expected %d", len(key), KeySize)}
	}
	return key, nil
}

// Base64 encodes the key for out-of-band exchange.
func (k ChatKey) Base64() string {
	return base64.StdEncoding.EncodeToString(k)
}

// ServerKey is the non-secret access key sent to the server: a one-way
// hash of the chat key, proving possession without revealing it.
func (k ChatKey) ServerKey() string {
	sum := sha256.Sum256(k)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Crypto encrypts and decrypts message payloads under one chat key.
type Crypto struct {
	aead cipher.AEAD
}

// NewCrypto creates a Crypto for the given chat key.
func NewCrypto(key ChatKey) (*Crypto, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Message: fmt.Sprintf("invalid chat key length: %d, expected %d", len(key), KeySize)}
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &Crypto{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV. Both returned values
// are base64 text-safe strings.
func (c *Crypto) Encrypt(plaintext string) (ct, iv string, err error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", err
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt is the inverse of Encrypt. It fails with a CryptoError on
// tampered data or a foreign key.
func (c *Crypto) Decrypt(ct, iv string) (string, error) {
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", &CryptoError{Message: "invalid iv"}
	}
	sealed, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		return "", &CryptoError{Message: "invalid ct"}
	}
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &CryptoError{Message: "decryption failed: wrong key or tampered ciphertext"}
	}
	return string(plaintext), nil
}
