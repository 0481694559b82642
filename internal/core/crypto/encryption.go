// Package crypto provides envelope encryption for stored provider credentials.
// This is part of the Functional Core - all functions are pure with no I/O
// beyond the random source.
//
// Secrets are encrypted at rest using AES-256-GCM. The AES key is derived
// from the platform master secret with scrypt using a per-envelope random
// salt, so no two stored envelopes share key material even for identical
// plaintexts. The owner id is bound into the GCM associated data: an
// envelope decrypted with a different owner id fails authentication, which
// prevents credential reuse across accounts even if storage rows are mixed up.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrMasterSecretTooShort is returned when the master secret is too short.
	ErrMasterSecretTooShort = errors.New("master secret must be at least 16 bytes")

	// ErrInvalidEnvelope is returned when an envelope cannot be parsed.
	ErrInvalidEnvelope = errors.New("invalid envelope: malformed or truncated")

	// ErrUnsupportedVersion is returned for envelopes written by a newer scheme.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")

	// ErrDecryptionFailed is returned when decryption fails (wrong master
	// secret, wrong owner id, or corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// Envelope Format
// =============================================================================

// envelopeVersion identifies the envelope layout:
// version (1 byte) || salt (16 bytes) || nonce (12 bytes) || ciphertext.
const envelopeVersion = 1

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

// scrypt parameters, interactive-strength (N=2^15).
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// =============================================================================
// Key Derivation
// =============================================================================

// deriveKey derives a 32-byte AES-256 key from the master secret and a
// per-envelope salt using scrypt.
func deriveKey(masterSecret, salt []byte) ([]byte, error) {
	if len(masterSecret) < 16 {
		return nil, ErrMasterSecretTooShort
	}
	return scrypt.Key(masterSecret, salt, scryptN, scryptR, scryptP, keySize)
}

// =============================================================================
// Seal / Open
// =============================================================================

// Seal encrypts a secret for the given owner and returns an opaque envelope.
// A fresh salt and nonce are generated for every call, so sealing the same
// secret twice yields distinct envelopes.
func Seal(secret []byte, ownerID string, masterSecret []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key, err := deriveKey(masterSecret, salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	envelope := make([]byte, 0, 1+saltSize+nonceSize+len(secret)+gcm.Overhead())
	envelope = append(envelope, envelopeVersion)
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = gcm.Seal(envelope, nonce, secret, []byte(ownerID))
	return envelope, nil
}

// Open decrypts an envelope produced by Seal. The ownerID must match the one
// the envelope was sealed for; otherwise authentication fails.
func Open(envelope []byte, ownerID string, masterSecret []byte) ([]byte, error) {
	if len(envelope) < 1+saltSize+nonceSize {
		return nil, ErrInvalidEnvelope
	}
	if envelope[0] != envelopeVersion {
		return nil, ErrUnsupportedVersion
	}

	salt := envelope[1 : 1+saltSize]
	nonce := envelope[1+saltSize : 1+saltSize+nonceSize]
	ciphertext := envelope[1+saltSize+nonceSize:]

	key, err := deriveKey(masterSecret, salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(ownerID))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// =============================================================================
// Base64 Encoding Variants
// =============================================================================

// SealToBase64 encrypts a secret and returns a base64-encoded envelope.
// Useful for storing envelopes in text columns.
func SealToBase64(secret []byte, ownerID string, masterSecret []byte) (string, error) {
	envelope, err := Seal(secret, ownerID, masterSecret)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(envelope), nil
}

// OpenFromBase64 decrypts a base64-encoded envelope.
func OpenFromBase64(encoded, ownerID string, masterSecret []byte) ([]byte, error) {
	envelope, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidEnvelope
	}
	return Open(envelope, ownerID, masterSecret)
}
