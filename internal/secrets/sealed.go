// Package secrets seals and opens feed credentials so stored feed rows never
// carry a plaintext API key. Envelope format: secv1.<iv>.<tag>.<ciphertext>
// with base64url segments and AES-256-GCM under a SHA-256 derived key.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	envelopeVersion = "secv1"
	ivLength        = 12
	tagLength       = 16
)

// Envelope errors.
var (
	ErrMissingKey      = errors.New("missing credential encryption key")
	ErrInvalidEnvelope = errors.New("invalid sealed credential format")
)

// Sealer encrypts and decrypts credential envelopes with one key.
type Sealer struct {
	key []byte
}

// NewSealer derives an AES-256 key from the raw key material.
func NewSealer(keyMaterial string) (*Sealer, error) {
	if strings.TrimSpace(keyMaterial) == "" {
		return nil, ErrMissingKey
	}
	digest := sha256.Sum256([]byte(keyMaterial))
	return &Sealer{key: digest[:]}, nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext into an envelope string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	aead, err := s.gcm()
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	enc := base64.RawURLEncoding
	return strings.Join([]string{
		envelopeVersion,
		enc.EncodeToString(iv),
		enc.EncodeToString(tag),
		enc.EncodeToString(ciphertext),
	}, "."), nil
}

// Open decrypts an envelope produced by Seal. An empty envelope opens to an
// empty string so callers can pass through feeds with no stored key.
func (s *Sealer) Open(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}

	parts := strings.Split(envelope, ".")
	if len(parts) != 4 || parts[0] != envelopeVersion {
		return "", ErrInvalidEnvelope
	}

	enc := base64.RawURLEncoding
	iv, err := enc.DecodeString(parts[1])
	if err != nil || len(iv) != ivLength {
		return "", ErrInvalidEnvelope
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil || len(tag) != tagLength {
		return "", ErrInvalidEnvelope
	}
	ciphertext, err := enc.DecodeString(parts[3])
	if err != nil || len(ciphertext) == 0 {
		return "", ErrInvalidEnvelope
	}

	aead, err := s.gcm()
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed credential: %w", err)
	}
	return string(plaintext), nil
}
