// Package fieldcipher encrypts and decrypts individual sensitive field
// values with AES-256-GCM, producing self-describing envelopes that carry
// the key version used.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/medicore/pii-protection-api/internal/keyring"
)

const (
	ivSize  = 12
	tagSize = 16
)

// Cipher performs authenticated field encryption against a key ring.
type Cipher struct {
	ring *keyring.Ring
}

// New creates a field cipher backed by the given key ring.
func New(ring *keyring.Ring) *Cipher {
	return &Cipher{ring: ring}
}

// Encrypt encrypts a plaintext under the active key version. The IV is
// generated internally on every call; callers cannot supply one.
func (c *Cipher) Encrypt(plaintext []byte) (*Envelope, error) {
	return c.EncryptWithVersion(plaintext, c.ring.ActiveVersion())
}

// EncryptWithVersion encrypts a plaintext under a specific key version.
// Used by rotation sweeps that need to prove old data re-encrypts cleanly.
func (c *Cipher) EncryptWithVersion(plaintext []byte, version int) (*Envelope, error) {
	key, err := c.ring.Get(version)
	if err != nil {
		return nil, mapKeyError(err)
	}

	aead, err := newAEAD(key.Material)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("IV generation failed: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	boundary := len(sealed) - tagSize

	return &Envelope{
		KeyVersion: key.Version,
		IV:         iv,
		Ciphertext: sealed[:boundary],
		Tag:        sealed[boundary:],
	}, nil
}

// Decrypt opens an envelope and returns the plaintext. It fails closed:
// a tag mismatch yields ErrIntegrityViolation and an unknown key version
// yields ErrUnknownKeyVersion, in both cases without any plaintext.
func (c *Cipher) Decrypt(envelope *Envelope) ([]byte, error) {
	if envelope == nil {
		return nil, ErrInvalidEnvelope
	}
	if len(envelope.IV) != ivSize || len(envelope.Tag) != tagSize {
		return nil, fmt.Errorf("%w: unexpected IV or tag size", ErrInvalidEnvelope)
	}

	key, err := c.ring.Get(envelope.KeyVersion)
	if err != nil {
		return nil, mapKeyError(err)
	}

	aead, err := newAEAD(key.Material)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(envelope.Ciphertext)+len(envelope.Tag))
	sealed = append(sealed, envelope.Ciphertext...)
	sealed = append(sealed, envelope.Tag...)

	plaintext, err := aead.Open(nil, envelope.IV, sealed, nil)
	if err != nil {
		return nil, ErrIntegrityViolation
	}
	return plaintext, nil
}

// ActiveKeyVersion returns the key version new encryptions are made under.
func (c *Cipher) ActiveKeyVersion() int {
	return c.ring.ActiveVersion()
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

func mapKeyError(err error) error {
	switch {
	case errors.Is(err, keyring.ErrUnknownKeyVersion), errors.Is(err, keyring.ErrRetiredKeyVersion):
		return fmt.Errorf("%w: %v", ErrUnknownKeyVersion, err)
	case errors.Is(err, keyring.ErrKeyUnavailable):
		return fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	default:
		return err
	}
}
