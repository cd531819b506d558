// Package keyring supplies the versioned symmetric key material used for
// field encryption. The ring is built once at startup from a single
// environment-sourced master secret and passed by reference to the cipher.
package keyring

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"

	"github.com/medicore/pii-protection-api/internal/system/config"
)

const keySize = 32

var (
	ErrKeyUnavailable     = errors.New("no active encryption key is configured")
	ErrUnknownKeyVersion  = errors.New("unknown key version")
	ErrRetiredKeyVersion  = errors.New("key version has been retired")
	ErrInvalidKeyMaterial = errors.New("invalid key material")
)

// Key is a single versioned field encryption key.
type Key struct {
	Version  int
	Material []byte
}

// Ring holds all decryptable key versions. It is read-mostly and safe for
// concurrent use once constructed.
type Ring struct {
	activeVersion int
	keys          map[int][]byte
	retired       map[int]bool
}

// New builds the key ring from the environment variable named in the
// encryption configuration. A missing or undersized secret is a fatal
// configuration error, not a per-request failure.
func New(cfg *config.EncryptionConfig) (*Ring, error) {
	raw := os.Getenv(cfg.KeyEnvVar)
	if raw == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrKeyUnavailable, cfg.KeyEnvVar)
	}

	secret := []byte(raw)
	if decoded, err := hex.DecodeString(raw); err == nil {
		secret = decoded
	}

	return NewFromSecret(secret, cfg.ActiveVersion, cfg.RetiredVersions)
}

// NewFromSecret builds a ring directly from master secret bytes. Versioned
// keys are derived with HKDF-SHA256 so that rotation only bumps the active
// version; older versions remain decryptable until explicitly retired.
func NewFromSecret(secret []byte, activeVersion int, retiredVersions []int) (*Ring, error) {
	if len(secret) < keySize {
		return nil, fmt.Errorf("%w: master secret must be at least %d bytes, got %d",
			ErrInvalidKeyMaterial, keySize, len(secret))
	}
	if activeVersion < 1 {
		return nil, fmt.Errorf("%w: active version must be >= 1", ErrInvalidKeyMaterial)
	}

	retired := make(map[int]bool, len(retiredVersions))
	for _, v := range retiredVersions {
		if v >= activeVersion {
			return nil, fmt.Errorf("%w: cannot retire version %d while version %d is active",
				ErrInvalidKeyMaterial, v, activeVersion)
		}
		retired[v] = true
	}

	keys := make(map[int][]byte, activeVersion)
	for version := 1; version <= activeVersion; version++ {
		if retired[version] {
			continue
		}
		material, err := deriveKey(secret, version)
		if err != nil {
			return nil, err
		}
		keys[version] = material
	}

	return &Ring{
		activeVersion: activeVersion,
		keys:          keys,
		retired:       retired,
	}, nil
}

// Active returns the key new encryptions must use.
func (r *Ring) Active() (Key, error) {
	return r.Get(r.activeVersion)
}

// ActiveVersion returns the version new encryptions are performed under.
func (r *Ring) ActiveVersion() int {
	return r.activeVersion
}

// Get returns the key material for a specific version. Retired versions and
// versions the ring has never seen are distinct failures so callers can tell
// an operational mistake from data corruption.
func (r *Ring) Get(version int) (Key, error) {
	if r.retired[version] {
		return Key{}, fmt.Errorf("%w: version %d", ErrRetiredKeyVersion, version)
	}
	material, ok := r.keys[version]
	if !ok {
		return Key{}, fmt.Errorf("%w: version %d", ErrUnknownKeyVersion, version)
	}
	return Key{Version: version, Material: material}, nil
}

// Versions lists all decryptable key versions in the ring.
func (r *Ring) Versions() []int {
	versions := make([]int, 0, len(r.keys))
	for v := range r.keys {
		versions = append(versions, v)
	}
	return versions
}

func deriveKey(secret []byte, version int) ([]byte, error) {
	info := fmt.Sprintf("field-key-v%d", version)
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))

	material := make([]byte, keySize)
	if _, err := io.ReadFull(reader, material); err != nil {
		return nil, fmt.Errorf("key derivation failed for version %d: %w", version, err)
	}
	return material, nil
}
