package fieldcipher

import "errors"

var (
	// ErrIntegrityViolation is returned when authentication tag verification
	// fails. No plaintext is ever returned alongside it.
	ErrIntegrityViolation = errors.New("envelope integrity check failed")

	// ErrUnknownKeyVersion is returned when the envelope references a key
	// version that is not in the ring.
	ErrUnknownKeyVersion = errors.New("envelope references an unknown key version")

	// ErrKeyUnavailable is returned when no active key is configured.
	ErrKeyUnavailable = errors.New("encryption key unavailable")

	// ErrInvalidEnvelope is returned when a stored envelope cannot be parsed.
	ErrInvalidEnvelope = errors.New("invalid envelope encoding")
)
