// Package codes defines error codes for the PII Protection Service.
package codes

const (
	// General errors
	InternalServerError = "PSE-5000"
	DatabaseError       = "PSE-5001"
	AuditWriteError     = "PSE-5002"
	InvalidRequest      = "PCE-4000"
	ValidationError     = "PCE-4001"
	ResourceNotFound    = "PCE-4004"
	InvalidTransition   = "PCE-4009"
	AuthenticationError = "PCE-4010"
	AuthorizationDenied = "PCE-4030"

	// Field protection errors
	FieldNotFound        = "PCE-4040"
	FieldNotAllowListed  = "PCE-4041"
	FieldEncryptFailed   = "PSE-5010"
	FieldDecryptFailed   = "PSE-5011"
	FieldRotationFailed  = "PSE-5012"
	EnvelopeFormatError  = "PSE-5013"

	// Consent errors
	ConsentNotFound       = "PCE-4050"
	ConsentNotGranted     = "PCE-4051"
	ConsentGrantFailed    = "PSE-5020"
	ConsentWithdrawFailed = "PSE-5021"

	// Key management errors
	KeyUnavailable    = "PSE-5030"
	UnknownKeyVersion = "PSE-5031"
)
