// Package constants defines shared constants for the PII protection service.
package constants

const (
	AuthorizationHeaderName = "Authorization"
	ContentTypeHeaderName   = "Content-Type"
	CorrelationIDHeaderName = "X-Correlation-ID"
	ContentTypeJSON         = "application/json"
	TokenTypeBearer         = "Bearer"

	APIBasePath = "/api/v1"

	DefaultPageSize = 30
	MaxPageSize     = 100

	// Aliases for convenience
	HeaderContentType   = ContentTypeHeaderName
	HeaderAuthorization = AuthorizationHeaderName
)

// Context keys set by middleware and consumed by handlers.
const (
	ContextKeyPrincipal     = "principal"
	ContextKeyCorrelationID = "correlation_id"
)

// Entity types carrying protected fields.
const (
	EntityTypeUser    = "user"
	EntityTypePatient = "patient"
)

// Audit resource types.
const (
	ResourceTypeField   = "protected_field"
	ResourceTypeConsent = "consent_record"
	ResourceTypeAudit   = "audit_entry"
)

// Audit actions.
const (
	ActionFieldDecrypted    = "FIELD_DECRYPTED"
	ActionFieldEncrypted    = "FIELD_ENCRYPTED"
	ActionConsentGranted    = "CONSENT_GRANTED"
	ActionConsentWithdrawn  = "CONSENT_WITHDRAWN"
	ActionAuditTrailQueried = "AUDIT_TRAIL_QUERIED"
)
