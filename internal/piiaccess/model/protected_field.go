// Package model defines protected field storage and the typed per-field
// outcomes of reveal and protect operations.
package model

import "fmt"

// EntityRef identifies the entity whose fields are being operated on.
type EntityRef struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

// ProtectedField is one encrypted field value. Rows are immutable: a field
// update or key rotation inserts a new row and stamps the old one superseded.
type ProtectedField struct {
	FieldID        string
	EntityType     string
	EntityID       string
	FieldName      string
	Envelope       string
	KeyVersion     int
	CreatedTime    int64
	SupersededTime *int64
}

// FieldRef renders the canonical audit resource identifier for a field.
func FieldRef(ref EntityRef, fieldName string) string {
	return fmt.Sprintf("%s:%s:%s", ref.EntityType, ref.EntityID, fieldName)
}

// FieldStatus is the typed outcome for one requested field.
type FieldStatus string

const (
	// StatusRevealed means the plaintext is present in Value.
	StatusRevealed FieldStatus = "revealed"
	// StatusProtected means the value was encrypted and stored.
	StatusProtected FieldStatus = "protected"
	// StatusDenied means authorization refused the field; Reason carries why.
	StatusDenied FieldStatus = "denied"
	// StatusError means the field could not be processed; no plaintext is
	// ever attached to an error outcome.
	StatusError FieldStatus = "error"
)

// FieldResult is the outcome for a single field. Every requested field gets
// exactly one result; fields are never silently omitted.
type FieldResult struct {
	Field  string      `json:"field"`
	Status FieldStatus `json:"status"`
	Value  string      `json:"value,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// RevealResult is the per-field outcome set of a reveal call. Values are
// ephemeral: callers must not persist them.
type RevealResult struct {
	EntityType string        `json:"entityType"`
	EntityID   string        `json:"entityId"`
	Fields     []FieldResult `json:"fields"`
}

// ProtectResult is the per-field outcome set of a protect call.
type ProtectResult struct {
	EntityType string        `json:"entityType"`
	EntityID   string        `json:"entityId"`
	Fields     []FieldResult `json:"fields"`
}

// RotateResult summarizes a key rotation sweep over one entity.
type RotateResult struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Rotated    int    `json:"rotated"`
	KeyVersion int    `json:"keyVersion"`
}

// RevealRequest is the API request for POST /decrypt-field.
type RevealRequest struct {
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	Fields     []string `json:"fields"`
}

// ProtectRequest is the API request for POST /protect-field.
type ProtectRequest struct {
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Values     map[string]string `json:"values"`
}
