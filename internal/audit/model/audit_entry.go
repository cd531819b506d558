// Package model defines the audit trail data model.
package model

import (
	authzmodel "github.com/medicore/pii-protection-api/internal/authz/model"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

// AuditEntry is one immutable record of an access, decision or consent
// event. Entries are append-only: no code path edits or deletes them.
type AuditEntry struct {
	AuditID       string
	ActionTime    int64
	PrincipalID   string
	PrincipalRole string
	Action        string
	ResourceType  string
	ResourceID    string
	Success       bool
	Reason        *string
	IPAddress     string
	RequestID     string
}

// RequestMeta carries the transport-level attribution recorded with every
// audit entry.
type RequestMeta struct {
	IPAddress string
	RequestID string
}

// NewEntry builds a fully attributed audit entry for a decision point.
// Reason is recorded only when non-empty; plaintext values never appear here.
func NewEntry(
	principal authzmodel.Principal,
	action, resourceType, resourceID string,
	success bool,
	reason string,
	meta RequestMeta,
) *AuditEntry {
	entry := &AuditEntry{
		AuditID:       utils.GenerateUUID(),
		ActionTime:    utils.GetCurrentTimeMillis(),
		PrincipalID:   principal.ID,
		PrincipalRole: string(principal.Role),
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Success:       success,
		IPAddress:     meta.IPAddress,
		RequestID:     meta.RequestID,
	}
	if reason != "" {
		entry.Reason = &reason
	}
	return entry
}

// AuditSearchFilters narrows an audit trail query. Zero values mean
// "no filter" for the corresponding column.
type AuditSearchFilters struct {
	PrincipalID  string
	ResourceType string
	Action       string
	FromTime     int64
	ToTime       int64
	Limit        int
	Offset       int
}

// AuditEntryResponse is the API representation of an audit entry.
type AuditEntryResponse struct {
	ID            string  `json:"id"`
	Timestamp     int64   `json:"timestamp"`
	PrincipalID   string  `json:"principalId"`
	PrincipalRole string  `json:"principalRole"`
	Action        string  `json:"action"`
	ResourceType  string  `json:"resourceType"`
	ResourceID    string  `json:"resourceId"`
	Success       bool    `json:"success"`
	Reason        *string `json:"reason,omitempty"`
	IPAddress     string  `json:"ipAddress"`
	RequestID     string  `json:"requestId"`
}

// ToResponse converts an entry to its API representation.
func (e *AuditEntry) ToResponse() AuditEntryResponse {
	return AuditEntryResponse{
		ID:            e.AuditID,
		Timestamp:     e.ActionTime,
		PrincipalID:   e.PrincipalID,
		PrincipalRole: e.PrincipalRole,
		Action:        e.Action,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Success:       e.Success,
		Reason:        e.Reason,
		IPAddress:     e.IPAddress,
		RequestID:     e.RequestID,
	}
}

// AuditSearchMetadata describes a page of audit results.
type AuditSearchMetadata struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// AuditSearchResponse is the paginated audit query result.
type AuditSearchResponse struct {
	Data     []AuditEntryResponse `json:"data"`
	Metadata AuditSearchMetadata  `json:"metadata"`
}
