// Package model defines the consent record data model and its derived
// lifecycle status.
package model

// ConsentStatus is the derived lifecycle state of a consent record.
// It is never persisted; it is always computed from the record's
// timestamps so stored state and reported state cannot diverge.
type ConsentStatus string

const (
	StatusPending   ConsentStatus = "PENDING"
	StatusGranted   ConsentStatus = "GRANTED"
	StatusWithdrawn ConsentStatus = "WITHDRAWN"
	StatusExpired   ConsentStatus = "EXPIRED"
)

// ConsentRecord represents one consent grant for a data subject. Records are
// append-mostly: withdrawal stamps the record, every new grant is a new row.
type ConsentRecord struct {
	ConsentID        string
	SubjectID        string
	ConsentType      string
	Purpose          string
	LegalBasis       string
	ConsentVersion   string
	Granted          bool
	GrantedTime      *int64
	WithdrawnTime    *int64
	WithdrawalReason *string
	ExpiryTime       *int64
	CreatedTime      int64
}

// StatusAt derives the lifecycle status of the record at the given instant.
// Withdrawal is terminal: a withdrawn record never reports any other status,
// expiry included.
func (r *ConsentRecord) StatusAt(now int64) ConsentStatus {
	if r.WithdrawnTime != nil {
		return StatusWithdrawn
	}
	if !r.Granted {
		return StatusPending
	}
	if r.ExpiryTime != nil && *r.ExpiryTime <= now {
		return StatusExpired
	}
	return StatusGranted
}

// IsActiveAt reports whether the record is an effective grant at the instant.
func (r *ConsentRecord) IsActiveAt(now int64) bool {
	return r.StatusAt(now) == StatusGranted
}

// RiskLevel classifies a compliance score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ClassifyRisk maps a compliance score (0-100) to a risk level.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score >= 90:
		return RiskLow
	case score >= 70:
		return RiskMedium
	case score >= 50:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// GrantRequest is the API request to record a new consent grant.
type GrantRequest struct {
	UserID         string `json:"userId"`
	ConsentType    string `json:"consentType"`
	Purpose        string `json:"purpose,omitempty"`
	LegalBasis     string `json:"legalBasis,omitempty"`
	ConsentVersion string `json:"consentVersion,omitempty"`
	ExpiresAt      *int64 `json:"expiresAt,omitempty"`
}

// WithdrawRequest is the API request to withdraw an active grant.
type WithdrawRequest struct {
	UserID      string `json:"userId"`
	ConsentType string `json:"consentType"`
	Reason      string `json:"reason"`
}

// ConsentResponse is the API representation of a consent record with its
// derived status attached.
type ConsentResponse struct {
	ID               string        `json:"id"`
	SubjectID        string        `json:"subjectId"`
	ConsentType      string        `json:"consentType"`
	Purpose          string        `json:"purpose,omitempty"`
	LegalBasis       string        `json:"legalBasis,omitempty"`
	ConsentVersion   string        `json:"consentVersion,omitempty"`
	Status           ConsentStatus `json:"status"`
	GrantedAt        *int64        `json:"grantedAt,omitempty"`
	WithdrawnAt      *int64        `json:"withdrawnAt,omitempty"`
	WithdrawalReason *string       `json:"withdrawalReason,omitempty"`
	ExpiresAt        *int64        `json:"expiresAt,omitempty"`
	CreatedAt        int64         `json:"createdAt"`
}

// ToResponse converts a record to its API representation, deriving the
// status at the given instant.
func (r *ConsentRecord) ToResponse(now int64) ConsentResponse {
	return ConsentResponse{
		ID:               r.ConsentID,
		SubjectID:        r.SubjectID,
		ConsentType:      r.ConsentType,
		Purpose:          r.Purpose,
		LegalBasis:       r.LegalBasis,
		ConsentVersion:   r.ConsentVersion,
		Status:           r.StatusAt(now),
		GrantedAt:        r.GrantedTime,
		WithdrawnAt:      r.WithdrawnTime,
		WithdrawalReason: r.WithdrawalReason,
		ExpiresAt:        r.ExpiryTime,
		CreatedAt:        r.CreatedTime,
	}
}

// ComplianceSummary reports how much of the required consent set is
// currently granted for a subject.
type ComplianceSummary struct {
	Score         float64   `json:"score"`
	RiskLevel     RiskLevel `json:"riskLevel"`
	RequiredTypes int       `json:"requiredTypes"`
	GrantedTypes  int       `json:"grantedTypes"`
	MissingTypes  []string  `json:"missingTypes"`
}

// HistoryResponse is the full consent history for a subject plus the
// compliance summary computed over it.
type HistoryResponse struct {
	SubjectID  string            `json:"subjectId"`
	Consents   []ConsentResponse `json:"consents"`
	Compliance ComplianceSummary `json:"compliance"`
}
