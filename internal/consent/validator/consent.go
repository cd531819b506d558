// Package validator validates consent lifecycle requests.
package validator

import (
	"fmt"

	"github.com/medicore/pii-protection-api/internal/consent/model"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

const (
	maxConsentTypeLength = 64
	maxPurposeLength     = 256
	maxReasonLength      = 512
)

// ValidateGrantRequest validates a consent grant request.
func ValidateGrantRequest(req model.GrantRequest) error {
	if err := utils.ValidateSubjectID(req.UserID); err != nil {
		return err
	}
	if err := utils.ValidateRequired("consentType", req.ConsentType); err != nil {
		return err
	}
	if len(req.ConsentType) > maxConsentTypeLength {
		return fmt.Errorf("consent type too long (max %d chars)", maxConsentTypeLength)
	}
	if len(req.Purpose) > maxPurposeLength {
		return fmt.Errorf("purpose too long (max %d chars)", maxPurposeLength)
	}
	if req.ExpiresAt != nil && *req.ExpiresAt <= utils.GetCurrentTimeMillis() {
		return fmt.Errorf("expiresAt must be in the future")
	}
	return nil
}

// ValidateWithdrawRequest validates a consent withdrawal request. A reason is
// mandatory; withdrawals without one are rejected outright.
func ValidateWithdrawRequest(req model.WithdrawRequest) error {
	if err := utils.ValidateSubjectID(req.UserID); err != nil {
		return err
	}
	if err := utils.ValidateRequired("consentType", req.ConsentType); err != nil {
		return err
	}
	if err := utils.ValidateRequired("reason", req.Reason); err != nil {
		return err
	}
	if len(req.Reason) > maxReasonLength {
		return fmt.Errorf("reason too long (max %d chars)", maxReasonLength)
	}
	return nil
}
