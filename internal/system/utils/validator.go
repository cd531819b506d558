package utils

import (
	"fmt"
)

// ValidateRequired validates a field is not empty.
func ValidateRequired(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidatePagination validates limit and offset.
func ValidatePagination(limit, offset int) error {
	if limit < 1 || limit > 100 {
		return fmt.Errorf("limit must be between 1 and 100")
	}
	if offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	return nil
}

// ValidateUUID validates UUID format.
func ValidateUUID(id string) error {
	if !IsValidUUID(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// ValidateSubjectID validates a data subject identifier.
func ValidateSubjectID(subjectID string) error {
	if err := ValidateRequired("subjectId", subjectID); err != nil {
		return err
	}
	if len(subjectID) > 100 {
		return fmt.Errorf("subject ID too long (max 100 chars)")
	}
	return nil
}

// ValidateConsentID validates a consent record identifier.
func ValidateConsentID(consentID string) error {
	if err := ValidateRequired("consentId", consentID); err != nil {
		return err
	}
	return ValidateUUID(consentID)
}
