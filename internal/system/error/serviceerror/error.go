package serviceerror

import (
	"github.com/medicore/pii-protection-api/internal/system/error/codes"
)

type ServiceErrorType string

const (
	ClientErrorType ServiceErrorType = "client_error"
	ServerErrorType ServiceErrorType = "server_error"
)

type ServiceError struct {
	Code             string           `json:"code"`
	Type             ServiceErrorType `json:"type"`
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description,omitempty"`
}

var (
	InternalServerError = ServiceError{
		Type:             ServerErrorType,
		Code:             codes.InternalServerError,
		Error:            "internal_server_error",
		ErrorDescription: "An unexpected error occurred",
	}

	DatabaseError = ServiceError{
		Type:             ServerErrorType,
		Code:             codes.DatabaseError,
		Error:            "database_error",
		ErrorDescription: "A database error occurred",
	}

	AuditWriteError = ServiceError{
		Type:             ServerErrorType,
		Code:             codes.AuditWriteError,
		Error:            "audit_write_error",
		ErrorDescription: "The audit trail could not be recorded",
	}

	InvalidRequestError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.InvalidRequest,
		Error:            "invalid_request",
		ErrorDescription: "The request is invalid",
	}

	ValidationError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.ValidationError,
		Error:            "validation_error",
		ErrorDescription: "Validation failed",
	}

	AuthenticationError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.AuthenticationError,
		Error:            "authentication_required",
		ErrorDescription: "A valid bearer token is required",
	}

	AuthorizationDeniedError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.AuthorizationDenied,
		Error:            "authorization_denied",
		ErrorDescription: "The principal is not permitted to perform this operation",
	}

	ResourceNotFoundError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.ResourceNotFound,
		Error:            "resource_not_found",
		ErrorDescription: "Resource not found",
	}

	InvalidStateTransitionError = ServiceError{
		Type:             ClientErrorType,
		Code:             codes.InvalidTransition,
		Error:            "invalid_state_transition",
		ErrorDescription: "The operation conflicts with the current lifecycle state",
	}
)

func CustomServiceError(baseError ServiceError, description string) *ServiceError {
	return &ServiceError{
		Type:             baseError.Type,
		Code:             baseError.Code,
		Error:            baseError.Error,
		ErrorDescription: description,
	}
}
