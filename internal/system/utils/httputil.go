package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medicore/pii-protection-api/internal/system/error/apierror"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
)

// SendError writes a ServiceError as an HTTP response with the appropriate status code.
func SendError(c *gin.Context, err *serviceerror.ServiceError) {
	statusCode := http.StatusInternalServerError
	if err.Type == serviceerror.ClientErrorType {
		switch err.Code {
		case serviceerror.ResourceNotFoundError.Code:
			statusCode = http.StatusNotFound
		case serviceerror.InvalidStateTransitionError.Code:
			statusCode = http.StatusConflict
		case serviceerror.AuthenticationError.Code:
			statusCode = http.StatusUnauthorized
		case serviceerror.AuthorizationDeniedError.Code:
			statusCode = http.StatusForbidden
		default:
			statusCode = http.StatusBadRequest
		}
	}

	c.JSON(statusCode, apierror.NewErrorResponse(err.Error, err.ErrorDescription))
}
