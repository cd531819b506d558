package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/system/constants"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/middleware"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

// auditHandler handles HTTP requests for the audit trail.
type auditHandler struct {
	service AuditService
}

func newAuditHandler(service AuditService) *auditHandler {
	return &auditHandler{service: service}
}

// HandleQuery handles GET /audit/entries
func (h *auditHandler) HandleQuery(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.SendError(c, &serviceerror.AuthenticationError)
		return
	}

	filters, svcErr := parseSearchFilters(c)
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	meta := model.RequestMeta{
		IPAddress: c.ClientIP(),
		RequestID: middleware.GetCorrelationID(c),
	}

	response, svcErr := h.service.Query(c.Request.Context(), principal, *filters, meta)
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, response)
}

func parseSearchFilters(c *gin.Context) (*model.AuditSearchFilters, *serviceerror.ServiceError) {
	filters := &model.AuditSearchFilters{
		PrincipalID:  utils.SanitizeString(c.Query("principalId")),
		ResourceType: utils.SanitizeString(c.Query("resourceType")),
		Action:       utils.SanitizeString(c.Query("action")),
		Limit:        constants.DefaultPageSize,
	}

	var err error
	if raw := c.Query("from"); raw != "" {
		if filters.FromTime, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError,
				"from must be an epoch milliseconds value")
		}
	}
	if raw := c.Query("to"); raw != "" {
		if filters.ToTime, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError,
				"to must be an epoch milliseconds value")
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if filters.Limit, err = strconv.Atoi(raw); err != nil {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError,
				"limit must be an integer")
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if filters.Offset, err = strconv.Atoi(raw); err != nil {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError,
				"offset must be an integer")
		}
	}

	return filters, nil
}
