package consent

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditmodel "github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/consent/model"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/middleware"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

// consentHandler handles HTTP requests for consent lifecycle operations.
type consentHandler struct {
	service ConsentService
}

func newConsentHandler(service ConsentService) *consentHandler {
	return &consentHandler{service: service}
}

// HandleHistory handles GET /consent/manage
func (h *consentHandler) HandleHistory(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.SendError(c, &serviceerror.AuthenticationError)
		return
	}

	subjectID := utils.SanitizeString(c.Query("userId"))
	if subjectID == "" {
		subjectID = principal.ID
	}

	response, svcErr := h.service.History(c.Request.Context(), principal, subjectID)
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, response)
}

// HandleGrant handles PUT /consent/manage
func (h *consentHandler) HandleGrant(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.SendError(c, &serviceerror.AuthenticationError)
		return
	}

	var req model.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, err.Error()))
		return
	}
	req.UserID = utils.SanitizeString(req.UserID)
	req.ConsentType = utils.SanitizeString(req.ConsentType)
	req.Purpose = utils.SanitizeString(req.Purpose)

	response, svcErr := h.service.Grant(c.Request.Context(), principal, req, requestMeta(c))
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// HandleWithdraw handles POST /consent/manage
func (h *consentHandler) HandleWithdraw(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.SendError(c, &serviceerror.AuthenticationError)
		return
	}

	var req model.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, err.Error()))
		return
	}
	req.UserID = utils.SanitizeString(req.UserID)
	req.ConsentType = utils.SanitizeString(req.ConsentType)
	req.Reason = utils.SanitizeString(req.Reason)

	response, svcErr := h.service.Withdraw(c.Request.Context(), principal, req, requestMeta(c))
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, response)
}

func requestMeta(c *gin.Context) auditmodel.RequestMeta {
	return auditmodel.RequestMeta{
		IPAddress: c.ClientIP(),
		RequestID: middleware.GetCorrelationID(c),
	}
}
