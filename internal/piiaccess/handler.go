package piiaccess

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditmodel "github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/piiaccess/model"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/middleware"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

// piiAccessHandler handles HTTP requests for field reveal and protect.
type piiAccessHandler struct {
	service PIIAccessService
}

func newPIIAccessHandler(service PIIAccessService) *piiAccessHandler {
	return &piiAccessHandler{service: service}
}

// HandleRevealProfile handles GET /decrypt-profile
func (h *piiAccessHandler) HandleRevealProfile(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.SendError(c, &serviceerror.AuthenticationError)
		return
	}

	result, svcErr := h.service.RevealProfile(c.Request.Context(), principal, requestMeta(c))
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleReveal handles POST /decrypt-field
func (h *piiAccessHandler) HandleReveal(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.SendError(c, &serviceerror.AuthenticationError)
		return
	}

	var req model.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, err.Error()))
		return
	}

	ref := model.EntityRef{
		EntityType: utils.SanitizeString(req.EntityType),
		EntityID:   utils.SanitizeString(req.EntityID),
	}

	result, svcErr := h.service.Reveal(c.Request.Context(), principal, ref, req.Fields, requestMeta(c))
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleProtect handles POST /protect-field
func (h *piiAccessHandler) HandleProtect(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.SendError(c, &serviceerror.AuthenticationError)
		return
	}

	var req model.ProtectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, err.Error()))
		return
	}

	ref := model.EntityRef{
		EntityType: utils.SanitizeString(req.EntityType),
		EntityID:   utils.SanitizeString(req.EntityID),
	}

	result, svcErr := h.service.Protect(c.Request.Context(), principal, ref, req.Values, requestMeta(c))
	if svcErr != nil {
		utils.SendError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

func requestMeta(c *gin.Context) auditmodel.RequestMeta {
	return auditmodel.RequestMeta{
		IPAddress: c.ClientIP(),
		RequestID: middleware.GetCorrelationID(c),
	}
}
