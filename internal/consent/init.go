package consent

import (
	"github.com/gin-gonic/gin"

	"github.com/medicore/pii-protection-api/internal/authz"
	"github.com/medicore/pii-protection-api/internal/system/config"
	"github.com/medicore/pii-protection-api/internal/system/stores"
)

// Initialize wires the consent service and registers its routes on the API
// router group.
func Initialize(rg *gin.RouterGroup, registry *stores.StoreRegistry, gateway *authz.Gateway,
	audit AuditAppender, cfg *config.ConsentConfig) ConsentService {

	service := NewConsentService(registry, gateway, audit, cfg)
	handler := newConsentHandler(service)

	rg.GET("/consent/manage", handler.HandleHistory)
	rg.PUT("/consent/manage", handler.HandleGrant)
	rg.POST("/consent/manage", handler.HandleWithdraw)

	return service
}
