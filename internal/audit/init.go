package audit

import (
	"github.com/gin-gonic/gin"

	"github.com/medicore/pii-protection-api/internal/authz"
	"github.com/medicore/pii-protection-api/internal/system/stores"
)

// Initialize wires the audit service and registers its routes on the API
// router group. The returned service is shared with the modules that write
// audit entries alongside their own state changes.
func Initialize(rg *gin.RouterGroup, registry *stores.StoreRegistry, gateway *authz.Gateway) AuditService {
	service := NewAuditService(registry, gateway)
	handler := newAuditHandler(service)

	rg.GET("/audit/entries", handler.HandleQuery)

	return service
}
