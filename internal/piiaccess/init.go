package piiaccess

import (
	"github.com/gin-gonic/gin"

	"github.com/medicore/pii-protection-api/internal/authz"
	"github.com/medicore/pii-protection-api/internal/fieldcipher"
	"github.com/medicore/pii-protection-api/internal/system/config"
	"github.com/medicore/pii-protection-api/internal/system/stores"
)

// Initialize wires the PII access service and registers its routes on the
// API router group.
func Initialize(rg *gin.RouterGroup, registry *stores.StoreRegistry, gateway *authz.Gateway,
	cipher *fieldcipher.Cipher, audit AuditAppender, cfg *config.PIIConfig) PIIAccessService {

	service := NewPIIAccessService(registry, gateway, cipher, audit, cfg)
	handler := newPIIAccessHandler(service)

	rg.GET("/decrypt-profile", handler.HandleRevealProfile)
	rg.POST("/decrypt-field", handler.HandleReveal)
	rg.POST("/protect-field", handler.HandleProtect)

	return service
}
