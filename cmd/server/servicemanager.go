package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medicore/pii-protection-api/internal/audit"
	"github.com/medicore/pii-protection-api/internal/authz"
	"github.com/medicore/pii-protection-api/internal/consent"
	"github.com/medicore/pii-protection-api/internal/fieldcipher"
	"github.com/medicore/pii-protection-api/internal/piiaccess"
	"github.com/medicore/pii-protection-api/internal/system/config"
	"github.com/medicore/pii-protection-api/internal/system/constants"
	"github.com/medicore/pii-protection-api/internal/system/database"
	"github.com/medicore/pii-protection-api/internal/system/database/provider"
	"github.com/medicore/pii-protection-api/internal/system/log"
	"github.com/medicore/pii-protection-api/internal/system/middleware"
	"github.com/medicore/pii-protection-api/internal/system/stores"
)

// Package-level service references for cleanup during shutdown
var (
	auditService     audit.AuditService
	consentService   consent.ConsentService
	piiAccessService piiaccess.PIIAccessService
)

// registerServices wires the feature modules onto the gin engine. Module
// initialization order matters: the audit service must exist before the
// modules that append entries alongside their own state changes.
func registerServices(
	engine *gin.Engine,
	cfg *config.Config,
	dbClient provider.DBClientInterface,
	db *database.DB,
	cipher *fieldcipher.Cipher,
) {
	logger := log.GetLogger()

	registry := stores.NewStoreRegistry(
		dbClient,
		piiaccess.NewStore(dbClient),
		consent.NewStore(dbClient),
		audit.NewStore(dbClient),
	)
	gateway := authz.NewGateway()

	engine.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := db.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := engine.Group(constants.APIBasePath)
	api.Use(middleware.CorrelationIDMiddleware())
	api.Use(middleware.CORSMiddleware(middleware.CORSOptions{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
	}))
	api.Use(middleware.AuthMiddleware(cfg.Security.JWTSecret()))

	auditService = audit.Initialize(api, registry, gateway)
	logger.Info("Audit module initialized")

	consentService = consent.Initialize(api, registry, gateway, auditService, &cfg.Consent)
	logger.Info("Consent module initialized")

	piiAccessService = piiaccess.Initialize(api, registry, gateway, cipher, auditService, &cfg.PII)
	logger.Info("PIIAccess module initialized")
}

// unregisterServices performs cleanup of all services during shutdown.
// Currently a placeholder for future service cleanup needs.
func unregisterServices() {
	// Future: Add any service-specific cleanup logic here
	// e.g., closing connections, flushing caches, etc.
}
