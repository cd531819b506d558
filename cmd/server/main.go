package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/medicore/pii-protection-api/internal/fieldcipher"
	"github.com/medicore/pii-protection-api/internal/keyring"
	"github.com/medicore/pii-protection-api/internal/system/config"
	"github.com/medicore/pii-protection-api/internal/system/database"
	"github.com/medicore/pii-protection-api/internal/system/database/provider"
	"github.com/medicore/pii-protection-api/internal/system/log"
)

// Version information (set by build script)
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// Local development secrets; ignored when no .env file exists.
	_ = godotenv.Load()

	logger := log.GetLogger()
	logger.Info("Starting PII Protection API Server...",
		log.String("version", version),
		log.String("build_date", buildDate),
	)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load configuration", log.Error(err))
	}
	log.SetLevel(cfg.Logging.Level)
	logger.Info("Configuration loaded successfully",
		log.String("log_level", cfg.Logging.Level))

	db, err := database.Initialize(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", log.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.HealthCheck(ctx); err != nil {
		logger.Fatal("Database health check failed", log.Error(err))
	}
	logger.Info("Database connection established successfully")

	dbProvider := provider.NewDBProvider(db, cfg.Database.Type)

	// The key ring is built once at startup; a missing or malformed master
	// secret must stop the process, never surface as a per-request failure.
	ring, err := keyring.New(&cfg.Encryption)
	if err != nil {
		logger.Fatal("Failed to build encryption key ring", log.Error(err))
	}
	cipher := fieldcipher.New(ring)
	logger.Info("Encryption key ring ready",
		log.Int("active_version", ring.ActiveVersion()),
		log.Int("decryptable_versions", len(ring.Versions())),
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	registerServices(engine, cfg, dbProvider.GetDBClient(), db, cipher)

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		logger.Info("Starting HTTP server...",
			log.String("address", server.Addr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", log.Error(err))
		}
	}()

	logger.Info("Server is running", log.String("address", server.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", log.Error(err))
	}

	unregisterServices()
	logger.Info("Server stopped")
}
