// Package provider provides functionality for managing database clients.
package provider

import (
	"github.com/medicore/pii-protection-api/internal/system/database"
	"github.com/medicore/pii-protection-api/internal/system/log"
)

// DBProviderInterface defines the interface for getting database clients.
type DBProviderInterface interface {
	GetDBClient() DBClientInterface
}

// dbProvider is the implementation of DBProviderInterface.
// It is constructed once at startup and passed by reference to consumers.
type dbProvider struct {
	client DBClientInterface
}

// NewDBProvider creates a provider backed by the given database connection.
func NewDBProvider(db *database.DB, dbType string) DBProviderInterface {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "DBProvider"))

	if db == nil {
		logger.Fatal("Database connection is nil")
	}

	provider := &dbProvider{
		client: NewDBClient(db.DB, dbType),
	}
	logger.Debug("DB client initialized", log.String("db_type", dbType))
	return provider
}

// GetDBClient returns the database client. The client manages its own
// connection pool, callers must not close it.
func (d *dbProvider) GetDBClient() DBClientInterface {
	return d.client
}
