package provider

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
)

// DBClientInterface defines the interface for executing identified queries.
type DBClientInterface interface {
	Query(query dbmodel.DBQuery, args ...interface{}) ([]map[string]interface{}, error)
	Execute(query dbmodel.DBQuery, args ...interface{}) (int64, error)
	BeginTx() (dbmodel.TxInterface, error)
	GetDBType() string
}

// dbClient implements DBClientInterface over a sqlx connection pool.
type dbClient struct {
	db     *sqlx.DB
	dbType string
}

// NewDBClient creates a new database client for the given connection and dialect.
func NewDBClient(db *sqlx.DB, dbType string) DBClientInterface {
	return &dbClient{
		db:     db,
		dbType: dbType,
	}
}

// Query executes a read query and returns the result rows as maps keyed by column name.
func (c *dbClient) Query(query dbmodel.DBQuery, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := c.db.Queryx(query.GetQuery(c.dbType), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", query.GetID(), err)
	}
	defer rows.Close()

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("query %s scan failed: %w", query.GetID(), err)
		}
		results = append(results, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s iteration failed: %w", query.GetID(), err)
	}

	return results, nil
}

// Execute runs a write query and returns the number of affected rows.
func (c *dbClient) Execute(query dbmodel.DBQuery, args ...interface{}) (int64, error) {
	result, err := c.db.Exec(query.GetQuery(c.dbType), args...)
	if err != nil {
		return 0, fmt.Errorf("execute %s failed: %w", query.GetID(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("execute %s rows affected: %w", query.GetID(), err)
	}
	return affected, nil
}

// BeginTx starts a new transaction.
func (c *dbClient) BeginTx() (dbmodel.TxInterface, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return dbmodel.NewTx(tx), nil
}

// GetDBType returns the database dialect of the client.
func (c *dbClient) GetDBType() string {
	return c.dbType
}

// normalizeRow converts driver-specific scan types into the types
// the store mappers expect. The MySQL driver returns []byte for text columns.
func normalizeRow(row map[string]interface{}) map[string]interface{} {
	for key, value := range row {
		switch v := value.(type) {
		case []byte:
			row[key] = string(v)
		}
	}
	return row
}
