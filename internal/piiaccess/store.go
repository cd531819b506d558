package piiaccess

import (
	"context"

	"github.com/medicore/pii-protection-api/internal/piiaccess/model"
	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
	"github.com/medicore/pii-protection-api/internal/system/database/provider"
)

// DBQuery objects for protected field operations
var (
	QueryCreateProtectedField = dbmodel.DBQuery{
		ID:    "CREATE_PROTECTED_FIELD",
		Query: "INSERT INTO PROTECTED_FIELD (FIELD_ID, ENTITY_TYPE, ENTITY_ID, FIELD_NAME, ENVELOPE, KEY_VERSION, CREATED_TIME, SUPERSEDED_TIME) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)",
	}

	QueryGetCurrentField = dbmodel.DBQuery{
		ID:    "GET_CURRENT_FIELD",
		Query: "SELECT FIELD_ID, ENTITY_TYPE, ENTITY_ID, FIELD_NAME, ENVELOPE, KEY_VERSION, CREATED_TIME, SUPERSEDED_TIME FROM PROTECTED_FIELD WHERE ENTITY_TYPE = ? AND ENTITY_ID = ? AND FIELD_NAME = ? AND SUPERSEDED_TIME IS NULL",
	}

	QueryListCurrentFields = dbmodel.DBQuery{
		ID:    "LIST_CURRENT_FIELDS",
		Query: "SELECT FIELD_ID, ENTITY_TYPE, ENTITY_ID, FIELD_NAME, ENVELOPE, KEY_VERSION, CREATED_TIME, SUPERSEDED_TIME FROM PROTECTED_FIELD WHERE ENTITY_TYPE = ? AND ENTITY_ID = ? AND SUPERSEDED_TIME IS NULL ORDER BY FIELD_NAME",
	}

	// The guard clause ensures a row can be superseded at most once.
	QuerySupersedeField = dbmodel.DBQuery{
		ID:    "SUPERSEDE_FIELD",
		Query: "UPDATE PROTECTED_FIELD SET SUPERSEDED_TIME = ? WHERE FIELD_ID = ? AND SUPERSEDED_TIME IS NULL",
	}
)

// ProtectedFieldStore defines the interface for protected field persistence
// (exported for the store registry).
type ProtectedFieldStore interface {
	GetCurrent(ctx context.Context, ref model.EntityRef, fieldName string) (*model.ProtectedField, error)
	ListCurrent(ctx context.Context, ref model.EntityRef) ([]model.ProtectedField, error)
	Create(tx dbmodel.TxInterface, field *model.ProtectedField) error
	Supersede(tx dbmodel.TxInterface, fieldID string, supersededTime int64) (int64, error)
}

// store implements the ProtectedFieldStore interface
type store struct {
	dbClient provider.DBClientInterface
}

// NewStore creates a new protected field store
func NewStore(dbClient provider.DBClientInterface) ProtectedFieldStore {
	return &store{
		dbClient: dbClient,
	}
}

// GetCurrent retrieves the current envelope for one field, or nil when the
// entity has no such field.
func (s *store) GetCurrent(ctx context.Context, ref model.EntityRef, fieldName string) (*model.ProtectedField, error) {
	rows, err := s.dbClient.Query(QueryGetCurrentField, ref.EntityType, ref.EntityID, fieldName)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return mapToProtectedField(rows[0]), nil
}

// ListCurrent retrieves all current envelopes for an entity.
func (s *store) ListCurrent(ctx context.Context, ref model.EntityRef) ([]model.ProtectedField, error) {
	rows, err := s.dbClient.Query(QueryListCurrentFields, ref.EntityType, ref.EntityID)
	if err != nil {
		return nil, err
	}

	fields := make([]model.ProtectedField, 0, len(rows))
	for _, row := range rows {
		field := mapToProtectedField(row)
		if field != nil {
			fields = append(fields, *field)
		}
	}
	return fields, nil
}

// Create inserts a new current field row inside an enclosing transaction.
func (s *store) Create(tx dbmodel.TxInterface, field *model.ProtectedField) error {
	_, err := tx.Exec(QueryCreateProtectedField.Query,
		field.FieldID, field.EntityType, field.EntityID, field.FieldName,
		field.Envelope, field.KeyVersion, field.CreatedTime)
	return err
}

// Supersede stamps a field row as superseded inside an enclosing transaction
// and returns the number of rows affected.
func (s *store) Supersede(tx dbmodel.TxInterface, fieldID string, supersededTime int64) (int64, error) {
	result, err := tx.Exec(QuerySupersedeField.Query, supersededTime, fieldID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func mapToProtectedField(row map[string]interface{}) *model.ProtectedField {
	if row == nil {
		return nil
	}

	field := &model.ProtectedField{}

	if id, ok := row["FIELD_ID"].(string); ok {
		field.FieldID = id
	}
	if entityType, ok := row["ENTITY_TYPE"].(string); ok {
		field.EntityType = entityType
	}
	if entityID, ok := row["ENTITY_ID"].(string); ok {
		field.EntityID = entityID
	}
	if fieldName, ok := row["FIELD_NAME"].(string); ok {
		field.FieldName = fieldName
	}
	if envelope, ok := row["ENVELOPE"].(string); ok {
		field.Envelope = envelope
	}
	if keyVersion, ok := row["KEY_VERSION"].(int64); ok {
		field.KeyVersion = int(keyVersion)
	}
	if createdTime, ok := row["CREATED_TIME"].(int64); ok {
		field.CreatedTime = createdTime
	}
	if supersededTime, ok := row["SUPERSEDED_TIME"].(int64); ok {
		field.SupersededTime = &supersededTime
	}

	return field
}
