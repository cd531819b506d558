package consent

import (
	"context"

	"github.com/medicore/pii-protection-api/internal/consent/model"
	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
	"github.com/medicore/pii-protection-api/internal/system/database/provider"
)

// DBQuery objects for consent operations
var (
	QueryCreateConsentRecord = dbmodel.DBQuery{
		ID:    "CREATE_CONSENT_RECORD",
		Query: "INSERT INTO CONSENT_RECORD (CONSENT_ID, SUBJECT_ID, CONSENT_TYPE, PURPOSE, LEGAL_BASIS, CONSENT_VERSION, GRANTED, GRANTED_TIME, WITHDRAWN_TIME, WITHDRAWAL_REASON, EXPIRY_TIME, CREATED_TIME) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	}

	QueryGetConsentByID = dbmodel.DBQuery{
		ID:    "GET_CONSENT_BY_ID",
		Query: "SELECT CONSENT_ID, SUBJECT_ID, CONSENT_TYPE, PURPOSE, LEGAL_BASIS, CONSENT_VERSION, GRANTED, GRANTED_TIME, WITHDRAWN_TIME, WITHDRAWAL_REASON, EXPIRY_TIME, CREATED_TIME FROM CONSENT_RECORD WHERE CONSENT_ID = ?",
	}

	QueryGetConsentsBySubject = dbmodel.DBQuery{
		ID:    "GET_CONSENTS_BY_SUBJECT",
		Query: "SELECT CONSENT_ID, SUBJECT_ID, CONSENT_TYPE, PURPOSE, LEGAL_BASIS, CONSENT_VERSION, GRANTED, GRANTED_TIME, WITHDRAWN_TIME, WITHDRAWAL_REASON, EXPIRY_TIME, CREATED_TIME FROM CONSENT_RECORD WHERE SUBJECT_ID = ? ORDER BY CREATED_TIME DESC",
	}

	QueryGetActiveConsentByType = dbmodel.DBQuery{
		ID:    "GET_ACTIVE_CONSENT_BY_TYPE",
		Query: "SELECT CONSENT_ID, SUBJECT_ID, CONSENT_TYPE, PURPOSE, LEGAL_BASIS, CONSENT_VERSION, GRANTED, GRANTED_TIME, WITHDRAWN_TIME, WITHDRAWAL_REASON, EXPIRY_TIME, CREATED_TIME FROM CONSENT_RECORD WHERE SUBJECT_ID = ? AND CONSENT_TYPE = ? AND GRANTED = TRUE AND WITHDRAWN_TIME IS NULL ORDER BY CREATED_TIME DESC LIMIT 1",
	}

	QueryGetLatestConsentByType = dbmodel.DBQuery{
		ID:    "GET_LATEST_CONSENT_BY_TYPE",
		Query: "SELECT CONSENT_ID, SUBJECT_ID, CONSENT_TYPE, PURPOSE, LEGAL_BASIS, CONSENT_VERSION, GRANTED, GRANTED_TIME, WITHDRAWN_TIME, WITHDRAWAL_REASON, EXPIRY_TIME, CREATED_TIME FROM CONSENT_RECORD WHERE SUBJECT_ID = ? AND CONSENT_TYPE = ? ORDER BY CREATED_TIME DESC LIMIT 1",
	}

	// The guard clause makes withdrawal a compare-and-set: only an active,
	// not-yet-withdrawn grant can be stamped, so concurrent withdrawals of
	// the same record serialize on rows-affected.
	QueryWithdrawConsent = dbmodel.DBQuery{
		ID:    "WITHDRAW_CONSENT",
		Query: "UPDATE CONSENT_RECORD SET WITHDRAWN_TIME = ?, WITHDRAWAL_REASON = ? WHERE CONSENT_ID = ? AND GRANTED = TRUE AND WITHDRAWN_TIME IS NULL",
	}
)

// ConsentStore defines the interface for consent record persistence
// (exported for the store registry).
type ConsentStore interface {
	Create(tx dbmodel.TxInterface, record *model.ConsentRecord) error
	GetByID(ctx context.Context, consentID string) (*model.ConsentRecord, error)
	GetBySubject(ctx context.Context, subjectID string) ([]model.ConsentRecord, error)
	GetActiveByType(ctx context.Context, subjectID, consentType string) (*model.ConsentRecord, error)
	GetLatestByType(ctx context.Context, subjectID, consentType string) (*model.ConsentRecord, error)
	Withdraw(tx dbmodel.TxInterface, consentID string, withdrawnTime int64, reason string) (int64, error)
}

// store implements the ConsentStore interface
type store struct {
	dbClient provider.DBClientInterface
}

// NewStore creates a new consent store
func NewStore(dbClient provider.DBClientInterface) ConsentStore {
	return &store{
		dbClient: dbClient,
	}
}

// Create inserts a new consent record inside an enclosing transaction.
func (s *store) Create(tx dbmodel.TxInterface, record *model.ConsentRecord) error {
	_, err := tx.Exec(QueryCreateConsentRecord.Query,
		record.ConsentID, record.SubjectID, record.ConsentType, record.Purpose,
		record.LegalBasis, record.ConsentVersion, record.Granted, record.GrantedTime,
		record.WithdrawnTime, record.WithdrawalReason, record.ExpiryTime, record.CreatedTime)
	return err
}

// GetByID retrieves a consent record by its identifier.
func (s *store) GetByID(ctx context.Context, consentID string) (*model.ConsentRecord, error) {
	rows, err := s.dbClient.Query(QueryGetConsentByID, consentID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return mapToConsentRecord(rows[0]), nil
}

// GetBySubject retrieves the full consent history for a subject, newest first.
func (s *store) GetBySubject(ctx context.Context, subjectID string) ([]model.ConsentRecord, error) {
	rows, err := s.dbClient.Query(QueryGetConsentsBySubject, subjectID)
	if err != nil {
		return nil, err
	}

	records := make([]model.ConsentRecord, 0, len(rows))
	for _, row := range rows {
		record := mapToConsentRecord(row)
		if record != nil {
			records = append(records, *record)
		}
	}
	return records, nil
}

// GetActiveByType retrieves the newest non-withdrawn grant of the given type,
// or nil when none exists.
func (s *store) GetActiveByType(ctx context.Context, subjectID, consentType string) (*model.ConsentRecord, error) {
	rows, err := s.dbClient.Query(QueryGetActiveConsentByType, subjectID, consentType)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return mapToConsentRecord(rows[0]), nil
}

// GetLatestByType retrieves the newest record of the given type regardless of
// state, or nil when the subject has never had one.
func (s *store) GetLatestByType(ctx context.Context, subjectID, consentType string) (*model.ConsentRecord, error) {
	rows, err := s.dbClient.Query(QueryGetLatestConsentByType, subjectID, consentType)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return mapToConsentRecord(rows[0]), nil
}

// Withdraw stamps an active grant as withdrawn inside an enclosing
// transaction and returns the number of rows affected. Zero means the record
// was not an active grant at execution time.
func (s *store) Withdraw(tx dbmodel.TxInterface, consentID string, withdrawnTime int64, reason string) (int64, error) {
	result, err := tx.Exec(QueryWithdrawConsent.Query, withdrawnTime, reason, consentID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func mapToConsentRecord(row map[string]interface{}) *model.ConsentRecord {
	if row == nil {
		return nil
	}

	record := &model.ConsentRecord{}

	if id, ok := row["CONSENT_ID"].(string); ok {
		record.ConsentID = id
	}
	if subjectID, ok := row["SUBJECT_ID"].(string); ok {
		record.SubjectID = subjectID
	}
	if consentType, ok := row["CONSENT_TYPE"].(string); ok {
		record.ConsentType = consentType
	}
	if purpose, ok := row["PURPOSE"].(string); ok {
		record.Purpose = purpose
	}
	if legalBasis, ok := row["LEGAL_BASIS"].(string); ok {
		record.LegalBasis = legalBasis
	}
	if version, ok := row["CONSENT_VERSION"].(string); ok {
		record.ConsentVersion = version
	}
	switch granted := row["GRANTED"].(type) {
	case bool:
		record.Granted = granted
	case int64:
		record.Granted = granted != 0
	case string:
		record.Granted = granted == "1"
	}
	if grantedTime, ok := row["GRANTED_TIME"].(int64); ok {
		record.GrantedTime = &grantedTime
	}
	if withdrawnTime, ok := row["WITHDRAWN_TIME"].(int64); ok {
		record.WithdrawnTime = &withdrawnTime
	}
	if reason, ok := row["WITHDRAWAL_REASON"].(string); ok && reason != "" {
		record.WithdrawalReason = &reason
	}
	if expiryTime, ok := row["EXPIRY_TIME"].(int64); ok {
		record.ExpiryTime = &expiryTime
	}
	if createdTime, ok := row["CREATED_TIME"].(int64); ok {
		record.CreatedTime = createdTime
	}

	return record
}
