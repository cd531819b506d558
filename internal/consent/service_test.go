package consent

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodel "github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/authz"
	authzmodel "github.com/medicore/pii-protection-api/internal/authz/model"
	"github.com/medicore/pii-protection-api/internal/consent/model"
	"github.com/medicore/pii-protection-api/internal/system/config"
	"github.com/medicore/pii-protection-api/internal/system/constants"
	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/stores"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

type fakeResult struct{ rows int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

type fakeTx struct{}

func (fakeTx) Exec(query string, args ...interface{}) (sql.Result, error) {
	return fakeResult{rows: 1}, nil
}
func (fakeTx) Query(query string, args ...interface{}) (*sql.Rows, error) { return nil, nil }
func (fakeTx) Commit() error                                              { return nil }
func (fakeTx) Rollback() error                                            { return nil }

type fakeDBClient struct{}

func (fakeDBClient) Query(query dbmodel.DBQuery, args ...interface{}) ([]map[string]interface{}, error) {
	return nil, nil
}
func (fakeDBClient) Execute(query dbmodel.DBQuery, args ...interface{}) (int64, error) {
	return 0, nil
}
func (fakeDBClient) BeginTx() (dbmodel.TxInterface, error) { return fakeTx{}, nil }
func (fakeDBClient) GetDBType() string                     { return "mysql" }

// fakeConsentStore keeps consent records in memory and mirrors the SQL
// semantics of the real store, including the CAS withdrawal guard.
type fakeConsentStore struct {
	records      map[string]*model.ConsentRecord
	withdrawFail bool
}

func newFakeConsentStore() *fakeConsentStore {
	return &fakeConsentStore{records: make(map[string]*model.ConsentRecord)}
}

func (s *fakeConsentStore) Create(tx dbmodel.TxInterface, record *model.ConsentRecord) error {
	copied := *record
	s.records[record.ConsentID] = &copied
	return nil
}

func (s *fakeConsentStore) GetByID(ctx context.Context, consentID string) (*model.ConsentRecord, error) {
	record, ok := s.records[consentID]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *fakeConsentStore) bySubject(subjectID string) []*model.ConsentRecord {
	matches := make([]*model.ConsentRecord, 0)
	for _, record := range s.records {
		if record.SubjectID == subjectID {
			matches = append(matches, record)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedTime > matches[j].CreatedTime
	})
	return matches
}

func (s *fakeConsentStore) GetBySubject(ctx context.Context, subjectID string) ([]model.ConsentRecord, error) {
	matches := s.bySubject(subjectID)
	out := make([]model.ConsentRecord, 0, len(matches))
	for _, record := range matches {
		out = append(out, *record)
	}
	return out, nil
}

func (s *fakeConsentStore) GetActiveByType(ctx context.Context, subjectID, consentType string) (*model.ConsentRecord, error) {
	for _, record := range s.bySubject(subjectID) {
		if record.ConsentType == consentType && record.Granted && record.WithdrawnTime == nil {
			copied := *record
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeConsentStore) GetLatestByType(ctx context.Context, subjectID, consentType string) (*model.ConsentRecord, error) {
	for _, record := range s.bySubject(subjectID) {
		if record.ConsentType == consentType {
			copied := *record
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeConsentStore) Withdraw(tx dbmodel.TxInterface, consentID string, withdrawnTime int64, reason string) (int64, error) {
	if s.withdrawFail {
		return 0, nil
	}
	record, ok := s.records[consentID]
	if !ok || !record.Granted || record.WithdrawnTime != nil {
		return 0, nil
	}
	record.WithdrawnTime = &withdrawnTime
	record.WithdrawalReason = &reason
	return 1, nil
}

type fakeAudit struct {
	entries    []*auditmodel.AuditEntry
	failAppend bool
}

func (a *fakeAudit) Append(ctx context.Context, entry *auditmodel.AuditEntry) *serviceerror.ServiceError {
	if a.failAppend {
		return &serviceerror.AuditWriteError
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudit) AppendInTx(tx dbmodel.TxInterface, entry *auditmodel.AuditEntry) error {
	a.entries = append(a.entries, entry)
	return nil
}

var testConsentConfig = &config.ConsentConfig{
	RequiredTypes: []string{"DATA_PROCESSING", "TREATMENT", "DATA_SHARING", "RESEARCH"},
}

func newTestConsentService(t *testing.T) (ConsentService, *fakeConsentStore, *fakeAudit) {
	t.Helper()
	store := newFakeConsentStore()
	audit := &fakeAudit{}
	registry := stores.NewStoreRegistry(fakeDBClient{}, nil, store, nil)
	service := NewConsentService(registry, authz.NewGateway(), audit, testConsentConfig)
	return service, store, audit
}

func patientPrincipal(id string) authzmodel.Principal {
	return authzmodel.Principal{ID: id, Role: authzmodel.RolePatient}
}

var testMeta = auditmodel.RequestMeta{IPAddress: "10.0.0.1", RequestID: "req-1"}

func TestGrantCreatesNewRecord(t *testing.T) {
	service, store, audit := newTestConsentService(t)
	ctx := context.Background()

	response, svcErr := service.Grant(ctx, patientPrincipal("user-1"), model.GrantRequest{
		UserID:      "user-1",
		ConsentType: "MARKETING",
		Purpose:     "newsletter",
	}, testMeta)
	require.Nil(t, svcErr)

	assert.Equal(t, model.StatusGranted, response.Status)
	assert.Equal(t, "user-1", response.SubjectID)
	assert.NotEmpty(t, response.ID)
	assert.Len(t, store.records, 1)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, constants.ActionConsentGranted, entry.Action)
	assert.True(t, entry.Success)
	assert.Equal(t, "user-1", entry.PrincipalID)
}

func TestGrantDeniedForOtherSubject(t *testing.T) {
	service, store, audit := newTestConsentService(t)

	_, svcErr := service.Grant(context.Background(), patientPrincipal("user-1"), model.GrantRequest{
		UserID:      "user-2",
		ConsentType: "MARKETING",
	}, testMeta)
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.AuthorizationDeniedError.Code, svcErr.Code)

	assert.Empty(t, store.records)
	require.Len(t, audit.entries, 1)
	assert.False(t, audit.entries[0].Success)
	assert.Equal(t, authz.ReasonInsufficientScope, *audit.entries[0].Reason)
}

func TestWithdrawRequiresReason(t *testing.T) {
	service, _, _ := newTestConsentService(t)

	_, svcErr := service.Withdraw(context.Background(), patientPrincipal("user-1"), model.WithdrawRequest{
		UserID:      "user-1",
		ConsentType: "MARKETING",
	}, testMeta)
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.ValidationError.Code, svcErr.Code)
}

func TestGrantWithdrawRegrantKeepsHistory(t *testing.T) {
	service, store, audit := newTestConsentService(t)
	ctx := context.Background()
	principal := patientPrincipal("user-1")

	first, svcErr := service.Grant(ctx, principal, model.GrantRequest{
		UserID: "user-1", ConsentType: "MARKETING",
	}, testMeta)
	require.Nil(t, svcErr)

	withdrawn, svcErr := service.Withdraw(ctx, principal, model.WithdrawRequest{
		UserID: "user-1", ConsentType: "MARKETING", Reason: "no longer needed",
	}, testMeta)
	require.Nil(t, svcErr)
	assert.Equal(t, model.StatusWithdrawn, withdrawn.Status)
	assert.Equal(t, first.ID, withdrawn.ID)
	assert.Equal(t, "no longer needed", *withdrawn.WithdrawalReason)

	second, svcErr := service.Grant(ctx, principal, model.GrantRequest{
		UserID: "user-1", ConsentType: "MARKETING",
	}, testMeta)
	require.Nil(t, svcErr)
	assert.NotEqual(t, first.ID, second.ID)

	// The withdrawn record stays terminal next to the new grant.
	assert.Len(t, store.records, 2)
	stored := store.records[first.ID]
	assert.NotNil(t, stored.WithdrawnTime)

	history, svcErr := service.History(ctx, principal, "user-1")
	require.Nil(t, svcErr)
	assert.Len(t, history.Consents, 2)

	actions := make([]string, 0, len(audit.entries))
	for _, entry := range audit.entries {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{
		constants.ActionConsentGranted,
		constants.ActionConsentWithdrawn,
		constants.ActionConsentGranted,
	}, actions)
}

func TestWithdrawAlreadyWithdrawn(t *testing.T) {
	service, _, audit := newTestConsentService(t)
	ctx := context.Background()
	principal := patientPrincipal("user-1")

	_, svcErr := service.Grant(ctx, principal, model.GrantRequest{
		UserID: "user-1", ConsentType: "MARKETING",
	}, testMeta)
	require.Nil(t, svcErr)

	_, svcErr = service.Withdraw(ctx, principal, model.WithdrawRequest{
		UserID: "user-1", ConsentType: "MARKETING", Reason: "first",
	}, testMeta)
	require.Nil(t, svcErr)

	_, svcErr = service.Withdraw(ctx, principal, model.WithdrawRequest{
		UserID: "user-1", ConsentType: "MARKETING", Reason: "second",
	}, testMeta)
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.InvalidStateTransitionError.Code, svcErr.Code)
	assert.Contains(t, svcErr.ErrorDescription, string(model.StatusWithdrawn))

	last := audit.entries[len(audit.entries)-1]
	assert.Equal(t, constants.ActionConsentWithdrawn, last.Action)
	assert.False(t, last.Success)
}

func TestWithdrawExpiredConsent(t *testing.T) {
	service, store, _ := newTestConsentService(t)
	principal := patientPrincipal("user-1")

	past := utils.GetCurrentTimeMillis() - 1000
	granted := past - 1000
	store.records["c-expired"] = &model.ConsentRecord{
		ConsentID:   "c-expired",
		SubjectID:   "user-1",
		ConsentType: "MARKETING",
		Granted:     true,
		GrantedTime: &granted,
		ExpiryTime:  &past,
		CreatedTime: granted,
	}

	_, svcErr := service.Withdraw(context.Background(), principal, model.WithdrawRequest{
		UserID: "user-1", ConsentType: "MARKETING", Reason: "cleanup",
	}, testMeta)
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.InvalidStateTransitionError.Code, svcErr.Code)
	assert.Contains(t, svcErr.ErrorDescription, string(model.StatusExpired))
}

func TestWithdrawWithoutAnyRecord(t *testing.T) {
	service, _, _ := newTestConsentService(t)

	_, svcErr := service.Withdraw(context.Background(), patientPrincipal("user-1"), model.WithdrawRequest{
		UserID: "user-1", ConsentType: "MARKETING", Reason: "none exists",
	}, testMeta)
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.ResourceNotFoundError.Code, svcErr.Code)
}

func TestWithdrawConcurrentConflict(t *testing.T) {
	service, store, _ := newTestConsentService(t)
	ctx := context.Background()
	principal := patientPrincipal("user-1")

	_, svcErr := service.Grant(ctx, principal, model.GrantRequest{
		UserID: "user-1", ConsentType: "MARKETING",
	}, testMeta)
	require.Nil(t, svcErr)

	store.withdrawFail = true
	_, svcErr = service.Withdraw(ctx, principal, model.WithdrawRequest{
		UserID: "user-1", ConsentType: "MARKETING", Reason: "racing",
	}, testMeta)
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.InvalidStateTransitionError.Code, svcErr.Code)
}

func TestHistoryReportsExpiredWithoutMutation(t *testing.T) {
	service, store, _ := newTestConsentService(t)
	principal := patientPrincipal("user-1")

	past := utils.GetCurrentTimeMillis() - 1000
	granted := past - 1000
	store.records["c1"] = &model.ConsentRecord{
		ConsentID:   "c1",
		SubjectID:   "user-1",
		ConsentType: "TREATMENT",
		Granted:     true,
		GrantedTime: &granted,
		ExpiryTime:  &past,
		CreatedTime: granted,
	}

	history, svcErr := service.History(context.Background(), principal, "user-1")
	require.Nil(t, svcErr)
	require.Len(t, history.Consents, 1)
	assert.Equal(t, model.StatusExpired, history.Consents[0].Status)

	// Derivation never writes back.
	assert.Nil(t, store.records["c1"].WithdrawnTime)
	assert.True(t, store.records["c1"].Granted)
}

func TestHistoryDeniedForUnrelatedPatient(t *testing.T) {
	service, _, _ := newTestConsentService(t)

	_, svcErr := service.History(context.Background(), patientPrincipal("user-1"), "user-2")
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.AuthorizationDeniedError.Code, svcErr.Code)
}

func TestComputeCompliance(t *testing.T) {
	now := utils.GetCurrentTimeMillis()
	grantedTime := now - 1000

	grantedRecord := func(consentType string, created int64) model.ConsentRecord {
		return model.ConsentRecord{
			ConsentID:   utils.GenerateUUID(),
			SubjectID:   "user-1",
			ConsentType: consentType,
			Granted:     true,
			GrantedTime: &grantedTime,
			CreatedTime: created,
		}
	}

	required := testConsentConfig.RequiredTypes

	t.Run("all granted", func(t *testing.T) {
		records := []model.ConsentRecord{
			grantedRecord("DATA_PROCESSING", 1),
			grantedRecord("TREATMENT", 2),
			grantedRecord("DATA_SHARING", 3),
			grantedRecord("RESEARCH", 4),
		}
		summary := ComputeCompliance(records, required, now)
		assert.Equal(t, 100.0, summary.Score)
		assert.Equal(t, model.RiskLow, summary.RiskLevel)
		assert.Empty(t, summary.MissingTypes)
	})

	t.Run("three of four granted", func(t *testing.T) {
		records := []model.ConsentRecord{
			grantedRecord("DATA_PROCESSING", 1),
			grantedRecord("TREATMENT", 2),
			grantedRecord("DATA_SHARING", 3),
		}
		summary := ComputeCompliance(records, required, now)
		assert.Equal(t, 75.0, summary.Score)
		assert.Equal(t, model.RiskMedium, summary.RiskLevel)
		assert.Equal(t, []string{"RESEARCH"}, summary.MissingTypes)
	})

	t.Run("half granted", func(t *testing.T) {
		records := []model.ConsentRecord{
			grantedRecord("DATA_PROCESSING", 1),
			grantedRecord("TREATMENT", 2),
		}
		summary := ComputeCompliance(records, required, now)
		assert.Equal(t, 50.0, summary.Score)
		assert.Equal(t, model.RiskHigh, summary.RiskLevel)
	})

	t.Run("newest withdrawn record overrides older grant", func(t *testing.T) {
		withdrawnTime := now - 100
		withdrawn := grantedRecord("DATA_PROCESSING", 10)
		withdrawn.WithdrawnTime = &withdrawnTime
		records := []model.ConsentRecord{
			grantedRecord("DATA_PROCESSING", 1),
			withdrawn,
		}
		summary := ComputeCompliance(records, required, now)
		assert.Equal(t, 0.0, summary.Score)
		assert.Equal(t, model.RiskCritical, summary.RiskLevel)
		assert.Contains(t, summary.MissingTypes, "DATA_PROCESSING")
	})

	t.Run("no required types scores full", func(t *testing.T) {
		summary := ComputeCompliance(nil, nil, now)
		assert.Equal(t, 100.0, summary.Score)
	})
}

func TestHasActiveConsent(t *testing.T) {
	service, store, _ := newTestConsentService(t)
	ctx := context.Background()

	active, err := service.HasActiveConsent(ctx, "user-1", "TREATMENT")
	require.NoError(t, err)
	assert.False(t, active)

	now := utils.GetCurrentTimeMillis()
	granted := now - 1000
	store.records["c1"] = &model.ConsentRecord{
		ConsentID:   "c1",
		SubjectID:   "user-1",
		ConsentType: "TREATMENT",
		Granted:     true,
		GrantedTime: &granted,
		CreatedTime: granted,
	}

	active, err = service.HasActiveConsent(ctx, "user-1", "TREATMENT")
	require.NoError(t, err)
	assert.True(t, active)
}
