package piiaccess

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodel "github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/authz"
	authzmodel "github.com/medicore/pii-protection-api/internal/authz/model"
	"github.com/medicore/pii-protection-api/internal/fieldcipher"
	"github.com/medicore/pii-protection-api/internal/keyring"
	"github.com/medicore/pii-protection-api/internal/piiaccess/model"
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

// fakeFieldStore keeps every protected field row ever written, mirroring the
// supersede-and-insert semantics of the real store.
type fakeFieldStore struct {
	rows []*model.ProtectedField
}

func (s *fakeFieldStore) GetCurrent(ctx context.Context, ref model.EntityRef, fieldName string) (*model.ProtectedField, error) {
	for _, row := range s.rows {
		if row.EntityType == ref.EntityType && row.EntityID == ref.EntityID &&
			row.FieldName == fieldName && row.SupersededTime == nil {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeFieldStore) ListCurrent(ctx context.Context, ref model.EntityRef) ([]model.ProtectedField, error) {
	out := make([]model.ProtectedField, 0)
	for _, row := range s.rows {
		if row.EntityType == ref.EntityType && row.EntityID == ref.EntityID && row.SupersededTime == nil {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *fakeFieldStore) Create(tx dbmodel.TxInterface, field *model.ProtectedField) error {
	copied := *field
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *fakeFieldStore) Supersede(tx dbmodel.TxInterface, fieldID string, supersededTime int64) (int64, error) {
	for _, row := range s.rows {
		if row.FieldID == fieldID && row.SupersededTime == nil {
			row.SupersededTime = &supersededTime
			return 1, nil
		}
	}
	return 0, nil
}

func (s *fakeFieldStore) currentEnvelope(ref model.EntityRef, fieldName string) *model.ProtectedField {
	field, _ := s.GetCurrent(context.Background(), ref, fieldName)
	return field
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

var testPIIConfig = &config.PIIConfig{
	AllowedFields: map[string][]string{
		constants.EntityTypeUser:    {"email", "phone", "address"},
		constants.EntityTypePatient: {"email", "phone", "address", "diagnosis", "findings", "medical_history"},
	},
}

var testMeta = auditmodel.RequestMeta{IPAddress: "10.0.0.1", RequestID: "req-1"}

type testHarness struct {
	service PIIAccessService
	store   *fakeFieldStore
	audit   *fakeAudit
	cipher  *fieldcipher.Cipher
}

func newTestHarness(t *testing.T, activeVersion int) *testHarness {
	t.Helper()
	ring, err := keyring.NewFromSecret([]byte("0123456789abcdef0123456789abcdef"), activeVersion, nil)
	require.NoError(t, err)
	cipher := fieldcipher.New(ring)

	store := &fakeFieldStore{}
	audit := &fakeAudit{}
	registry := stores.NewStoreRegistry(fakeDBClient{}, store, nil, nil)
	service := NewPIIAccessService(registry, authz.NewGateway(), cipher, audit, testPIIConfig)

	return &testHarness{service: service, store: store, audit: audit, cipher: cipher}
}

// seedField stores an encrypted value directly, bypassing the service.
func (h *testHarness) seedField(t *testing.T, ref model.EntityRef, fieldName, value string) {
	t.Helper()
	envelope, err := h.cipher.Encrypt([]byte(value))
	require.NoError(t, err)
	require.NoError(t, h.store.Create(fakeTx{}, &model.ProtectedField{
		FieldID:     utils.GenerateUUID(),
		EntityType:  ref.EntityType,
		EntityID:    ref.EntityID,
		FieldName:   fieldName,
		Envelope:    envelope.EncodeText(),
		KeyVersion:  envelope.KeyVersion,
		CreatedTime: utils.GetCurrentTimeMillis(),
	}))
}

func patientPrincipal(id, ownsPatientID string) authzmodel.Principal {
	return authzmodel.Principal{ID: id, Role: authzmodel.RolePatient, OwnsPatientID: ownsPatientID}
}

func TestRevealOwnFieldSucceeds(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	h.seedField(t, ref, "phone", "+44 20 7946 0000")

	result, svcErr := h.service.Reveal(context.Background(), patientPrincipal("user-7", ""),
		ref, []string{"phone"}, testMeta)
	require.Nil(t, svcErr)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, model.StatusRevealed, result.Fields[0].Status)
	assert.Equal(t, "+44 20 7946 0000", result.Fields[0].Value)

	require.Len(t, h.audit.entries, 1)
	entry := h.audit.entries[0]
	assert.Equal(t, constants.ActionFieldDecrypted, entry.Action)
	assert.True(t, entry.Success)
	assert.Equal(t, "user:user-7:phone", entry.ResourceID)
}

func TestRevealDeniedForUnassignedDoctor(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypePatient, EntityID: "patient-x"}
	h.seedField(t, ref, "diagnosis", "confidential")

	doctor := authzmodel.Principal{ID: "doc-1", Role: authzmodel.RoleDoctor,
		AssignedPatientIDs: []string{"patient-other"}}

	result, svcErr := h.service.Reveal(context.Background(), doctor, ref, []string{"diagnosis"}, testMeta)
	require.Nil(t, svcErr)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, model.StatusDenied, result.Fields[0].Status)
	assert.Equal(t, authz.ReasonInsufficientScope, result.Fields[0].Reason)
	assert.Empty(t, result.Fields[0].Value)

	require.Len(t, h.audit.entries, 1)
	entry := h.audit.entries[0]
	assert.False(t, entry.Success)
	assert.Equal(t, authz.ReasonInsufficientScope, *entry.Reason)
}

func TestRevealAppendsOneEntryPerField(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	h.seedField(t, ref, "email", "u7@example.com")

	// email resolves, phone is missing, ssn is off the allow-list.
	result, svcErr := h.service.Reveal(context.Background(), patientPrincipal("user-7", ""),
		ref, []string{"email", "phone", "ssn"}, testMeta)
	require.Nil(t, svcErr)

	require.Len(t, result.Fields, 3)
	assert.Equal(t, model.StatusRevealed, result.Fields[0].Status)
	assert.Equal(t, model.StatusError, result.Fields[1].Status)
	assert.Equal(t, reasonFieldNotFound, result.Fields[1].Reason)
	assert.Equal(t, model.StatusDenied, result.Fields[2].Status)
	assert.Equal(t, reasonFieldNotAllowed, result.Fields[2].Reason)

	assert.Len(t, h.audit.entries, 3)
}

func TestRevealFailsClosedWhenAuditFails(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	h.seedField(t, ref, "phone", "+44 20 7946 0000")
	h.audit.failAppend = true

	result, svcErr := h.service.Reveal(context.Background(), patientPrincipal("user-7", ""),
		ref, []string{"phone"}, testMeta)
	require.Nil(t, svcErr)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, model.StatusError, result.Fields[0].Status)
	assert.Equal(t, reasonAuditUnrecorded, result.Fields[0].Reason)
	assert.Empty(t, result.Fields[0].Value)
}

func TestRevealTamperedEnvelopeFailsClosed(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	h.seedField(t, ref, "phone", "+44 20 7946 0000")

	stored := h.store.currentEnvelope(ref, "phone")
	envelope, err := fieldcipher.DecodeText(stored.Envelope)
	require.NoError(t, err)
	envelope.Ciphertext[0] ^= 0x01
	for _, row := range h.store.rows {
		if row.FieldID == stored.FieldID {
			row.Envelope = envelope.EncodeText()
		}
	}

	result, svcErr := h.service.Reveal(context.Background(), patientPrincipal("user-7", ""),
		ref, []string{"phone"}, testMeta)
	require.Nil(t, svcErr)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, model.StatusError, result.Fields[0].Status)
	assert.Equal(t, reasonDecryptFailed, result.Fields[0].Reason)
	assert.Empty(t, result.Fields[0].Value)

	require.Len(t, h.audit.entries, 1)
	assert.False(t, h.audit.entries[0].Success)
}

func TestProtectThenRevealRoundTrip(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	principal := patientPrincipal("user-7", "")
	ctx := context.Background()

	protectResult, svcErr := h.service.Protect(ctx, principal, ref,
		map[string]string{"email": "u7@example.com"}, testMeta)
	require.Nil(t, svcErr)
	require.Len(t, protectResult.Fields, 1)
	assert.Equal(t, model.StatusProtected, protectResult.Fields[0].Status)

	revealResult, svcErr := h.service.Reveal(ctx, principal, ref, []string{"email"}, testMeta)
	require.Nil(t, svcErr)
	assert.Equal(t, "u7@example.com", revealResult.Fields[0].Value)
}

func TestProtectSupersedesPreviousEnvelope(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	principal := patientPrincipal("user-7", "")
	ctx := context.Background()

	_, svcErr := h.service.Protect(ctx, principal, ref,
		map[string]string{"email": "old@example.com"}, testMeta)
	require.Nil(t, svcErr)
	_, svcErr = h.service.Protect(ctx, principal, ref,
		map[string]string{"email": "new@example.com"}, testMeta)
	require.Nil(t, svcErr)

	// Both rows retained, exactly one current.
	assert.Len(t, h.store.rows, 2)
	current := 0
	for _, row := range h.store.rows {
		if row.SupersededTime == nil {
			current++
		}
	}
	assert.Equal(t, 1, current)

	revealResult, svcErr := h.service.Reveal(ctx, principal, ref, []string{"email"}, testMeta)
	require.Nil(t, svcErr)
	assert.Equal(t, "new@example.com", revealResult.Fields[0].Value)
}

func TestProtectDeniedFieldWritesNothing(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-8"}

	result, svcErr := h.service.Protect(context.Background(), patientPrincipal("user-7", ""),
		ref, map[string]string{"email": "x@example.com"}, testMeta)
	require.Nil(t, svcErr)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, model.StatusDenied, result.Fields[0].Status)
	assert.Empty(t, h.store.rows)

	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, constants.ActionFieldEncrypted, h.audit.entries[0].Action)
	assert.False(t, h.audit.entries[0].Success)
}

func TestRevealProfileUsesAllowList(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	h.seedField(t, ref, "email", "u7@example.com")
	h.seedField(t, ref, "phone", "+44 20 7946 0000")
	h.seedField(t, ref, "address", "1 Example Road")

	result, svcErr := h.service.RevealProfile(context.Background(),
		patientPrincipal("user-7", ""), testMeta)
	require.Nil(t, svcErr)

	assert.Len(t, result.Fields, 3)
	for _, field := range result.Fields {
		assert.Equal(t, model.StatusRevealed, field.Status)
	}
	assert.Len(t, h.audit.entries, 3)
}

func TestRotateEntityReencryptsUnderActiveVersion(t *testing.T) {
	h := newTestHarness(t, 2)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}

	// Seed under the old key version.
	envelope, err := h.cipher.EncryptWithVersion([]byte("+44 20 7946 0000"), 1)
	require.NoError(t, err)
	require.NoError(t, h.store.Create(fakeTx{}, &model.ProtectedField{
		FieldID:     utils.GenerateUUID(),
		EntityType:  ref.EntityType,
		EntityID:    ref.EntityID,
		FieldName:   "phone",
		Envelope:    envelope.EncodeText(),
		KeyVersion:  1,
		CreatedTime: utils.GetCurrentTimeMillis(),
	}))

	result, svcErr := h.service.RotateEntity(context.Background(), ref)
	require.Nil(t, svcErr)
	assert.Equal(t, 1, result.Rotated)
	assert.Equal(t, 2, result.KeyVersion)

	current := h.store.currentEnvelope(ref, "phone")
	require.NotNil(t, current)
	assert.Equal(t, 2, current.KeyVersion)

	// Superseded row is retained.
	assert.Len(t, h.store.rows, 2)

	revealResult, svcErr := h.service.Reveal(context.Background(),
		patientPrincipal("user-7", ""), ref, []string{"phone"}, testMeta)
	require.Nil(t, svcErr)
	assert.Equal(t, "+44 20 7946 0000", revealResult.Fields[0].Value)
}

func TestRotateEntitySkipsCurrentVersion(t *testing.T) {
	h := newTestHarness(t, 1)
	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: "user-7"}
	h.seedField(t, ref, "phone", "+44 20 7946 0000")

	result, svcErr := h.service.RotateEntity(context.Background(), ref)
	require.Nil(t, svcErr)
	assert.Equal(t, 0, result.Rotated)
	assert.Len(t, h.store.rows, 1)
}

func TestRevealRejectsUnknownEntityType(t *testing.T) {
	h := newTestHarness(t, 1)

	_, svcErr := h.service.Reveal(context.Background(), patientPrincipal("user-7", ""),
		model.EntityRef{EntityType: "device", EntityID: "d1"}, []string{"email"}, testMeta)
	require.NotNil(t, svcErr)
	assert.Equal(t, serviceerror.ValidationError.Code, svcErr.Code)
}
