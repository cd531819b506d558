// Package piiaccess is the single entry point for reading and writing
// sensitive field values. Every reveal and protect decision, allowed or
// denied, is recorded in the audit trail before any plaintext is released.
package piiaccess

import (
	"context"
	"errors"
	"fmt"

	auditmodel "github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/authz"
	authzmodel "github.com/medicore/pii-protection-api/internal/authz/model"
	"github.com/medicore/pii-protection-api/internal/fieldcipher"
	"github.com/medicore/pii-protection-api/internal/piiaccess/model"
	"github.com/medicore/pii-protection-api/internal/system/config"
	"github.com/medicore/pii-protection-api/internal/system/constants"
	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/log"
	"github.com/medicore/pii-protection-api/internal/system/stores"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

const (
	reasonFieldNotAllowed = "field_not_permitted"
	reasonFieldNotFound   = "field_not_found"
	reasonDecryptFailed   = "decryption_failed"
	reasonAuditUnrecorded = "audit_unrecorded"
)

// AuditAppender is the slice of the audit service the façade needs.
type AuditAppender interface {
	Append(ctx context.Context, entry *auditmodel.AuditEntry) *serviceerror.ServiceError
	AppendInTx(tx dbmodel.TxInterface, entry *auditmodel.AuditEntry) error
}

// PIIAccessService defines the exported service interface.
type PIIAccessService interface {
	Reveal(ctx context.Context, principal authzmodel.Principal, ref model.EntityRef,
		fields []string, meta auditmodel.RequestMeta) (*model.RevealResult, *serviceerror.ServiceError)
	RevealProfile(ctx context.Context, principal authzmodel.Principal,
		meta auditmodel.RequestMeta) (*model.RevealResult, *serviceerror.ServiceError)
	Protect(ctx context.Context, principal authzmodel.Principal, ref model.EntityRef,
		values map[string]string, meta auditmodel.RequestMeta) (*model.ProtectResult, *serviceerror.ServiceError)
	RotateEntity(ctx context.Context, ref model.EntityRef) (*model.RotateResult, *serviceerror.ServiceError)
}

// piiAccessService implements the PIIAccessService interface
type piiAccessService struct {
	stores  *stores.StoreRegistry
	gateway *authz.Gateway
	cipher  *fieldcipher.Cipher
	audit   AuditAppender
	cfg     *config.PIIConfig
	logger  *log.Logger
}

// NewPIIAccessService creates a new PII access service
func NewPIIAccessService(registry *stores.StoreRegistry, gateway *authz.Gateway,
	cipher *fieldcipher.Cipher, audit AuditAppender, cfg *config.PIIConfig) PIIAccessService {
	return &piiAccessService{
		stores:  registry,
		gateway: gateway,
		cipher:  cipher,
		audit:   audit,
		cfg:     cfg,
		logger:  log.GetLogger().With(log.String(log.LoggerKeyComponentName, "PIIAccessService")),
	}
}

func (s *piiAccessService) store() ProtectedFieldStore {
	return s.stores.ProtectedField.(ProtectedFieldStore)
}

// Reveal decrypts the requested fields the principal is entitled to see.
// Each requested field yields exactly one typed outcome and exactly one audit
// entry; the entry is durably recorded before the plaintext is released.
func (s *piiAccessService) Reveal(ctx context.Context, principal authzmodel.Principal,
	ref model.EntityRef, fields []string, meta auditmodel.RequestMeta) (*model.RevealResult, *serviceerror.ServiceError) {

	if svcErr := validateEntityRef(ref); svcErr != nil {
		return nil, svcErr
	}
	if len(fields) == 0 {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, "at least one field is required")
	}

	target := resolveTarget(ref)
	results := make([]model.FieldResult, 0, len(fields))
	for _, fieldName := range fields {
		results = append(results, s.revealField(ctx, principal, ref, target, fieldName, meta))
	}

	return &model.RevealResult{
		EntityType: ref.EntityType,
		EntityID:   ref.EntityID,
		Fields:     results,
	}, nil
}

// RevealProfile reveals the caller's own allow-listed profile fields.
func (s *piiAccessService) RevealProfile(ctx context.Context, principal authzmodel.Principal,
	meta auditmodel.RequestMeta) (*model.RevealResult, *serviceerror.ServiceError) {

	ref := model.EntityRef{EntityType: constants.EntityTypeUser, EntityID: principal.ID}
	return s.Reveal(ctx, principal, ref, s.cfg.AllowedFieldsFor(constants.EntityTypeUser), meta)
}

// revealField produces the outcome for one field. Plaintext is attached only
// after the corresponding audit entry has been durably appended.
func (s *piiAccessService) revealField(ctx context.Context, principal authzmodel.Principal,
	ref model.EntityRef, target authzmodel.Target, fieldName string,
	meta auditmodel.RequestMeta) model.FieldResult {

	fieldRef := model.FieldRef(ref, fieldName)

	if !s.cfg.IsFieldAllowed(ref.EntityType, fieldName) {
		s.appendOrLog(ctx, auditmodel.NewEntry(principal, constants.ActionFieldDecrypted,
			constants.ResourceTypeField, fieldRef, false, reasonFieldNotAllowed, meta))
		return model.FieldResult{Field: fieldName, Status: model.StatusDenied, Reason: reasonFieldNotAllowed}
	}

	decision := s.gateway.Decide(principal, authz.ActionFieldDecrypt, target)
	if !decision.Allowed {
		if svcErr := s.audit.Append(ctx, auditmodel.NewEntry(principal, constants.ActionFieldDecrypted,
			constants.ResourceTypeField, fieldRef, false, decision.Reason, meta)); svcErr != nil {
			return model.FieldResult{Field: fieldName, Status: model.StatusError, Reason: reasonAuditUnrecorded}
		}
		return model.FieldResult{Field: fieldName, Status: model.StatusDenied, Reason: decision.Reason}
	}

	plaintext, failReason := s.decryptCurrent(ctx, ref, fieldName)
	success := failReason == ""

	entry := auditmodel.NewEntry(principal, constants.ActionFieldDecrypted,
		constants.ResourceTypeField, fieldRef, success, failReason, meta)
	if svcErr := s.audit.Append(ctx, entry); svcErr != nil {
		// Append-then-serve: an unrecorded access is never served.
		return model.FieldResult{Field: fieldName, Status: model.StatusError, Reason: reasonAuditUnrecorded}
	}

	if !success {
		return model.FieldResult{Field: fieldName, Status: model.StatusError, Reason: failReason}
	}
	return model.FieldResult{Field: fieldName, Status: model.StatusRevealed, Value: string(plaintext)}
}

// decryptCurrent loads and opens the current envelope for a field. The
// returned reason is empty on success and never carries key material.
func (s *piiAccessService) decryptCurrent(ctx context.Context, ref model.EntityRef, fieldName string) ([]byte, string) {
	field, err := s.store().GetCurrent(ctx, ref, fieldName)
	if err != nil {
		s.logger.Error("Failed to load protected field", log.Error(err),
			log.String("field", fieldName))
		return nil, reasonDecryptFailed
	}
	if field == nil {
		return nil, reasonFieldNotFound
	}

	envelope, err := fieldcipher.DecodeText(field.Envelope)
	if err != nil {
		s.logger.Error("Stored envelope is malformed", log.Error(err),
			log.String("field_id", field.FieldID))
		return nil, reasonDecryptFailed
	}

	plaintext, err := s.cipher.Decrypt(envelope)
	if err != nil {
		switch {
		case errors.Is(err, fieldcipher.ErrIntegrityViolation):
			s.logger.Error("Envelope integrity check failed",
				log.String("field_id", field.FieldID))
		case errors.Is(err, fieldcipher.ErrUnknownKeyVersion):
			s.logger.Error("Envelope references unknown key version",
				log.String("field_id", field.FieldID),
				log.Int("key_version", field.KeyVersion))
		default:
			s.logger.Error("Decryption failed", log.Error(err),
				log.String("field_id", field.FieldID))
		}
		return nil, reasonDecryptFailed
	}

	return plaintext, ""
}

// Protect encrypts and stores the given field values. The previous envelope,
// if any, is superseded in the same transaction that inserts the new one.
func (s *piiAccessService) Protect(ctx context.Context, principal authzmodel.Principal,
	ref model.EntityRef, values map[string]string, meta auditmodel.RequestMeta) (*model.ProtectResult, *serviceerror.ServiceError) {

	if svcErr := validateEntityRef(ref); svcErr != nil {
		return nil, svcErr
	}
	if len(values) == 0 {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, "at least one value is required")
	}

	target := resolveTarget(ref)
	results := make([]model.FieldResult, 0, len(values))
	for _, fieldName := range utils.SortedKeys(values) {
		results = append(results, s.protectField(ctx, principal, ref, target, fieldName, values[fieldName], meta))
	}

	return &model.ProtectResult{
		EntityType: ref.EntityType,
		EntityID:   ref.EntityID,
		Fields:     results,
	}, nil
}

func (s *piiAccessService) protectField(ctx context.Context, principal authzmodel.Principal,
	ref model.EntityRef, target authzmodel.Target, fieldName, value string,
	meta auditmodel.RequestMeta) model.FieldResult {

	fieldRef := model.FieldRef(ref, fieldName)

	if !s.cfg.IsFieldAllowed(ref.EntityType, fieldName) {
		s.appendOrLog(ctx, auditmodel.NewEntry(principal, constants.ActionFieldEncrypted,
			constants.ResourceTypeField, fieldRef, false, reasonFieldNotAllowed, meta))
		return model.FieldResult{Field: fieldName, Status: model.StatusDenied, Reason: reasonFieldNotAllowed}
	}

	decision := s.gateway.Decide(principal, authz.ActionFieldEncrypt, target)
	if !decision.Allowed {
		if svcErr := s.audit.Append(ctx, auditmodel.NewEntry(principal, constants.ActionFieldEncrypted,
			constants.ResourceTypeField, fieldRef, false, decision.Reason, meta)); svcErr != nil {
			return model.FieldResult{Field: fieldName, Status: model.StatusError, Reason: reasonAuditUnrecorded}
		}
		return model.FieldResult{Field: fieldName, Status: model.StatusDenied, Reason: decision.Reason}
	}

	envelope, err := s.cipher.Encrypt([]byte(value))
	if err != nil {
		s.logger.Error("Encryption failed", log.Error(err), log.String("field", fieldName))
		s.appendOrLog(ctx, auditmodel.NewEntry(principal, constants.ActionFieldEncrypted,
			constants.ResourceTypeField, fieldRef, false, "encryption_failed", meta))
		return model.FieldResult{Field: fieldName, Status: model.StatusError, Reason: "encryption_failed"}
	}

	entry := auditmodel.NewEntry(principal, constants.ActionFieldEncrypted,
		constants.ResourceTypeField, fieldRef, true, "", meta)

	if err := s.replaceEnvelope(ctx, ref, fieldName, envelope, entry); err != nil {
		s.logger.Error("Failed to store protected field", log.Error(err),
			log.String("field", fieldName))
		return model.FieldResult{Field: fieldName, Status: model.StatusError, Reason: "storage_failed"}
	}

	return model.FieldResult{Field: fieldName, Status: model.StatusProtected}
}

// replaceEnvelope supersedes the current row (when present) and inserts the
// new one, with the audit entry riding in the same transaction.
func (s *piiAccessService) replaceEnvelope(ctx context.Context, ref model.EntityRef,
	fieldName string, envelope *fieldcipher.Envelope, auditEntry *auditmodel.AuditEntry) error {

	fieldStore := s.store()
	current, err := fieldStore.GetCurrent(ctx, ref, fieldName)
	if err != nil {
		return err
	}

	now := utils.GetCurrentTimeMillis()
	newField := &model.ProtectedField{
		FieldID:     utils.GenerateUUID(),
		EntityType:  ref.EntityType,
		EntityID:    ref.EntityID,
		FieldName:   fieldName,
		Envelope:    envelope.EncodeText(),
		KeyVersion:  envelope.KeyVersion,
		CreatedTime: now,
	}

	queries := make([]func(tx dbmodel.TxInterface) error, 0, 3)
	if current != nil {
		queries = append(queries, func(tx dbmodel.TxInterface) error {
			affected, err := fieldStore.Supersede(tx, current.FieldID, now)
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("field %s was superseded concurrently", current.FieldID)
			}
			return nil
		})
	}
	queries = append(queries,
		func(tx dbmodel.TxInterface) error {
			return fieldStore.Create(tx, newField)
		},
		func(tx dbmodel.TxInterface) error {
			return s.audit.AppendInTx(tx, auditEntry)
		},
	)

	return s.stores.ExecuteTransaction(queries)
}

// RotateEntity re-encrypts every current envelope of an entity that is not
// yet under the active key version. Superseded rows are retained.
func (s *piiAccessService) RotateEntity(ctx context.Context, ref model.EntityRef) (*model.RotateResult, *serviceerror.ServiceError) {
	if svcErr := validateEntityRef(ref); svcErr != nil {
		return nil, svcErr
	}

	fields, err := s.store().ListCurrent(ctx, ref)
	if err != nil {
		s.logger.Error("Failed to list protected fields", log.Error(err))
		return nil, &serviceerror.DatabaseError
	}

	activeVersion := s.cipher.ActiveKeyVersion()
	rotated := 0
	for i := range fields {
		field := &fields[i]
		if field.KeyVersion == activeVersion {
			continue
		}
		if err := s.rotateField(ctx, ref, field); err != nil {
			s.logger.Error("Failed to rotate field", log.Error(err),
				log.String("field_id", field.FieldID))
			return nil, serviceerror.CustomServiceError(serviceerror.InternalServerError,
				fmt.Sprintf("rotation stopped at field %s", field.FieldName))
		}
		rotated++
	}

	s.logger.Info("Entity key rotation complete",
		log.String("entity_id", ref.EntityID),
		log.Int("rotated", rotated),
		log.Int("key_version", activeVersion),
	)

	return &model.RotateResult{
		EntityType: ref.EntityType,
		EntityID:   ref.EntityID,
		Rotated:    rotated,
		KeyVersion: activeVersion,
	}, nil
}

func (s *piiAccessService) rotateField(ctx context.Context, ref model.EntityRef, field *model.ProtectedField) error {
	envelope, err := fieldcipher.DecodeText(field.Envelope)
	if err != nil {
		return err
	}
	plaintext, err := s.cipher.Decrypt(envelope)
	if err != nil {
		return err
	}

	fresh, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return err
	}

	fieldStore := s.store()
	now := utils.GetCurrentTimeMillis()
	newField := &model.ProtectedField{
		FieldID:     utils.GenerateUUID(),
		EntityType:  field.EntityType,
		EntityID:    field.EntityID,
		FieldName:   field.FieldName,
		Envelope:    fresh.EncodeText(),
		KeyVersion:  fresh.KeyVersion,
		CreatedTime: now,
	}

	return s.stores.ExecuteTransaction([]func(tx dbmodel.TxInterface) error{
		func(tx dbmodel.TxInterface) error {
			affected, err := fieldStore.Supersede(tx, field.FieldID, now)
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("field %s was superseded concurrently", field.FieldID)
			}
			return nil
		},
		func(tx dbmodel.TxInterface) error {
			return fieldStore.Create(tx, newField)
		},
	})
}

// appendOrLog records best-effort audit entries for outcomes that release no
// plaintext and change no state. A failed append is logged, not propagated.
func (s *piiAccessService) appendOrLog(ctx context.Context, entry *auditmodel.AuditEntry) {
	if svcErr := s.audit.Append(ctx, entry); svcErr != nil {
		s.logger.Error("Failed to append audit entry",
			log.String("action", entry.Action),
			log.String("resource_id", entry.ResourceID),
		)
	}
}

// resolveTarget maps an entity reference to the ownership context the
// authorization gateway evaluates against.
func resolveTarget(ref model.EntityRef) authzmodel.Target {
	target := authzmodel.Target{
		ResourceType: constants.ResourceTypeField,
		ResourceID:   ref.EntityID,
	}
	switch ref.EntityType {
	case constants.EntityTypeUser:
		target.OwnerID = ref.EntityID
	case constants.EntityTypePatient:
		target.PatientID = ref.EntityID
	}
	return target
}

func validateEntityRef(ref model.EntityRef) *serviceerror.ServiceError {
	if ref.EntityType != constants.EntityTypeUser && ref.EntityType != constants.EntityTypePatient {
		return serviceerror.CustomServiceError(serviceerror.ValidationError,
			fmt.Sprintf("unknown entity type: %s", ref.EntityType))
	}
	if err := utils.ValidateRequired("entityId", ref.EntityID); err != nil {
		return serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	return nil
}
