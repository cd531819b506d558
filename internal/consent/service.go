// Package consent manages the consent lifecycle for data subjects: grants,
// withdrawals, history and the compliance summary derived from them.
package consent

import (
	"context"
	"errors"
	"fmt"

	auditmodel "github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/authz"
	authzmodel "github.com/medicore/pii-protection-api/internal/authz/model"
	"github.com/medicore/pii-protection-api/internal/consent/model"
	"github.com/medicore/pii-protection-api/internal/consent/validator"
	"github.com/medicore/pii-protection-api/internal/system/config"
	"github.com/medicore/pii-protection-api/internal/system/constants"
	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/log"
	"github.com/medicore/pii-protection-api/internal/system/stores"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

// errWithdrawConflict signals that the CAS withdrawal matched no row.
var errWithdrawConflict = errors.New("consent record is no longer an active grant")

// AuditAppender is the slice of the audit service the consent service needs.
type AuditAppender interface {
	Append(ctx context.Context, entry *auditmodel.AuditEntry) *serviceerror.ServiceError
	AppendInTx(tx dbmodel.TxInterface, entry *auditmodel.AuditEntry) error
}

// ConsentService defines the exported service interface.
type ConsentService interface {
	Grant(ctx context.Context, principal authzmodel.Principal, req model.GrantRequest,
		meta auditmodel.RequestMeta) (*model.ConsentResponse, *serviceerror.ServiceError)
	Withdraw(ctx context.Context, principal authzmodel.Principal, req model.WithdrawRequest,
		meta auditmodel.RequestMeta) (*model.ConsentResponse, *serviceerror.ServiceError)
	History(ctx context.Context, principal authzmodel.Principal,
		subjectID string) (*model.HistoryResponse, *serviceerror.ServiceError)
	HasActiveConsent(ctx context.Context, subjectID, consentType string) (bool, error)
}

// consentService implements the ConsentService interface
type consentService struct {
	stores  *stores.StoreRegistry
	gateway *authz.Gateway
	audit   AuditAppender
	cfg     *config.ConsentConfig
	logger  *log.Logger
}

// NewConsentService creates a new consent service
func NewConsentService(registry *stores.StoreRegistry, gateway *authz.Gateway,
	audit AuditAppender, cfg *config.ConsentConfig) ConsentService {
	return &consentService{
		stores:  registry,
		gateway: gateway,
		audit:   audit,
		cfg:     cfg,
		logger:  log.GetLogger().With(log.String(log.LoggerKeyComponentName, "ConsentService")),
	}
}

func (s *consentService) store() ConsentStore {
	return s.stores.Consent.(ConsentStore)
}

// Grant records a new consent grant. Granting never touches earlier records:
// a subject who re-consents after withdrawal gets a fresh record and the
// withdrawn one stays terminal.
func (s *consentService) Grant(ctx context.Context, principal authzmodel.Principal,
	req model.GrantRequest, meta auditmodel.RequestMeta) (*model.ConsentResponse, *serviceerror.ServiceError) {

	if err := validator.ValidateGrantRequest(req); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}

	decision := s.gateway.Decide(principal, authz.ActionConsentWrite, consentTarget(req.UserID))
	if !decision.Allowed {
		s.auditFailure(ctx, principal, constants.ActionConsentGranted, req.UserID, decision.Reason, meta)
		return nil, &serviceerror.AuthorizationDeniedError
	}

	now := utils.GetCurrentTimeMillis()
	record := &model.ConsentRecord{
		ConsentID:      utils.GenerateUUID(),
		SubjectID:      req.UserID,
		ConsentType:    req.ConsentType,
		Purpose:        req.Purpose,
		LegalBasis:     req.LegalBasis,
		ConsentVersion: req.ConsentVersion,
		Granted:        true,
		GrantedTime:    &now,
		ExpiryTime:     req.ExpiresAt,
		CreatedTime:    now,
	}

	auditEntry := auditmodel.NewEntry(principal, constants.ActionConsentGranted,
		constants.ResourceTypeConsent, record.ConsentID, true, "", meta)

	consentStore := s.store()
	err := s.stores.ExecuteTransaction([]func(tx dbmodel.TxInterface) error{
		func(tx dbmodel.TxInterface) error {
			return consentStore.Create(tx, record)
		},
		func(tx dbmodel.TxInterface) error {
			return s.audit.AppendInTx(tx, auditEntry)
		},
	})
	if err != nil {
		s.logger.Error("Failed to create consent record",
			log.Error(err),
			log.String("subject_id", req.UserID),
			log.String("consent_type", req.ConsentType),
		)
		return nil, &serviceerror.DatabaseError
	}

	s.logger.Info("Consent granted",
		log.String("consent_id", record.ConsentID),
		log.String("consent_type", record.ConsentType),
	)

	response := record.ToResponse(now)
	return &response, nil
}

// Withdraw stamps the subject's active grant of the given type as withdrawn.
// Withdrawal is terminal; re-consenting requires a new Grant.
func (s *consentService) Withdraw(ctx context.Context, principal authzmodel.Principal,
	req model.WithdrawRequest, meta auditmodel.RequestMeta) (*model.ConsentResponse, *serviceerror.ServiceError) {

	if err := validator.ValidateWithdrawRequest(req); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}

	decision := s.gateway.Decide(principal, authz.ActionConsentWrite, consentTarget(req.UserID))
	if !decision.Allowed {
		s.auditFailure(ctx, principal, constants.ActionConsentWithdrawn, req.UserID, decision.Reason, meta)
		return nil, &serviceerror.AuthorizationDeniedError
	}

	consentStore := s.store()
	now := utils.GetCurrentTimeMillis()

	active, err := consentStore.GetActiveByType(ctx, req.UserID, req.ConsentType)
	if err != nil {
		s.logger.Error("Failed to load consent record", log.Error(err))
		return nil, &serviceerror.DatabaseError
	}
	if active == nil {
		return nil, s.rejectWithdrawal(ctx, principal, req, now, meta)
	}
	if status := active.StatusAt(now); status != model.StatusGranted {
		reason := fmt.Sprintf("consent is %s", status)
		s.auditFailure(ctx, principal, constants.ActionConsentWithdrawn, active.ConsentID, reason, meta)
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidStateTransitionError,
			fmt.Sprintf("cannot withdraw consent in status %s", status))
	}

	auditEntry := auditmodel.NewEntry(principal, constants.ActionConsentWithdrawn,
		constants.ResourceTypeConsent, active.ConsentID, true, req.Reason, meta)

	err = s.stores.ExecuteTransaction([]func(tx dbmodel.TxInterface) error{
		func(tx dbmodel.TxInterface) error {
			affected, err := consentStore.Withdraw(tx, active.ConsentID, now, req.Reason)
			if err != nil {
				return err
			}
			if affected == 0 {
				return errWithdrawConflict
			}
			return nil
		},
		func(tx dbmodel.TxInterface) error {
			return s.audit.AppendInTx(tx, auditEntry)
		},
	})
	if err != nil {
		if errors.Is(err, errWithdrawConflict) {
			reason := "concurrent lifecycle change"
			s.auditFailure(ctx, principal, constants.ActionConsentWithdrawn, active.ConsentID, reason, meta)
			return nil, serviceerror.CustomServiceError(serviceerror.InvalidStateTransitionError,
				"consent was withdrawn or superseded by a concurrent request")
		}
		s.logger.Error("Failed to withdraw consent", log.Error(err),
			log.String("consent_id", active.ConsentID))
		return nil, &serviceerror.DatabaseError
	}

	s.logger.Info("Consent withdrawn",
		log.String("consent_id", active.ConsentID),
		log.String("consent_type", active.ConsentType),
	)

	active.WithdrawnTime = &now
	active.WithdrawalReason = &req.Reason
	response := active.ToResponse(now)
	return &response, nil
}

// rejectWithdrawal classifies a withdrawal that found no active grant, using
// the newest record of the type to report the current lifecycle state.
func (s *consentService) rejectWithdrawal(ctx context.Context, principal authzmodel.Principal,
	req model.WithdrawRequest, now int64, meta auditmodel.RequestMeta) *serviceerror.ServiceError {

	latest, err := s.store().GetLatestByType(ctx, req.UserID, req.ConsentType)
	if err != nil {
		s.logger.Error("Failed to load consent record", log.Error(err))
		return &serviceerror.DatabaseError
	}
	if latest == nil {
		return serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError,
			fmt.Sprintf("no %s consent exists for this subject", req.ConsentType))
	}

	status := latest.StatusAt(now)
	s.auditFailure(ctx, principal, constants.ActionConsentWithdrawn, latest.ConsentID,
		fmt.Sprintf("consent is %s", status), meta)
	return serviceerror.CustomServiceError(serviceerror.InvalidStateTransitionError,
		fmt.Sprintf("cannot withdraw consent in status %s", status))
}

// History returns all consent records for a subject with derived statuses
// and the compliance summary over the configured required types.
func (s *consentService) History(ctx context.Context, principal authzmodel.Principal,
	subjectID string) (*model.HistoryResponse, *serviceerror.ServiceError) {

	if err := utils.ValidateSubjectID(subjectID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}

	decision := s.gateway.Decide(principal, authz.ActionConsentRead, consentTarget(subjectID))
	if !decision.Allowed {
		return nil, &serviceerror.AuthorizationDeniedError
	}

	records, err := s.store().GetBySubject(ctx, subjectID)
	if err != nil {
		s.logger.Error("Failed to load consent history", log.Error(err),
			log.String("subject_id", subjectID))
		return nil, &serviceerror.DatabaseError
	}

	now := utils.GetCurrentTimeMillis()
	responses := make([]model.ConsentResponse, 0, len(records))
	for i := range records {
		responses = append(responses, records[i].ToResponse(now))
	}

	return &model.HistoryResponse{
		SubjectID:  subjectID,
		Consents:   responses,
		Compliance: ComputeCompliance(records, s.cfg.RequiredTypes, now),
	}, nil
}

// HasActiveConsent reports whether the subject currently holds an effective
// grant of the given type. Used by the PII access layer before serving
// sensitive patient fields.
func (s *consentService) HasActiveConsent(ctx context.Context, subjectID, consentType string) (bool, error) {
	record, err := s.store().GetActiveByType(ctx, subjectID, consentType)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.IsActiveAt(utils.GetCurrentTimeMillis()), nil
}

// ComputeCompliance scores how much of the required consent set is currently
// granted. Per type, only the newest record counts; a withdrawn newest record
// means the type is not granted even if an older grant exists.
func ComputeCompliance(records []model.ConsentRecord, requiredTypes []string, now int64) model.ComplianceSummary {
	latestByType := make(map[string]*model.ConsentRecord, len(requiredTypes))
	for i := range records {
		record := &records[i]
		current, ok := latestByType[record.ConsentType]
		if !ok || record.CreatedTime > current.CreatedTime {
			latestByType[record.ConsentType] = record
		}
	}

	granted := 0
	missing := make([]string, 0)
	for _, requiredType := range requiredTypes {
		latest := latestByType[requiredType]
		if latest != nil && latest.IsActiveAt(now) {
			granted++
		} else {
			missing = append(missing, requiredType)
		}
	}

	score := 100.0
	if len(requiredTypes) > 0 {
		score = float64(granted) / float64(len(requiredTypes)) * 100
	}

	return model.ComplianceSummary{
		Score:         score,
		RiskLevel:     model.ClassifyRisk(score),
		RequiredTypes: len(requiredTypes),
		GrantedTypes:  granted,
		MissingTypes:  missing,
	}
}

func (s *consentService) auditFailure(ctx context.Context, principal authzmodel.Principal,
	action, resourceID, reason string, meta auditmodel.RequestMeta) {
	entry := auditmodel.NewEntry(principal, action, constants.ResourceTypeConsent,
		resourceID, false, reason, meta)
	if svcErr := s.audit.Append(ctx, entry); svcErr != nil {
		s.logger.Error("Failed to audit rejected consent operation",
			log.String("action", action),
			log.String("resource_id", resourceID),
		)
	}
}

func consentTarget(subjectID string) authzmodel.Target {
	return authzmodel.Target{
		ResourceType: constants.ResourceTypeConsent,
		ResourceID:   subjectID,
		OwnerID:      subjectID,
		PatientID:    subjectID,
	}
}
