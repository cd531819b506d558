// Package audit provides the append-only access trail for the PII
// protection service.
package audit

import (
	"context"

	"github.com/medicore/pii-protection-api/internal/audit/model"
	"github.com/medicore/pii-protection-api/internal/authz"
	authzmodel "github.com/medicore/pii-protection-api/internal/authz/model"
	"github.com/medicore/pii-protection-api/internal/system/constants"
	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
	"github.com/medicore/pii-protection-api/internal/system/error/serviceerror"
	"github.com/medicore/pii-protection-api/internal/system/log"
	"github.com/medicore/pii-protection-api/internal/system/stores"
	"github.com/medicore/pii-protection-api/internal/system/utils"
)

// AuditService defines the interface for audit trail operations.
type AuditService interface {
	Append(ctx context.Context, entry *model.AuditEntry) *serviceerror.ServiceError
	AppendInTx(tx dbmodel.TxInterface, entry *model.AuditEntry) error
	Query(ctx context.Context, principal authzmodel.Principal, filters model.AuditSearchFilters,
		meta model.RequestMeta) (*model.AuditSearchResponse, *serviceerror.ServiceError)
}

// auditService implements the AuditService interface
type auditService struct {
	registry *stores.StoreRegistry
	gateway  *authz.Gateway
	logger   *log.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(registry *stores.StoreRegistry, gateway *authz.Gateway) AuditService {
	return &auditService{
		registry: registry,
		gateway:  gateway,
		logger:   log.GetLogger().With(log.String(log.LoggerKeyComponentName, "AuditService")),
	}
}

func (s *auditService) store() AuditStore {
	return s.registry.Audit.(AuditStore)
}

// Append durably records a single audit entry. Callers must treat a returned
// error as fatal for the operation being audited.
func (s *auditService) Append(ctx context.Context, entry *model.AuditEntry) *serviceerror.ServiceError {
	if err := s.store().Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append audit entry",
			log.Error(err),
			log.String("action", entry.Action),
			log.String("resource_id", entry.ResourceID),
		)
		return &serviceerror.AuditWriteError
	}
	return nil
}

// AppendInTx records an audit entry inside an enclosing transaction.
func (s *auditService) AppendInTx(tx dbmodel.TxInterface, entry *model.AuditEntry) error {
	return s.store().AppendInTx(tx, entry)
}

// Query returns a page of the audit trail. The query itself is an audited
// operation: the decision is recorded before any results are served.
func (s *auditService) Query(ctx context.Context, principal authzmodel.Principal,
	filters model.AuditSearchFilters, meta model.RequestMeta) (*model.AuditSearchResponse, *serviceerror.ServiceError) {

	if err := utils.ValidatePagination(filters.Limit, filters.Offset); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}

	decision := s.gateway.Decide(principal, authz.ActionAuditRead, authzmodel.Target{
		ResourceType: constants.ResourceTypeAudit,
	})

	queryEntry := model.NewEntry(principal, constants.ActionAuditTrailQueried,
		constants.ResourceTypeAudit, "", decision.Allowed, decision.Reason, meta)
	if svcErr := s.Append(ctx, queryEntry); svcErr != nil {
		return nil, svcErr
	}

	if !decision.Allowed {
		s.logger.Warn("Audit trail query denied",
			log.String("principal_id", principal.ID),
			log.String("role", string(principal.Role)),
		)
		return nil, &serviceerror.AuthorizationDeniedError
	}

	entries, total, err := s.store().Search(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to search audit entries", log.Error(err))
		return nil, &serviceerror.DatabaseError
	}

	responses := make([]model.AuditEntryResponse, 0, len(entries))
	for i := range entries {
		responses = append(responses, entries[i].ToResponse())
	}

	return &model.AuditSearchResponse{
		Data: responses,
		Metadata: model.AuditSearchMetadata{
			Total:  total,
			Limit:  filters.Limit,
			Offset: filters.Offset,
			Count:  len(responses),
		},
	}, nil
}
