package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/medicore/pii-protection-api/internal/audit/model"
	dbmodel "github.com/medicore/pii-protection-api/internal/system/database/model"
	"github.com/medicore/pii-protection-api/internal/system/database/provider"
	dbutils "github.com/medicore/pii-protection-api/internal/system/database/utils"
)

// DBQuery objects for audit operations. The interface deliberately exposes
// no UPDATE or DELETE: the absence of mutation is the integrity guarantee.
var (
	QueryCreateAuditEntry = dbmodel.DBQuery{
		ID:    "CREATE_AUDIT_ENTRY",
		Query: "INSERT INTO AUDIT_ENTRY (AUDIT_ID, ACTION_TIME, PRINCIPAL_ID, PRINCIPAL_ROLE, ACTION, RESOURCE_TYPE, RESOURCE_ID, SUCCESS, REASON, IP_ADDRESS, REQUEST_ID) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	}

	auditSelectColumns = "AUDIT_ID, ACTION_TIME, PRINCIPAL_ID, PRINCIPAL_ROLE, ACTION, RESOURCE_TYPE, RESOURCE_ID, SUCCESS, REASON, IP_ADDRESS, REQUEST_ID"
)

// AuditStore defines the interface for audit trail persistence
// (exported for cross-module transactional composition).
type AuditStore interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
	AppendInTx(tx dbmodel.TxInterface, entry *model.AuditEntry) error
	Search(ctx context.Context, filters model.AuditSearchFilters) ([]model.AuditEntry, int, error)
}

// store implements the AuditStore interface
type store struct {
	dbClient provider.DBClientInterface
}

// NewStore creates a new audit store
func NewStore(dbClient provider.DBClientInterface) AuditStore {
	return &store{
		dbClient: dbClient,
	}
}

// Append durably writes a single audit entry. The write is synchronous;
// success is returned only after the row is committed.
func (s *store) Append(ctx context.Context, entry *model.AuditEntry) error {
	_, err := s.dbClient.Execute(QueryCreateAuditEntry,
		entry.AuditID, entry.ActionTime, entry.PrincipalID, entry.PrincipalRole,
		entry.Action, entry.ResourceType, entry.ResourceID, entry.Success,
		entry.Reason, entry.IPAddress, entry.RequestID)
	return err
}

// AppendInTx writes an audit entry inside an enclosing transaction so that
// a state change and its trail commit or roll back together.
func (s *store) AppendInTx(tx dbmodel.TxInterface, entry *model.AuditEntry) error {
	_, err := tx.Exec(QueryCreateAuditEntry.Query,
		entry.AuditID, entry.ActionTime, entry.PrincipalID, entry.PrincipalRole,
		entry.Action, entry.ResourceType, entry.ResourceID, entry.Success,
		entry.Reason, entry.IPAddress, entry.RequestID)
	return err
}

// Search retrieves audit entries matching the filters, newest first.
func (s *store) Search(ctx context.Context, filters model.AuditSearchFilters) ([]model.AuditEntry, int, error) {
	whereClause, args := buildAuditFilter(filters)

	countQuery := dbmodel.DBQuery{
		ID:    "COUNT_AUDIT_ENTRIES",
		Query: "SELECT COUNT(*) as count FROM AUDIT_ENTRY" + whereClause,
	}
	countRows, err := s.dbClient.Query(countQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	totalCount := 0
	if len(countRows) > 0 {
		if count, ok := countRows[0]["count"].(int64); ok {
			totalCount = int(count)
		}
	}

	baseQuery := fmt.Sprintf("SELECT %s FROM AUDIT_ENTRY%s ORDER BY ACTION_TIME DESC",
		auditSelectColumns, whereClause)
	searchQuery := dbmodel.DBQuery{
		ID:    "SEARCH_AUDIT_ENTRIES",
		Query: dbutils.BuildPaginationQuery(baseQuery, filters.Limit, filters.Offset),
	}
	rows, err := s.dbClient.Query(searchQuery, args...)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]model.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := mapToAuditEntry(row)
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	return entries, totalCount, nil
}

func buildAuditFilter(filters model.AuditSearchFilters) (string, []interface{}) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)

	if filters.PrincipalID != "" {
		conditions = append(conditions, "PRINCIPAL_ID = ?")
		args = append(args, filters.PrincipalID)
	}
	if filters.ResourceType != "" {
		conditions = append(conditions, "RESOURCE_TYPE = ?")
		args = append(args, filters.ResourceType)
	}
	if filters.Action != "" {
		conditions = append(conditions, "ACTION = ?")
		args = append(args, filters.Action)
	}
	if filters.FromTime > 0 {
		conditions = append(conditions, "ACTION_TIME >= ?")
		args = append(args, filters.FromTime)
	}
	if filters.ToTime > 0 {
		conditions = append(conditions, "ACTION_TIME <= ?")
		args = append(args, filters.ToTime)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func mapToAuditEntry(row map[string]interface{}) *model.AuditEntry {
	if row == nil {
		return nil
	}

	entry := &model.AuditEntry{}

	if id, ok := row["AUDIT_ID"].(string); ok {
		entry.AuditID = id
	}
	if actionTime, ok := row["ACTION_TIME"].(int64); ok {
		entry.ActionTime = actionTime
	}
	if principalID, ok := row["PRINCIPAL_ID"].(string); ok {
		entry.PrincipalID = principalID
	}
	if role, ok := row["PRINCIPAL_ROLE"].(string); ok {
		entry.PrincipalRole = role
	}
	if action, ok := row["ACTION"].(string); ok {
		entry.Action = action
	}
	if resourceType, ok := row["RESOURCE_TYPE"].(string); ok {
		entry.ResourceType = resourceType
	}
	if resourceID, ok := row["RESOURCE_ID"].(string); ok {
		entry.ResourceID = resourceID
	}
	switch success := row["SUCCESS"].(type) {
	case bool:
		entry.Success = success
	case int64:
		entry.Success = success != 0
	case string:
		entry.Success = success == "1"
	}
	if reason, ok := row["REASON"].(string); ok && reason != "" {
		entry.Reason = &reason
	}
	if ip, ok := row["IP_ADDRESS"].(string); ok {
		entry.IPAddress = ip
	}
	if requestID, ok := row["REQUEST_ID"].(string); ok {
		entry.RequestID = requestID
	}

	return entry
}
