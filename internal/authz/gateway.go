// Package authz decides whether a principal may perform an action on a
// target. Decisions are computed from a declarative rule table and are pure:
// the gateway performs no I/O and no logging, so every call site is
// responsible for forwarding the decision to the audit trail.
package authz

import (
	"github.com/medicore/pii-protection-api/internal/authz/model"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionFieldDecrypt Action = "FIELD_DECRYPT"
	ActionFieldEncrypt Action = "FIELD_ENCRYPT"
	ActionConsentRead  Action = "CONSENT_READ"
	ActionConsentWrite Action = "CONSENT_WRITE"
	ActionAuditRead    Action = "AUDIT_READ"
)

// Scope constrains which targets a rule applies to.
type Scope string

const (
	// ScopeAny matches every target.
	ScopeAny Scope = "any"
	// ScopeOwner matches targets owned by the principal.
	ScopeOwner Scope = "owner"
	// ScopeAssigned matches targets whose patient is on the principal's
	// assignment list.
	ScopeAssigned Scope = "assigned"
)

// ReasonInsufficientScope is the deny reason for requests no rule allows.
const ReasonInsufficientScope = "insufficient_scope"

// Rule is one row of the authorization table. An empty Actions slice
// matches every action. Rules are evaluated in order; the first match wins.
type Rule struct {
	Name    string
	Roles   []model.Role
	Actions []Action
	Scope   Scope
}

// DefaultRules is the portal's access table. New roles or resources are
// added here, never at call sites.
var DefaultRules = []Rule{
	{
		Name:  "admin_full_access",
		Roles: []model.Role{model.RoleSuperAdmin, model.RoleAdmin},
		Scope: ScopeAny,
	},
	{
		Name:  "patient_own_records",
		Roles: []model.Role{model.RolePatient},
		Actions: []Action{
			ActionFieldDecrypt, ActionFieldEncrypt,
			ActionConsentRead, ActionConsentWrite,
		},
		Scope: ScopeOwner,
	},
	{
		Name:  "care_team_assigned_patients",
		Roles: []model.Role{model.RoleDoctor, model.RoleNurse},
		Actions: []Action{
			ActionFieldDecrypt, ActionFieldEncrypt, ActionConsentRead,
		},
		Scope: ScopeAssigned,
	},
}

// Decision is the outcome of an authorization check. A denial is a routine
// business result, not an error.
type Decision struct {
	Allowed bool
	Rule    string
	Reason  string
}

// Allow constructs an allowing decision attributed to a rule.
func Allow(rule string) Decision {
	return Decision{Allowed: true, Rule: rule}
}

// Deny constructs a denying decision with a reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Gateway evaluates the rule table.
type Gateway struct {
	rules []Rule
}

// NewGateway creates a gateway using the default rule table.
func NewGateway() *Gateway {
	return NewGatewayWithRules(DefaultRules)
}

// NewGatewayWithRules creates a gateway with a custom rule table.
func NewGatewayWithRules(rules []Rule) *Gateway {
	return &Gateway{rules: rules}
}

// Decide evaluates the rules in order and returns the first matching
// decision. If no rule matches, access is denied.
func (g *Gateway) Decide(principal model.Principal, action Action, target model.Target) Decision {
	for _, rule := range g.rules {
		if !roleMatches(rule, principal.Role) {
			continue
		}
		if !actionMatches(rule, action) {
			continue
		}
		if !scopeMatches(rule.Scope, principal, target) {
			continue
		}
		return Allow(rule.Name)
	}
	return Deny(ReasonInsufficientScope)
}

func roleMatches(rule Rule, role model.Role) bool {
	for _, r := range rule.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func actionMatches(rule Rule, action Action) bool {
	if len(rule.Actions) == 0 {
		return true
	}
	for _, a := range rule.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func scopeMatches(scope Scope, principal model.Principal, target model.Target) bool {
	switch scope {
	case ScopeAny:
		return true
	case ScopeOwner:
		if target.OwnerID != "" && target.OwnerID == principal.ID {
			return true
		}
		return target.PatientID != "" && target.PatientID == principal.OwnsPatientID
	case ScopeAssigned:
		return principal.IsAssignedTo(target.PatientID)
	}
	return false
}
