// Package model defines the authenticated principal and authorization targets.
package model

// Role is the portal role carried by an authenticated principal.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleDoctor     Role = "DOCTOR"
	RoleNurse      Role = "NURSE"
	RolePatient    Role = "PATIENT"
)

// ParseRole maps a raw role claim to a known Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleSuperAdmin, RoleAdmin, RoleDoctor, RoleNurse, RolePatient:
		return Role(raw), true
	}
	return "", false
}

// Principal is the authenticated actor making a request. It is derived from
// an already-validated session token and never persisted by this subsystem.
type Principal struct {
	ID                 string
	Role               Role
	OwnsPatientID      string
	AssignedPatientIDs []string
}

// IsAssignedTo reports whether the principal is assigned to the given patient.
func (p Principal) IsAssignedTo(patientID string) bool {
	if patientID == "" {
		return false
	}
	for _, id := range p.AssignedPatientIDs {
		if id == patientID {
			return true
		}
	}
	return false
}

// Target identifies the entity and ownership context an operation acts on.
type Target struct {
	ResourceType string
	ResourceID   string
	// OwnerID is the user that owns the target data, when resolvable.
	OwnerID string
	// PatientID is the patient record the target belongs to, when resolvable.
	PatientID string
}
