package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts and are
// recorded verbatim in the transition history.
const (
	RoleDivisionChief       = "division_chief"
	RoleSectionChief        = "section_chief"
	RoleUnitHead            = "unit_head"
	RoleMonitoringPersonnel = "monitoring_personnel"
	RoleLegalUnit           = "legal_unit"
)

var knownRoles = map[string]struct{}{
	RoleDivisionChief:       {},
	RoleSectionChief:        {},
	RoleUnitHead:            {},
	RoleMonitoringPersonnel: {},
	RoleLegalUnit:           {},
}

// IsKnownRole reports whether role is one of the fixed workflow roles.
func IsKnownRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

// CanOriginateCases reports whether role may create inspection cases.
func CanOriginateCases(role string) bool { return role == RoleDivisionChief }
