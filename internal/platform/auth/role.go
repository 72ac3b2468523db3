package auth

import "fmt"

// Role is the closed set of account roles. Authorization decisions match
// against these constants exhaustively; an unknown role string never passes
// a guard.
type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RolePharmacist Role = "pharmacist"
	RoleAdmin      Role = "admin"
)

// Roles lists every valid role, for validation messages.
var Roles = []Role{RolePatient, RoleDoctor, RolePharmacist, RoleAdmin}

// ParseRole maps a string onto the closed role set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RolePharmacist, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}
