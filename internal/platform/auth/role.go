package auth

import "fmt"

// Role is the account kind a token was issued for.
type Role string

const (
	RolePatient  Role = "patient"
	RoleHospital Role = "hospital"
	RoleDoctor   Role = "doctor"
	RoleLab      Role = "lab"
)

var allRoles = []Role{RolePatient, RoleHospital, RoleDoctor, RoleLab}

func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole accepts the lowercase role names used on the wire and in tokens.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Roles returns every known role.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}
