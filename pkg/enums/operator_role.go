package enums

import "fmt"

// OperatorRole scopes what a back-office operator may do with recovery records.
type OperatorRole string

const (
	OperatorRoleSupport OperatorRole = "support"
	OperatorRoleAdmin   OperatorRole = "admin"
)

var validOperatorRoles = []OperatorRole{
	OperatorRoleSupport,
	OperatorRoleAdmin,
}

// String implements fmt.Stringer.
func (v OperatorRole) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OperatorRole.
func (v OperatorRole) IsValid() bool {
	for _, candidate := range validOperatorRoles {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOperatorRole converts raw input into an OperatorRole.
func ParseOperatorRole(value string) (OperatorRole, error) {
	for _, candidate := range validOperatorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator role %q", value)
}
