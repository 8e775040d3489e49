package connection

import (
	"sort"
)

// Role is a capability flag of a cluster node.
type Role string

const (
	RoleMaster Role = "master"
	RoleData   Role = "data"
	RoleIngest Role = "ingest"
	RoleML     Role = "ml"
)

var validRoles = []Role{RoleMaster, RoleData, RoleIngest, RoleML}

// DefaultRoles returns the roles a node has when none are specified.
func DefaultRoles() map[Role]bool {
	return map[Role]bool{
		RoleMaster: true,
		RoleData:   true,
		RoleIngest: true,
		RoleML:     false,
	}
}

// IsValidRole reports whether r is a role that can be set on a connection.
func IsValidRole(r Role) bool {
	for _, v := range validRoles {
		if v == r {
			return true
		}
	}
	return false
}

// ParseRoles converts loosely typed role flags, as found in configuration
// files, into a role set. Unknown role names and non-boolean flags are
// configuration errors.
func ParseRoles(m map[string]interface{}) (map[Role]bool, error) {
	if m == nil {
		return nil, nil
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	roles := make(map[Role]bool, len(m))
	for _, name := range names {
		if !IsValidRole(Role(name)) {
			return nil, NewConfigurationError("Unsupported role: '%s'", name)
		}
		enabled, ok := m[name].(bool)
		if !ok {
			return nil, NewConfigurationError("enabled should be a boolean")
		}
		roles[Role(name)] = enabled
	}
	return roles, nil
}

func mergeRoles(roles map[Role]bool) map[Role]bool {
	merged := DefaultRoles()
	for r, enabled := range roles {
		merged[r] = enabled
	}
	return merged
}
