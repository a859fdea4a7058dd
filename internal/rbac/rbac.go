package rbac

// Wildcard grants every permission.
const Wildcard = "ALL"

// Can reports whether a permission set allows the required capability.
func Can(permissions []string, required string) bool {
	if required == "" {
		return false
	}
	for _, permission := range permissions {
		if permission == Wildcard || permission == required {
			return true
		}
	}
	return false
}

// CanAny reports whether any of the roles' permission sets allows the
// required capability.
func CanAny(permissionSets [][]string, required string) bool {
	for _, permissions := range permissionSets {
		if Can(permissions, required) {
			return true
		}
	}
	return false
}
