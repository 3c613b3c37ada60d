package authz

// Роли консоли.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// CanRun — запускать move/copy может только оператор.
func CanRun(role string) bool {
	return role == RoleOperator
}

// Valid reports whether role is a known console role.
func Valid(role string) bool {
	return role == RoleViewer || role == RoleOperator
}
