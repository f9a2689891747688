package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleAnalyst    = "analyst"
	RoleAdmin      = "admin"
	RoleDialerBot  = "dialer_bot" // hidden role for automated outbound flows
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsHiddenRole(role string) bool { return role == RoleDialerBot }
