package access

// Role is a profile's role
type Role string

const (
	// RoleUser is the base role (ie. sign in only)
	RoleUser Role = "user"
	// RoleStaff can process sales
	RoleStaff Role = "staff"
	// RolePharmacist can manage inventory
	RolePharmacist Role = "pharmacist"
	// RoleManager can manage users
	RoleManager Role = "manager"
	// RoleAdmin has full access
	RoleAdmin Role = "admin"
)

var roleRanks = map[Role]int{
	RoleUser:       0,
	RoleStaff:      1,
	RolePharmacist: 2,
	RoleManager:    3,
	RoleAdmin:      4,
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the role's position in the hierarchy. Unknown or legacy role
// strings rank lowest instead of failing.
func (r Role) Rank() int {
	return roleRanks[r]
}

// AtLeast checks if this role meets the minimum required level
func (r Role) AtLeast(minRole Role) bool {
	return r.Rank() >= minRole.Rank()
}

// Dominates reports whether the held role satisfies the needed role.
func Dominates(have, need Role) bool {
	return have.AtLeast(need)
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleUser,
		RoleStaff,
		RolePharmacist,
		RoleManager,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
