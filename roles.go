package platform

// IsValidRole checks that a role is one of the two the platform knows about.
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole.
func ParseRole(role string) (UserRole, bool) {
	return UserRole(role), IsValidRole(role)
}

// IsValidApprovalStatus checks an approval status value.
func IsValidApprovalStatus(status string) bool {
	switch status {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// CanAdminister reports whether the account may use the admin control
// surface. The role alone is not enough: deactivated admins lose access.
func CanAdminister(u *User) bool {
	return u != nil && u.IsActive && u.Role == RoleAdmin
}
