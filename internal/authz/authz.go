// Package authz centralizes the permission predicates consulted by every
// resource handler. A nil user means an anonymous caller.
package authz

import "github.com/reviewdb/apiserver/types"

// CanRead reports whether the caller may perform read operations.
// Reads are open to everyone, anonymous callers included.
func CanRead(_ *types.User) bool {
	return true
}

// CanWriteCatalog reports whether the caller may create, update, or
// delete categories, genres, and titles.
func CanWriteCatalog(user *types.User) bool {
	if user == nil {
		return false
	}
	return user.Role == types.RoleAdmin || user.IsStaff || user.IsSuperuser
}

// CanModifyContent reports whether the caller may update or delete a
// review or comment written by the user with authorID.
func CanModifyContent(user *types.User, authorID int) bool {
	if user == nil {
		return false
	}
	if user.ID == authorID {
		return true
	}
	return user.Role.AtLeast(types.RoleModerator) || user.IsSuperuser
}

// CanManageUsers reports whether the caller may use the administrative
// user-management endpoints. Moderators may not.
func CanManageUsers(user *types.User) bool {
	return user != nil && user.IsAdmin()
}

// IsSelfProfile reports whether a path identifier addresses the caller's
// own profile rather than a literal username.
func IsSelfProfile(pathID string) bool {
	return pathID == types.ReservedUsername
}
