package types

import (
	"regexp"
	"time"
)

// Role is the authorization tier of a user. Roles form a total order:
// RoleUser < RoleModerator < RoleAdmin.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Level returns the privilege rank of the role for comparisons.
// Unknown roles rank below RoleUser.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleUser:
		return 1
	}
	return 0
}

// AtLeast reports whether the role grants at least the privilege of other.
func (r Role) AtLeast(other Role) bool {
	return r.Level() >= other.Level()
}

const (
	// UsernameMaxLength bounds usernames.
	UsernameMaxLength = 150

	// EmailMaxLength bounds email addresses.
	EmailMaxLength = 254

	// NameMaxLength bounds first and last names.
	NameMaxLength = 150

	// ReservedUsername is the path identifier that routes to the caller's
	// own profile and therefore may never be registered as a username.
	ReservedUsername = "me"
)

// UsernamePattern is the allowed username alphabet: word characters plus
// the '.', '@', '+' and '-' signs.
var UsernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// User represents an account in the system.
// It contains identity, profile, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// FirstName and LastName are optional profile fields.
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// Bio is an optional free-form description.
	Bio string `json:"bio" db:"bio"`

	// Role is the user's authorization tier.
	Role Role `json:"role" db:"role"`

	// IsStaff and IsSuperuser are administrative flags. They elevate
	// effective privilege and are normalized into Role on every persist.
	// Never exposed in API responses.
	IsStaff     bool `json:"-" db:"is_staff"`
	IsSuperuser bool `json:"-" db:"is_superuser"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds administrative privilege,
// either through the admin role or the staff flag.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.IsStaff
}

// IsModerator reports whether the user holds the moderator role.
func (u *User) IsModerator() bool {
	return u.Role == RoleModerator
}

// NormalizeRole enforces the role invariant applied before every persist:
// a staff user that is not a moderator is always an admin.
func (u *User) NormalizeRole() {
	if !u.Role.Valid() {
		u.Role = RoleUser
	}
	if u.IsStaff && u.Role != RoleModerator {
		u.Role = RoleAdmin
	}
}
