// Package model holds the marketplace domain types shared by the stores and engines.
package model

import "time"

// Role is the caller's account role.
type Role string

const (
	RoleUser       Role = "user"
	RoleClient     Role = "client"
	RoleProgrammer Role = "programmer"
	RoleAdmin      Role = "admin"
)

// IsClient reports whether r is a project-posting role. "user" is the legacy alias of "client".
func (r Role) IsClient() bool { return r == RoleClient || r == RoleUser }

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleClient, RoleProgrammer, RoleAdmin:
		return true
	}
	return false
}

// Actor is the resolved caller of an operation.
type Actor struct {
	ID       int64 `json:"id"`
	Role     Role  `json:"role"`
	IsActive bool  `json:"is_active"`
}

// User is a marketplace account.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor returns the user as an operation caller.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, IsActive: u.IsActive}
}
