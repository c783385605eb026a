package models

import "time"

// Role distinguishes admins, trusted internal users and external users.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleInternal Role = "internal user"
	RoleExternal Role = "external user"
)

// Identity is the caller context supplied to every lifecycle operation.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// IsAdmin reports whether the caller bypasses ownership checks.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// User is a directory entry upserted from identities seen by the service.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
