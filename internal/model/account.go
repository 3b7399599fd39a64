package model

import (
	"time"

	"github.com/google/uuid"

	"giapha/internal/util"
)

type Role string

const (
	RolePending   Role = "pending"
	RoleMember    Role = "member"
	RoleAdmin     Role = "admin"
	RoleRootAdmin Role = "root_admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePending, RoleMember, RoleAdmin, RoleRootAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants unrestricted genealogy edits.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleRootAdmin
}

type AccountStatus string

const (
	AccountStatusPendingApproval AccountStatus = "pending_approval"
	AccountStatusActive          AccountStatus = "active"
)

// Account is an authentication principal. PersonID links it to a Person in
// the tree; it stays unset until self-service linking or an admin override.
type Account struct {
	ID           uuid.UUID                `json:"id"`
	Email        string                   `json:"email"`
	DisplayName  string                   `json:"displayName"`
	PasswordHash string                   `json:"passwordHash,omitempty"`
	Role         Role                     `json:"role"`
	PersonID     util.Optional[uuid.UUID] `json:"personId"`
	Status       AccountStatus            `json:"status"`
	CreatedAt    time.Time                `json:"createdAt"`
	UpdatedAt    time.Time                `json:"updatedAt"`
}

func (a Account) Active() bool {
	return a.Status == AccountStatusActive
}
