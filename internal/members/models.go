package members

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/opsdesk/opsdesk/internal/access"
)

var (
	ErrMemberNotFound        = errors.New("member not found")
	ErrUserNotFound          = errors.New("no user with this email")
	ErrAlreadyMember         = errors.New("user is already a member of this organization")
	ErrRoleNotFound          = errors.New("role not found in organization")
	ErrOwnerProtected        = errors.New("only owners can change owners or assign the owner role")
	ErrCannotRemoveLastOwner = errors.New("cannot remove last owner")
)

// Member is a user's membership in one organization.
type Member struct {
	ID       uuid.UUID `json:"id"`
	OrgID    uuid.UUID `json:"org_id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	RoleID   uuid.UUID `json:"role_id"`
	RoleName string    `json:"role_name"`
	IsOwner  bool      `json:"is_owner"`
	// AllowedProjectIDs is nil when the member defers to the role's project scope.
	AllowedProjectIDs []uuid.UUID `json:"allowed_project_ids"`
	CreatedAt         time.Time   `json:"created_at"`
}

// AddParams holds the fields for adding an existing user to an organization.
type AddParams struct {
	Email             string
	RoleID            uuid.UUID
	AllowedProjectIDs []uuid.UUID
}

// UpdateParams is a partial access change. A nil RoleID keeps the role.
type UpdateParams struct {
	RoleID            *uuid.UUID
	AllowedProjectIDs access.IDsPatch
}

// Actor is the member performing a change.
type Actor struct {
	MemberID uuid.UUID
	IsOwner  bool
}
