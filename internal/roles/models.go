package roles

import (
	"time"

	"github.com/google/uuid"
	"github.com/opsdesk/opsdesk/internal/access"
)

// Role is an organization-scoped permission set.
type Role struct {
	ID          uuid.UUID          `json:"id"`
	OrgID       uuid.UUID          `json:"org_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions access.Permissions `json:"permissions"`
	// ProjectScope is nil when the role is not restricted to any projects.
	ProjectScope []uuid.UUID `json:"project_scope"`
	IsSystem     bool        `json:"is_system"`
	MemberCount  int         `json:"member_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// CreateParams holds the fields of a new custom role. A nil Permissions gets
// the default template.
type CreateParams struct {
	Name         string
	Description  string
	Permissions  *access.Permissions
	ProjectScope []uuid.UUID
}

// UpdateParams holds a partial role update; nil fields are left unchanged.
type UpdateParams struct {
	Name         *string
	Description  *string
	Permissions  *access.Permissions
	ProjectScope access.IDsPatch
}
