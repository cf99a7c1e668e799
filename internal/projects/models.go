package projects

import (
	"time"

	"github.com/google/uuid"
)

// Project represents a project within an organization
type Project struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	// CreatedByMemberID is nil once the creating member has been removed.
	CreatedByMemberID *uuid.UUID `json:"created_by_member_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// OwnerID returns the creating member, or uuid.Nil when unknown.
func (p *Project) OwnerID() uuid.UUID {
	if p.CreatedByMemberID == nil {
		return uuid.Nil
	}
	return *p.CreatedByMemberID
}

// CreateParams holds the fields of a new project.
type CreateParams struct {
	Name              string
	Slug              string
	Description       string
	CreatedByMemberID uuid.UUID
}
