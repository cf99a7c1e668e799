package orgs

import (
	"time"

	"github.com/google/uuid"
)

// Org represents an organization in the system
type Org struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	Slug            string    `db:"slug"`
	CreatedByUserID uuid.UUID `db:"created_by_user_id"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// OrgWithRole combines org information with the user's membership
type OrgWithRole struct {
	Org
	MemberID uuid.UUID `db:"member_id"`
	RoleName string    `db:"role_name"`
	IsOwner  bool      `db:"is_owner"`
}
