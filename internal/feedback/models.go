package feedback

import (
	"time"

	"github.com/google/uuid"
)

// Item is a piece of customer or internal feedback, optionally linked to a project.
type Item struct {
	ID             uuid.UUID  `json:"id"`
	OrgID          uuid.UUID  `json:"org_id"`
	ProjectID      *uuid.UUID `json:"project_id"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	AuthorMemberID *uuid.UUID `json:"author_member_id"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (i *Item) AuthorID() uuid.UUID {
	if i.AuthorMemberID == nil {
		return uuid.Nil
	}
	return *i.AuthorMemberID
}

type CreateParams struct {
	ProjectID      *uuid.UUID
	Title          string
	Body           string
	AuthorMemberID uuid.UUID
}
