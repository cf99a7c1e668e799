package features

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusShipped    Status = "shipped"
	StatusDeclined   Status = "declined"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusPlanned, StatusInProgress, StatusShipped, StatusDeclined:
		return true
	}
	return false
}

// Request is a feature request linked to any number of projects.
type Request struct {
	ID             uuid.UUID   `json:"id"`
	OrgID          uuid.UUID   `json:"org_id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Status         Status      `json:"status"`
	AuthorMemberID *uuid.UUID  `json:"author_member_id"`
	ProjectIDs     []uuid.UUID `json:"project_ids"`
	CreatedAt      time.Time   `json:"created_at"`
}

func (r *Request) AuthorID() uuid.UUID {
	if r.AuthorMemberID == nil {
		return uuid.Nil
	}
	return *r.AuthorMemberID
}

type CreateParams struct {
	Title          string
	Description    string
	AuthorMemberID uuid.UUID
	ProjectIDs     []uuid.UUID
}
