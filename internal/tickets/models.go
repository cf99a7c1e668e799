package tickets

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is a support or work item, optionally linked to one project.
type Ticket struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"org_id"`
	ProjectID   *uuid.UUID `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	// OwnerMemberID is nil once the owning member has been removed.
	OwnerMemberID    *uuid.UUID `json:"owner_member_id"`
	AssigneeMemberID *uuid.UUID `json:"assignee_member_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// OwnerID returns the owning member, or uuid.Nil when unknown.
func (t *Ticket) OwnerID() uuid.UUID {
	if t.OwnerMemberID == nil {
		return uuid.Nil
	}
	return *t.OwnerMemberID
}

// ListOptions narrows a ticket list beyond the caller's access.
type ListOptions struct {
	Status    Status
	ProjectID *uuid.UUID
	Limit     int
}

type CreateParams struct {
	ProjectID        *uuid.UUID
	Title            string
	Description      string
	Priority         Priority
	OwnerMemberID    uuid.UUID
	AssigneeMemberID *uuid.UUID
}

// UpdateParams is a partial update; nil fields are left unchanged.
type UpdateParams struct {
	Title            *string
	Description      *string
	Status           *Status
	Priority         *Priority
	AssigneeMemberID *uuid.UUID
	Unassign         bool
}
