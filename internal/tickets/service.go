package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
)

var (
	// ErrTicketNotFound is returned when a ticket does not exist or is hidden from the caller
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrInvalidReference is returned when a project or assignee id does not belong to the organization
	ErrInvalidReference = errors.New("project or assignee does not belong to organization")
)

// Service provides ticket operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new ticket service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const ticketColumns = `
	t.id, t.org_id, t.project_id, t.title, t.description, t.status, t.priority,
	t.owner_member_id, t.assignee_member_id, t.created_at, t.updated_at
`

func scanTicket(row pgx.Row) (*Ticket, error) {
	var ticket Ticket
	var projectID, ownerID, assigneeID uuid.NullUUID
	if err := row.Scan(
		&ticket.ID,
		&ticket.OrgID,
		&projectID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ownerID,
		&assigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.ProjectID = nullable(projectID)
	ticket.OwnerMemberID = nullable(ownerID)
	ticket.AssigneeMemberID = nullable(assigneeID)
	return &ticket, nil
}

func nullable(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	return &id.UUID
}

// List returns the tickets the caller may see: project filter first, then the
// "own" view restriction.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, checker access.Checker, filter access.ProjectFilter, opts ListOptions) ([]Ticket, error) {
	tickets := []Ticket{}
	if filter.Skip() {
		return tickets, nil
	}

	conds := access.NewConditions()
	conds.Add("t.org_id = ?", orgID)
	filter.ApplyColumn(conds, "t.project_id")
	if !checker.ApplyOwnerView(conds, access.ResourceTickets, "t.owner_member_id") {
		return tickets, nil
	}
	if opts.Status != "" {
		conds.Add("t.status = ?", opts.Status)
	}
	if opts.ProjectID != nil {
		conds.Add("t.project_id = ?", *opts.ProjectID)
	}
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		`+conds.Where()+`
		ORDER BY t.created_at DESC
		LIMIT `+conds.NextParam(),
		append(conds.Args(), opts.Limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket rows: %w", err)
	}

	return tickets, nil
}

// Get returns one ticket the caller may see; anything else is ErrTicketNotFound.
func (s *Service) Get(ctx context.Context, orgID, ticketID uuid.UUID, checker access.Checker, filter access.ProjectFilter) (*Ticket, error) {
	if filter.Skip() {
		return nil, ErrTicketNotFound
	}

	conds := access.NewConditions()
	conds.Add("t.org_id = ?", orgID)
	conds.Add("t.id = ?", ticketID)
	filter.ApplyColumn(conds, "t.project_id")

	ticket, err := scanTicket(s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		`+conds.Where(), conds.Args()...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	if !checker.Can(access.ResourceTickets, access.ActionView, ticket.OwnerID()) {
		return nil, ErrTicketNotFound
	}

	return ticket, nil
}

// Create inserts a ticket owned by params.OwnerMemberID.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, params CreateParams) (*Ticket, error) {
	if params.Priority == "" {
		params.Priority = PriorityNormal
	}

	ticket, err := scanTicket(s.pool.QueryRow(ctx, `
		INSERT INTO tickets AS t (org_id, project_id, title, description, status, priority, owner_member_id, assignee_member_id)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE ($2::uuid IS NULL OR EXISTS (SELECT 1 FROM projects WHERE org_id = $1 AND id = $2))
		  AND ($8::uuid IS NULL OR EXISTS (SELECT 1 FROM team_members WHERE org_id = $1 AND id = $8))
		RETURNING `+ticketColumns,
		orgID, params.ProjectID, params.Title, params.Description, StatusOpen, params.Priority,
		params.OwnerMemberID, params.AssigneeMemberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidReference
		}
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	return ticket, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, orgID, ticketID uuid.UUID, params UpdateParams) (*Ticket, error) {
	ticket, err := scanTicket(s.pool.QueryRow(ctx, `
		UPDATE tickets AS t
		SET title              = COALESCE($3, t.title),
		    description        = COALESCE($4, t.description),
		    status             = COALESCE($5, t.status),
		    priority           = COALESCE($6, t.priority),
		    assignee_member_id = CASE WHEN $8 THEN NULL ELSE COALESCE($7, t.assignee_member_id) END,
		    updated_at         = NOW()
		WHERE t.org_id = $1 AND t.id = $2
		  AND ($7::uuid IS NULL OR EXISTS (SELECT 1 FROM team_members WHERE org_id = $1 AND id = $7))
		RETURNING `+ticketColumns,
		orgID, ticketID, params.Title, params.Description, params.Status, params.Priority,
		params.AssigneeMemberID, params.Unassign))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if params.AssigneeMemberID != nil {
				return nil, ErrInvalidReference
			}
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	return ticket, nil
}

// Delete removes a ticket.
func (s *Service) Delete(ctx context.Context, orgID, ticketID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE org_id = $1 AND id = $2`, orgID, ticketID)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}
