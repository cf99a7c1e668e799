package feedback

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
	ErrFeedbackNotFound = errors.New("feedback not found")
	ErrUnknownProject   = errors.New("project does not belong to organization")
)

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const itemColumns = `f.id, f.org_id, f.project_id, f.title, f.body, f.author_member_id, f.created_at`

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	var projectID, authorID uuid.NullUUID
	if err := row.Scan(&item.ID, &item.OrgID, &projectID, &item.Title, &item.Body, &authorID, &item.CreatedAt); err != nil {
		return nil, err
	}
	if projectID.Valid {
		item.ProjectID = &projectID.UUID
	}
	if authorID.Valid {
		item.AuthorMemberID = &authorID.UUID
	}
	return &item, nil
}

// List returns the feedback visible to the caller, newest first. Items without a
// project follow the filter's unlinked policy.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, checker access.Checker, filter access.ProjectFilter) ([]Item, error) {
	items := []Item{}
	if filter.Skip() {
		return items, nil
	}

	conds := access.NewConditions()
	conds.Add("f.org_id = ?", orgID)
	filter.ApplyColumn(conds, "f.project_id")
	if !checker.ApplyOwnerView(conds, access.ResourceFeedback, "f.author_member_id") {
		return items, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM feedback f
		`+conds.Where()+`
		ORDER BY f.created_at DESC
	`, conds.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback rows: %w", err)
	}

	return items, nil
}

func (s *Service) Get(ctx context.Context, orgID, itemID uuid.UUID, checker access.Checker, filter access.ProjectFilter) (*Item, error) {
	if filter.Skip() {
		return nil, ErrFeedbackNotFound
	}

	conds := access.NewConditions()
	conds.Add("f.org_id = ?", orgID)
	conds.Add("f.id = ?", itemID)
	filter.ApplyColumn(conds, "f.project_id")

	item, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM feedback f `+conds.Where(), conds.Args()...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFeedbackNotFound
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	if !checker.Can(access.ResourceFeedback, access.ActionView, item.AuthorID()) {
		return nil, ErrFeedbackNotFound
	}
	return item, nil
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, params CreateParams) (*Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `
		INSERT INTO feedback AS f (org_id, project_id, title, body, author_member_id)
		SELECT $1, $2, $3, $4, $5
		WHERE $2::uuid IS NULL OR EXISTS (SELECT 1 FROM projects WHERE org_id = $1 AND id = $2)
		RETURNING `+itemColumns,
		orgID, params.ProjectID, params.Title, params.Body, params.AuthorMemberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownProject
		}
		return nil, fmt.Errorf("failed to create feedback: %w", err)
	}
	return item, nil
}

func (s *Service) Delete(ctx context.Context, orgID, itemID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feedback WHERE org_id = $1 AND id = $2`, orgID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}
