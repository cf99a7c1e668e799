package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
)

var (
	ErrRequestNotFound = errors.New("feature request not found")
	ErrUnknownProject  = errors.New("project does not belong to organization")
)

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const requestColumns = `
	fr.id, fr.org_id, fr.title, fr.description, fr.status, fr.author_member_id,
	(SELECT COALESCE(array_agg(l.project_id ORDER BY l.project_id), '{}')
	   FROM feature_request_projects l WHERE l.feature_request_id = fr.id),
	fr.created_at
`

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	var authorID uuid.NullUUID
	if err := row.Scan(
		&req.ID,
		&req.OrgID,
		&req.Title,
		&req.Description,
		&req.Status,
		&authorID,
		&req.ProjectIDs,
		&req.CreatedAt,
	); err != nil {
		return nil, err
	}
	if authorID.Valid {
		req.AuthorMemberID = &authorID.UUID
	}
	if req.ProjectIDs == nil {
		req.ProjectIDs = []uuid.UUID{}
	}
	return &req, nil
}

// List returns the feature requests visible to the caller. A request is visible
// when at least one linked project is allowed; requests without links follow
// the filter's unlinked policy.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, checker access.Checker, filter access.ProjectFilter) ([]Request, error) {
	out := []Request{}
	if filter.Skip() {
		return out, nil
	}

	conds := access.NewConditions()
	conds.Add("fr.org_id = ?", orgID)
	filter.ApplyJoin(conds, "feature_request_projects", "feature_request_id", "fr.id")
	if !checker.ApplyOwnerView(conds, access.ResourceFeatures, "fr.author_member_id") {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM feature_requests fr
		`+conds.Where()+`
		ORDER BY fr.created_at DESC
	`, conds.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature request rows: %w", err)
	}

	return out, nil
}

// Get loads one request and applies the project filter to its links.
func (s *Service) Get(ctx context.Context, orgID, requestID uuid.UUID, checker access.Checker, filter access.ProjectFilter) (*Request, error) {
	if filter.Skip() {
		return nil, ErrRequestNotFound
	}

	req, err := scanRequest(s.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM feature_requests fr
		WHERE fr.org_id = $1 AND fr.id = $2
	`, orgID, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get feature request: %w", err)
	}

	if !filter.VisibleLinked(req.ProjectIDs) || !checker.Can(access.ResourceFeatures, access.ActionView, req.AuthorID()) {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// Create inserts a request and its project links in one transaction.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, params CreateParams) (*Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var requestID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO feature_requests (org_id, title, description, status, author_member_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, orgID, params.Title, params.Description, StatusOpen, params.AuthorMemberID).Scan(&requestID); err != nil {
		return nil, fmt.Errorf("failed to create feature request: %w", err)
	}

	if len(params.ProjectIDs) > 0 {
		tag, err := tx.Exec(ctx, `
			INSERT INTO feature_request_projects (feature_request_id, project_id)
			SELECT $1, p.id FROM projects p
			WHERE p.org_id = $2 AND p.id = ANY($3)
			ON CONFLICT DO NOTHING
		`, requestID, orgID, params.ProjectIDs)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
				return nil, ErrUnknownProject
			}
			return nil, fmt.Errorf("failed to link projects: %w", err)
		}
		if int(tag.RowsAffected()) != countUnique(params.ProjectIDs) {
			return nil, ErrUnknownProject
		}
	}

	req, err := scanRequest(tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM feature_requests fr
		WHERE fr.id = $1
	`, requestID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload feature request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return req, nil
}

func countUnique(ids []uuid.UUID) int {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// Delete removes a request; its links cascade.
func (s *Service) Delete(ctx context.Context, orgID, requestID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feature_requests WHERE org_id = $1 AND id = $2`, orgID, requestID)
	if err != nil {
		return fmt.Errorf("failed to delete feature request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}
