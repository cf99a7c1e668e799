package projects

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
	// ErrProjectNotFound is returned when a project does not exist or is outside the caller's scope
	ErrProjectNotFound = errors.New("project not found")

	// ErrSlugConflict is returned when a project slug already exists in the organization
	ErrSlugConflict = errors.New("project slug already exists in organization")

	// ErrUnknownProject is returned when a project id list references projects of another organization
	ErrUnknownProject = errors.New("unknown project id")
)

type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Service provides project-related operations
type Service struct {
	db dbtx
}

// NewService creates a new project service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{db: pool}
}

const projectColumns = `p.id, p.org_id, p.name, p.slug, p.description, p.created_by_member_id, p.created_at, p.updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var project Project
	var createdBy uuid.NullUUID
	if err := row.Scan(
		&project.ID,
		&project.OrgID,
		&project.Name,
		&project.Slug,
		&project.Description,
		&createdBy,
		&project.CreatedAt,
		&project.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		project.CreatedByMemberID = &createdBy.UUID
	}
	return &project, nil
}

// List returns the projects of the organization the filter lets through.
// A view grant of "own" limits the list to projects the member created.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, checker access.Checker, filter access.ProjectFilter) ([]Project, error) {
	projects := []Project{}
	if filter.Skip() {
		return projects, nil
	}

	conds := access.NewConditions()
	conds.Add("p.org_id = ?", orgID)
	filter.ApplyProjectID(conds, "p.id")
	if !checker.ApplyOwnerView(conds, access.ResourceProjects, "p.created_by_member_id") {
		return projects, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		`+conds.Where()+`
		ORDER BY p.created_at DESC
	`, conds.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

// Get returns one project if the filter and the member's view grant let it
// through; otherwise ErrProjectNotFound.
func (s *Service) Get(ctx context.Context, orgID, projectID uuid.UUID, checker access.Checker, filter access.ProjectFilter) (*Project, error) {
	if filter.Skip() {
		return nil, ErrProjectNotFound
	}

	conds := access.NewConditions()
	conds.Add("p.org_id = ?", orgID)
	conds.Add("p.id = ?", projectID)
	filter.ApplyProjectID(conds, "p.id")

	project, err := scanProject(s.db.QueryRow(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		`+conds.Where(), conds.Args()...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if !checker.Can(access.ResourceProjects, access.ActionView, project.OwnerID()) {
		return nil, ErrProjectNotFound
	}

	return project, nil
}

// Create creates a new project
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, params CreateParams) (*Project, error) {
	project, err := scanProject(s.db.QueryRow(ctx, `
		INSERT INTO projects AS p (org_id, name, slug, description, created_by_member_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+projectColumns,
		orgID, params.Name, params.Slug, params.Description, params.CreatedByMemberID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrSlugConflict
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return project, nil
}

// Delete removes a project. Rows linked to it become unlinked.
func (s *Service) Delete(ctx context.Context, orgID, projectID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM projects WHERE org_id = $1 AND id = $2`, orgID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// ValidateIDs checks that every id names a project of the organization.
func (s *Service) ValidateIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	unique := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}

	var found int
	if err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM projects WHERE org_id = $1 AND id = ANY($2)
	`, orgID, ids).Scan(&found); err != nil {
		return fmt.Errorf("failed to validate project ids: %w", err)
	}
	if found != len(unique) {
		return ErrUnknownProject
	}
	return nil
}
