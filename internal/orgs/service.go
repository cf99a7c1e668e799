package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/roles"
	"github.com/rs/zerolog/log"
)

var (
	// ErrOrgNotFound is returned when an organization is not found
	ErrOrgNotFound = errors.New("organization not found")

	// ErrSlugConflict is returned when an organization slug already exists
	ErrSlugConflict = errors.New("organization slug already exists")
)

// Service provides organization-related operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new organization service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// GetByID retrieves an organization by ID
func (s *Service) GetByID(ctx context.Context, orgID uuid.UUID) (*Org, error) {
	var org Org

	query := `
		SELECT id, name, slug, created_by_user_id, created_at, updated_at
		FROM orgs
		WHERE id = $1
	`

	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.CreatedByUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// GetBySlug retrieves an organization by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Org, error) {
	var org Org

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, created_by_user_id, created_at, updated_at
		FROM orgs
		WHERE slug = $1
	`, slug).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.CreatedByUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// ListUserOrgs retrieves all organizations for a user with their role names
func (s *Service) ListUserOrgs(ctx context.Context, userID uuid.UUID) ([]OrgWithRole, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.created_by_user_id, o.created_at, o.updated_at,
		       m.id, r.name, m.is_owner
		FROM orgs o
		INNER JOIN team_members m ON o.id = m.org_id
		INNER JOIN roles r ON r.id = m.role_id
		WHERE m.user_id = $1
		ORDER BY o.created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orgs: %w", err)
	}
	defer rows.Close()

	var orgs []OrgWithRole
	for rows.Next() {
		var org OrgWithRole
		err := rows.Scan(
			&org.ID,
			&org.Name,
			&org.Slug,
			&org.CreatedByUserID,
			&org.CreatedAt,
			&org.UpdatedAt,
			&org.MemberID,
			&org.RoleName,
			&org.IsOwner,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan org: %w", err)
		}
		orgs = append(orgs, org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating org rows: %w", err)
	}

	return orgs, nil
}

// CreateWithOwner creates a new organization, seeds its system roles and makes
// the user an owner member holding the Owner role, all in one transaction.
func (s *Service) CreateWithOwner(ctx context.Context, name, slug string, userID uuid.UUID) (*Org, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var org Org
	query := `
		INSERT INTO orgs (name, slug, created_by_user_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, slug, created_by_user_id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query, name, slug, userID).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.CreatedByUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrSlugConflict
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	roleIDs, err := roles.EnsureSystemRoles(ctx, tx, org.ID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (org_id, user_id, role_id, is_owner)
		VALUES ($1, $2, $3, true)
	`, org.ID, userID, roleIDs[roles.OwnerRoleName])
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("org_id", org.ID.String()).
		Int("system_roles", len(roleIDs)).
		Msg("Organization created")

	return &org, nil
}
