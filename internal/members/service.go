package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/roles"
	"github.com/rs/zerolog/log"
)

// Service provides team member operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new member service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const memberColumns = `
	m.id, m.org_id, m.user_id, u.email, m.role_id, r.name, m.is_owner,
	m.allowed_project_ids IS NULL, COALESCE(m.allowed_project_ids, '{}'),
	m.created_at
`

const memberFrom = `
	FROM team_members m
	INNER JOIN users u ON u.id = m.user_id
	INNER JOIN roles r ON r.id = m.role_id
`

func scanMember(row pgx.Row) (*Member, error) {
	var member Member
	var scopeNull bool
	var scope []uuid.UUID
	if err := row.Scan(
		&member.ID,
		&member.OrgID,
		&member.UserID,
		&member.Email,
		&member.RoleID,
		&member.RoleName,
		&member.IsOwner,
		&scopeNull,
		&scope,
		&member.CreatedAt,
	); err != nil {
		return nil, err
	}
	member.AllowedProjectIDs = access.NullableIDs(scopeNull, scope)
	return &member, nil
}

// List retrieves all members of an organization
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memberColumns+memberFrom+`
		WHERE m.org_id = $1
		ORDER BY m.created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// Get retrieves one member of an organization
func (s *Service) Get(ctx context.Context, orgID, memberID uuid.UUID) (*Member, error) {
	return getMember(ctx, s.pool, orgID, memberID, false)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getMember(ctx context.Context, q queryRower, orgID, memberID uuid.UUID, lock bool) (*Member, error) {
	query := `SELECT ` + memberColumns + memberFrom + ` WHERE m.org_id = $1 AND m.id = $2`
	if lock {
		query += ` FOR UPDATE OF m`
	}
	member, err := scanMember(q.QueryRow(ctx, query, orgID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// roleInOrg returns the name and system flag of a role of the organization.
func roleInOrg(ctx context.Context, q queryRower, orgID, roleID uuid.UUID) (name string, isSystem bool, err error) {
	err = q.QueryRow(ctx, `
		SELECT name, is_system FROM roles WHERE org_id = $1 AND id = $2
	`, orgID, roleID).Scan(&name, &isSystem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, ErrRoleNotFound
		}
		return "", false, fmt.Errorf("failed to load role: %w", err)
	}
	return name, isSystem, nil
}

func isOwnerRole(name string, isSystem bool) bool {
	return isSystem && name == roles.OwnerRoleName
}

// AddByEmail adds an existing user to the organization.
func (s *Service) AddByEmail(ctx context.Context, orgID uuid.UUID, actor Actor, params AddParams) (*Member, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var userID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, params.Email).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	roleName, isSystem, err := roleInOrg(ctx, tx, orgID, params.RoleID)
	if err != nil {
		return nil, err
	}
	if isOwnerRole(roleName, isSystem) && !actor.IsOwner {
		return nil, ErrOwnerProtected
	}

	var memberID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO team_members (org_id, user_id, role_id, is_owner, allowed_project_ids)
		VALUES ($1, $2, $3, false, $4)
		RETURNING id
	`, orgID, userID, params.RoleID, params.AllowedProjectIDs).Scan(&memberID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	member, err := getMember(ctx, tx, orgID, memberID, false)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return member, nil
}

// UpdateAccess changes a member's role and/or project restriction and returns
// the member before and after the change.
func (s *Service) UpdateAccess(ctx context.Context, orgID uuid.UUID, actor Actor, memberID uuid.UUID, params UpdateParams) (before, after *Member, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	before, err = getMember(ctx, tx, orgID, memberID, true)
	if err != nil {
		return nil, nil, err
	}
	if before.IsOwner && !actor.IsOwner {
		return nil, nil, ErrOwnerProtected
	}

	roleID := before.RoleID
	if params.RoleID != nil {
		roleName, isSystem, err := roleInOrg(ctx, tx, orgID, *params.RoleID)
		if err != nil {
			return nil, nil, err
		}
		if isOwnerRole(roleName, isSystem) && !actor.IsOwner {
			return nil, nil, ErrOwnerProtected
		}
		roleID = *params.RoleID
	}

	if _, err := tx.Exec(ctx, `
		UPDATE team_members
		SET role_id             = $3,
		    allowed_project_ids = CASE WHEN $4 THEN $5::uuid[] ELSE allowed_project_ids END,
		    updated_at          = NOW()
		WHERE org_id = $1 AND id = $2
	`, orgID, memberID, roleID, params.AllowedProjectIDs.Set, params.AllowedProjectIDs.IDs); err != nil {
		return nil, nil, fmt.Errorf("failed to update member: %w", err)
	}

	after, err = getMember(ctx, tx, orgID, memberID, false)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return before, after, nil
}

// Remove deletes a membership. Owners can only be removed by owners, and never
// the last one.
func (s *Service) Remove(ctx context.Context, orgID uuid.UUID, actor Actor, memberID uuid.UUID) (*Member, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	target, err := getMember(ctx, tx, orgID, memberID, true)
	if err != nil {
		return nil, err
	}

	if target.IsOwner {
		if !actor.IsOwner {
			return nil, ErrOwnerProtected
		}
		owners, err := lockOwners(ctx, tx, orgID)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, ErrCannotRemoveLastOwner
		}
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM team_members
		WHERE org_id = $1 AND id = $2
	`, orgID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMemberNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("member_id", memberID.String()).
		Str("actor_member_id", actor.MemberID.String()).
		Msg("Member removed")

	return target, nil
}

func lockOwners(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) (int, error) {
	rows, err := tx.Query(ctx, `
		SELECT id
		FROM team_members
		WHERE org_id = $1 AND is_owner
		FOR UPDATE
	`, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	defer rows.Close()

	var owners int
	for rows.Next() {
		owners++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	return owners, nil
}

// GrantOwnership flags the user's membership as owner and assigns the Owner
// system role. Used by operators to recover an organization.
func (s *Service) GrantOwnership(ctx context.Context, orgID, userID uuid.UUID) (*Member, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ids, err := roles.EnsureSystemRoles(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}

	var memberID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE team_members
		SET is_owner = true, role_id = $3, updated_at = NOW()
		WHERE org_id = $1 AND user_id = $2
		RETURNING id
	`, orgID, userID, ids[roles.OwnerRoleName]).Scan(&memberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to grant ownership: %w", err)
	}

	member, err := getMember(ctx, tx, orgID, memberID, false)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return member, nil
}
