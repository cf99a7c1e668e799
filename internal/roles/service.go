package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/rs/zerolog/log"
)

// Service provides role operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new role service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const roleColumns = `
	r.id, r.org_id, r.name, r.description, r.permissions,
	r.project_scope IS NULL, COALESCE(r.project_scope, '{}'),
	r.is_system, r.created_at, r.updated_at,
	(SELECT count(*) FROM team_members m WHERE m.role_id = r.id)
`

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	var permsRaw []byte
	var scopeNull bool
	var scope []uuid.UUID

	if err := row.Scan(
		&role.ID,
		&role.OrgID,
		&role.Name,
		&role.Description,
		&permsRaw,
		&scopeNull,
		&scope,
		&role.IsSystem,
		&role.CreatedAt,
		&role.UpdatedAt,
		&role.MemberCount,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(permsRaw, &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode permissions of role %s: %w", role.ID, err)
	}
	role.ProjectScope = access.NullableIDs(scopeNull, scope)
	return &role, nil
}

// List returns every role of the organization, system roles first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+roleColumns+`
		FROM roles r
		WHERE r.org_id = $1
		ORDER BY r.is_system DESC, r.name ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	out := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		out = append(out, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}
	return out, nil
}

// Get returns one role of the organization.
func (s *Service) Get(ctx context.Context, orgID, roleID uuid.UUID) (*Role, error) {
	role, err := scanRole(s.pool.QueryRow(ctx, `
		SELECT `+roleColumns+`
		FROM roles r
		WHERE r.org_id = $1 AND r.id = $2
	`, orgID, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// Create inserts a custom role.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, params CreateParams) (*Role, error) {
	perms := access.DefaultPermissions()
	if params.Permissions != nil {
		perms = *params.Permissions
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permissions: %w", err)
	}

	var roleID uuid.UUID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO roles (org_id, name, description, permissions, project_scope, is_system)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id
	`, orgID, params.Name, params.Description, permsJSON, params.ProjectScope).Scan(&roleID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoleNameConflict
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	return s.Get(ctx, orgID, roleID)
}

// Update applies a partial update to a custom role. System roles are immutable.
func (s *Service) Update(ctx context.Context, orgID, roleID uuid.UUID, params UpdateParams) (*Role, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var name string
	var isSystem bool
	if err := tx.QueryRow(ctx, `
		SELECT name, is_system
		FROM roles
		WHERE org_id = $1 AND id = $2
		FOR UPDATE
	`, orgID, roleID).Scan(&name, &isSystem); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}
	if isSystem {
		return nil, &SystemRoleError{Name: name, Op: "modify"}
	}

	var permsJSON []byte
	if params.Permissions != nil {
		permsJSON, err = json.Marshal(*params.Permissions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode permissions: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE roles
		SET name          = COALESCE($3, name),
		    description   = COALESCE($4, description),
		    permissions   = COALESCE($5::jsonb, permissions),
		    project_scope = CASE WHEN $6 THEN $7::uuid[] ELSE project_scope END,
		    updated_at    = NOW()
		WHERE org_id = $1 AND id = $2
	`, orgID, roleID, params.Name, params.Description, permsJSON, params.ProjectScope.Set, params.ProjectScope.IDs)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoleNameConflict
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, orgID, roleID)
}

// Delete removes a custom role that no member references and returns its
// last state.
func (s *Service) Delete(ctx context.Context, orgID, roleID uuid.UUID) (*Role, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT id FROM roles
		WHERE org_id = $1 AND id = $2
		FOR UPDATE
	`, orgID, roleID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to lock role: %w", err)
	}

	role, err := scanRole(tx.QueryRow(ctx, `
		SELECT `+roleColumns+`
		FROM roles r
		WHERE r.org_id = $1 AND r.id = $2
	`, orgID, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	if err := checkDeletable(role); err != nil {
		log.Debug().
			Str("org_id", orgID.String()).
			Str("role_id", roleID.String()).
			Err(err).
			Msg("Roles: delete refused")
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE org_id = $1 AND id = $2`, orgID, roleID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return nil, fmt.Errorf("role %q gained members while deleting: %w", role.Name, ErrRoleInUse)
		}
		return nil, fmt.Errorf("failed to delete role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return role, nil
}

// checkDeletable applies the deletion guards in order: system roles first,
// then roles still assigned to members.
func checkDeletable(role *Role) error {
	if role.IsSystem {
		return &SystemRoleError{Name: role.Name, Op: "delete"}
	}
	if role.MemberCount > 0 {
		return &RoleInUseError{Name: role.Name, Members: role.MemberCount}
	}
	return nil
}

// EnsureSystemRoles creates or refreshes the system roles of an organization
// inside tx and returns their ids by name.
func EnsureSystemRoles(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) (map[string]uuid.UUID, error) {
	defs, err := SystemRoles()
	if err != nil {
		return nil, err
	}

	ids := make(map[string]uuid.UUID, len(defs))
	for _, def := range defs {
		permsJSON, err := json.Marshal(def.Permissions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode permissions of %q: %w", def.Name, err)
		}

		var id uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO roles (org_id, name, description, permissions, project_scope, is_system)
			VALUES ($1, $2, $3, $4, NULL, true)
			ON CONFLICT (org_id, name) DO UPDATE
			SET description = EXCLUDED.description,
			    permissions = EXCLUDED.permissions,
			    is_system   = true,
			    updated_at  = NOW()
			RETURNING id
		`, orgID, def.Name, def.Description, permsJSON).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to seed system role %q: %w", def.Name, err)
		}
		ids[def.Name] = id
	}

	return ids, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
