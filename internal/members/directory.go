package members

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/rs/zerolog/log"
)

// Directory reads access snapshots from team_members and roles.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// LoadSnapshot implements access.Directory.
func (d *Directory) LoadSnapshot(ctx context.Context, orgID, userID uuid.UUID) (*access.Snapshot, error) {
	snap := access.Snapshot{OrgID: orgID, UserID: userID}
	var permsRaw []byte
	var memberScopeNull, roleScopeNull bool
	var memberScope, roleScope []uuid.UUID

	err := d.pool.QueryRow(ctx, `
		SELECT m.id, m.is_owner,
		       m.allowed_project_ids IS NULL, COALESCE(m.allowed_project_ids, '{}'),
		       r.id, r.name, r.permissions,
		       r.project_scope IS NULL, COALESCE(r.project_scope, '{}')
		FROM team_members m
		INNER JOIN roles r ON r.id = m.role_id
		WHERE m.org_id = $1 AND m.user_id = $2
	`, orgID, userID).Scan(
		&snap.MemberID,
		&snap.IsOwner,
		&memberScopeNull,
		&memberScope,
		&snap.RoleID,
		&snap.RoleName,
		&permsRaw,
		&roleScopeNull,
		&roleScope,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotMember
		}
		return nil, fmt.Errorf("failed to load member access: %w", err)
	}

	snap.Permissions = decodePermissions(snap.RoleID, permsRaw)
	snap.AllowedProjectIDs = access.NullableIDs(memberScopeNull, memberScope)
	snap.RoleProjectScope = access.NullableIDs(roleScopeNull, roleScope)

	return &snap, nil
}

// decodePermissions parses a stored matrix. A matrix that does not parse
// denies everything.
func decodePermissions(roleID uuid.UUID, raw []byte) *access.Permissions {
	var perms access.Permissions
	if err := json.Unmarshal(raw, &perms); err != nil {
		log.Error().Err(err).Str("role_id", roleID.String()).Msg("Stored role permissions are invalid, denying all access")
		return &access.Permissions{}
	}
	return &perms
}
