package roles

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/projects"
	"github.com/opsdesk/opsdesk/internal/validation"
	"github.com/rs/zerolog/log"
)

// CreateRequest represents the request to create a custom role
type CreateRequest struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Permissions  *access.Permissions `json:"permissions"`
	ProjectScope []uuid.UUID         `json:"project_scope"`
}

// UpdateRequest represents a partial role update
type UpdateRequest struct {
	Name         *string             `json:"name"`
	Description  *string             `json:"description"`
	Permissions  *access.Permissions `json:"permissions"`
	ProjectScope access.IDsPatch     `json:"project_scope"`
}

// HandleList handles GET /api/v1/orgs/{org_id}/roles
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		roles, err := NewService(pool).List(ctx, session.OrgID())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list roles")
			apperrors.WriteInternalError(w, r, "Failed to list roles")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"roles": roles,
		})
	}
}

// HandleTemplate handles GET /api/v1/orgs/{org_id}/roles/template
func HandleTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"permissions": access.DefaultPermissions(),
		})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}/roles/{role_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		roleID, err := uuid.Parse(chi.URLParam(r, "role_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid role ID")
			return
		}

		role, err := NewService(pool).Get(ctx, session.OrgID(), roleID)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				apperrors.WriteNotFound(w, r, "Role not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get role")
			apperrors.WriteInternalError(w, r, "Failed to get role")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"role": role,
		})
	}
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/roles
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Name = validation.NormalizeRoleName(req.Name)
		if err := validation.ValidateRoleName(req.Name); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if err := projects.NewService(pool).ValidateIDs(ctx, session.OrgID(), req.ProjectScope); err != nil {
			writeProjectIDsError(w, r, err)
			return
		}

		role, err := NewService(pool).Create(ctx, session.OrgID(), CreateParams{
			Name:         req.Name,
			Description:  req.Description,
			Permissions:  req.Permissions,
			ProjectScope: req.ProjectScope,
		})
		if err != nil {
			if errors.Is(err, ErrRoleNameConflict) {
				apperrors.WriteConflict(w, r, "Role name already exists")
				return
			}
			log.Error().Err(err).Msg("Failed to create role")
			apperrors.WriteInternalError(w, r, "Failed to create role")
			return
		}

		if err := auditor.LogRoleCreated(ctx, session.OrgID(), session.UserID(), role.ID, role.Name); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"role": role,
		})
	}
}

// HandleUpdate handles PUT /api/v1/orgs/{org_id}/roles/{role_id}
func HandleUpdate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		roleID, err := uuid.Parse(chi.URLParam(r, "role_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid role ID")
			return
		}

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.Name != nil {
			name := validation.NormalizeRoleName(*req.Name)
			if err := validation.ValidateRoleName(name); err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			req.Name = &name
		}

		if req.ProjectScope.Set {
			if err := projects.NewService(pool).ValidateIDs(ctx, session.OrgID(), req.ProjectScope.IDs); err != nil {
				writeProjectIDsError(w, r, err)
				return
			}
		}

		role, err := NewService(pool).Update(ctx, session.OrgID(), roleID, UpdateParams{
			Name:         req.Name,
			Description:  req.Description,
			Permissions:  req.Permissions,
			ProjectScope: req.ProjectScope,
		})
		if err != nil {
			writeRoleError(w, r, err, "Failed to update role")
			return
		}

		if err := auditor.LogRoleUpdated(ctx, session.OrgID(), session.UserID(), role.ID, role.Name); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"role": role,
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}/roles/{role_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		roleID, err := uuid.Parse(chi.URLParam(r, "role_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid role ID")
			return
		}

		role, err := NewService(pool).Delete(ctx, session.OrgID(), roleID)
		if err != nil {
			writeRoleError(w, r, err, "Failed to delete role")
			return
		}

		if err := auditor.LogRoleDeleted(ctx, session.OrgID(), session.UserID(), role.ID, role.Name); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

// writeRoleError maps service errors to responses. Guard failures carry
// their own message so the client can show why the change was refused.
func writeRoleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		apperrors.WriteNotFound(w, r, "Role not found")
	case errors.Is(err, ErrSystemRole), errors.Is(err, ErrRoleInUse):
		apperrors.WriteConflict(w, r, err.Error())
	case errors.Is(err, ErrRoleNameConflict):
		apperrors.WriteConflict(w, r, "Role name already exists")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}

func writeProjectIDsError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, projects.ErrUnknownProject) {
		apperrors.WriteBadRequest(w, r, "Project scope references unknown projects")
		return
	}
	log.Error().Err(err).Msg("Failed to validate project ids")
	apperrors.WriteInternalError(w, r, "Failed to validate project ids")
}
