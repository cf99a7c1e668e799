package members

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

// AddRequest represents the request to add an existing user to the organization
type AddRequest struct {
	Email             string      `json:"email"`
	RoleID            uuid.UUID   `json:"role_id"`
	AllowedProjectIDs []uuid.UUID `json:"allowed_project_ids"`
}

// UpdateRequest is a PATCH body; allowed_project_ids distinguishes absent from null.
type UpdateRequest struct {
	RoleID            *uuid.UUID      `json:"role_id"`
	AllowedProjectIDs access.IDsPatch `json:"allowed_project_ids"`
}

func actorOf(s *access.Session) Actor {
	return Actor{MemberID: s.MemberID(), IsOwner: s.IsOwner()}
}

// HandleList handles GET /api/v1/orgs/{org_id}/members
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		members, err := NewService(pool).List(ctx, session.OrgID())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list members")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

// HandleAdd handles POST /api/v1/orgs/{org_id}/members
func HandleAdd(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		var req AddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Email = validation.NormalizeEmail(req.Email)
		if err := validation.ValidateEmail(req.Email); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid email")
			return
		}
		if req.RoleID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "Role is required")
			return
		}

		if err := projects.NewService(pool).ValidateIDs(ctx, session.OrgID(), req.AllowedProjectIDs); err != nil {
			writeMemberError(w, r, err, "Failed to add member")
			return
		}

		member, err := NewService(pool).AddByEmail(ctx, session.OrgID(), actorOf(session), AddParams{
			Email:             req.Email,
			RoleID:            req.RoleID,
			AllowedProjectIDs: req.AllowedProjectIDs,
		})
		if err != nil {
			writeMemberError(w, r, err, "Failed to add member")
			return
		}

		if err := auditor.LogMemberAdded(ctx, session.OrgID(), session.UserID(), member.ID, member.UserID, member.RoleName); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"member": member,
		})
	}
}

// HandleUpdate handles PATCH /api/v1/orgs/{org_id}/members/{member_id}
func HandleUpdate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		memberID, err := uuid.Parse(chi.URLParam(r, "member_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid member ID")
			return
		}

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.RoleID == nil && !req.AllowedProjectIDs.Set {
			apperrors.WriteBadRequest(w, r, "Nothing to update")
			return
		}

		if req.AllowedProjectIDs.Set {
			if err := projects.NewService(pool).ValidateIDs(ctx, session.OrgID(), req.AllowedProjectIDs.IDs); err != nil {
				writeMemberError(w, r, err, "Failed to update member")
				return
			}
		}

		before, after, err := NewService(pool).UpdateAccess(ctx, session.OrgID(), actorOf(session), memberID, UpdateParams{
			RoleID:            req.RoleID,
			AllowedProjectIDs: req.AllowedProjectIDs,
		})
		if err != nil {
			writeMemberError(w, r, err, "Failed to update member")
			return
		}

		if err := auditor.LogMemberAccessUpdated(ctx, session.OrgID(), session.UserID(), after.ID, before.RoleName, after.RoleName, after.AllowedProjectIDs); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"member": after,
		})
	}
}

// HandleRemove handles DELETE /api/v1/orgs/{org_id}/members/{member_id}
func HandleRemove(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		memberID, err := uuid.Parse(chi.URLParam(r, "member_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid member ID")
			return
		}

		removed, err := NewService(pool).Remove(ctx, session.OrgID(), actorOf(session), memberID)
		if err != nil {
			writeMemberError(w, r, err, "Failed to remove member")
			return
		}

		if err := auditor.LogMemberRemoved(ctx, session.OrgID(), session.UserID(), removed.ID, removed.UserID, removed.RoleName); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}

func writeMemberError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrMemberNotFound):
		apperrors.WriteNotFound(w, r, "Member not found")
	case errors.Is(err, ErrUserNotFound):
		apperrors.WriteNotFound(w, r, "No user with this email")
	case errors.Is(err, ErrAlreadyMember):
		apperrors.WriteConflict(w, r, "User is already a member")
	case errors.Is(err, ErrRoleNotFound):
		apperrors.WriteBadRequest(w, r, "Role not found in organization")
	case errors.Is(err, projects.ErrUnknownProject):
		apperrors.WriteBadRequest(w, r, "Allowed projects reference unknown projects")
	case errors.Is(err, ErrOwnerProtected):
		apperrors.WriteAccessDenied(w, r, "Only owners can change owners")
	case errors.Is(err, ErrCannotRemoveLastOwner):
		apperrors.WriteConflict(w, r, "Cannot remove the last owner")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
