package projects

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
	"github.com/opsdesk/opsdesk/internal/validation"
	"github.com/rs/zerolog/log"
)

// CreateRequest represents the request to create a project
type CreateRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/projects
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "Project name is required")
			return
		}
		if req.Slug == "" {
			apperrors.WriteBadRequest(w, r, "Project slug is required")
			return
		}

		req.Slug = validation.NormalizeSlug(req.Slug)
		if err := validation.ValidateSlug(req.Slug); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		project, err := service.Create(ctx, session.OrgID(), CreateParams{
			Name:              req.Name,
			Slug:              req.Slug,
			Description:       req.Description,
			CreatedByMemberID: session.MemberID(),
		})
		if err != nil {
			if errors.Is(err, ErrSlugConflict) {
				apperrors.WriteConflict(w, r, "Project slug already exists in organization")
				return
			}
			log.Error().Err(err).Msg("Failed to create project")
			apperrors.WriteInternalError(w, r, "Failed to create project")
			return
		}

		if err := auditor.LogProjectCreated(ctx, session.OrgID(), project.ID, session.UserID(), project.Slug); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"project": project,
		})
	}
}

// HandleList handles GET /api/v1/orgs/{org_id}/projects
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		service := NewService(pool)
		projects, err := service.List(ctx, session.OrgID(), session.Checker(), session.ProjectFilter())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list projects")
			apperrors.WriteInternalError(w, r, "Failed to list projects")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"projects": projects,
		})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}/projects/{project_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return handleGet(NewService(pool))
}

func handleGet(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		project, err := service.Get(ctx, session.OrgID(), projectID, session.Checker(), session.ProjectFilter())
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				apperrors.WriteNotFound(w, r, "Project not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get project")
			apperrors.WriteInternalError(w, r, "Failed to get project")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"project": project,
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}/projects/{project_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return handleDelete(NewService(pool), auditor)
}

func handleDelete(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		project, err := service.Get(ctx, session.OrgID(), projectID, session.Checker(), session.ProjectFilter())
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				apperrors.WriteNotFound(w, r, "Project not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get project")
			apperrors.WriteInternalError(w, r, "Failed to delete project")
			return
		}

		if !session.Can(access.ResourceProjects, access.ActionDelete, project.OwnerID()) {
			apperrors.WriteAccessDenied(w, r, "Access Denied")
			return
		}

		if err := service.Delete(ctx, session.OrgID(), projectID); err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				apperrors.WriteNotFound(w, r, "Project not found")
				return
			}
			log.Error().Err(err).Msg("Failed to delete project")
			apperrors.WriteInternalError(w, r, "Failed to delete project")
			return
		}

		if err := auditor.LogProjectDeleted(ctx, session.OrgID(), projectID, session.UserID(), project.Slug); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}
