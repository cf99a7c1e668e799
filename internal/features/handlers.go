package features

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/rs/zerolog/log"
)

type CreateRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	ProjectIDs  []uuid.UUID `json:"project_ids"`
}

// canLink reports whether the caller may create a request with these links:
// every linked project must be in scope, and an unlinked request must be
// visible to them afterwards.
func canLink(filter access.ProjectFilter, projectIDs []uuid.UUID) bool {
	if len(projectIDs) == 0 {
		return filter.Visible(nil)
	}
	for _, id := range projectIDs {
		if !filter.Visible(&id) {
			return false
		}
	}
	return true
}

// HandleList handles GET /api/v1/orgs/{org_id}/features
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		requests, err := NewService(pool).List(ctx, session.OrgID(), session.Checker(), session.ProjectFilter())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list feature requests")
			apperrors.WriteInternalError(w, r, "Failed to list feature requests")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"features": requests,
		})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}/features/{feature_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		requestID, err := uuid.Parse(chi.URLParam(r, "feature_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid feature request ID")
			return
		}

		req, err := NewService(pool).Get(ctx, session.OrgID(), requestID, session.Checker(), session.ProjectFilter())
		if err != nil {
			writeFeatureError(w, r, err, "Failed to get feature request")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"feature": req,
		})
	}
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/features
func HandleCreate(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		var body CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		body.Title = strings.TrimSpace(body.Title)
		if body.Title == "" {
			apperrors.WriteBadRequest(w, r, "Feature request title is required")
			return
		}
		if !canLink(session.ProjectFilter(), body.ProjectIDs) {
			apperrors.WriteBadRequest(w, r, "Project is outside your access")
			return
		}

		req, err := NewService(pool).Create(ctx, session.OrgID(), CreateParams{
			Title:          body.Title,
			Description:    body.Description,
			AuthorMemberID: session.MemberID(),
			ProjectIDs:     body.ProjectIDs,
		})
		if err != nil {
			writeFeatureError(w, r, err, "Failed to create feature request")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"feature": req,
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}/features/{feature_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		requestID, err := uuid.Parse(chi.URLParam(r, "feature_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid feature request ID")
			return
		}

		service := NewService(pool)
		req, err := service.Get(ctx, session.OrgID(), requestID, session.Checker(), session.ProjectFilter())
		if err != nil {
			writeFeatureError(w, r, err, "Failed to delete feature request")
			return
		}
		if !session.Can(access.ResourceFeatures, access.ActionDelete, req.AuthorID()) {
			apperrors.WriteAccessDenied(w, r, "Access Denied")
			return
		}

		if err := service.Delete(ctx, session.OrgID(), requestID); err != nil {
			writeFeatureError(w, r, err, "Failed to delete feature request")
			return
		}

		if err := auditor.LogRecordDeleted(ctx, audit.EventFeatureRequestDeleted, session.OrgID(), session.UserID(), req.ID, nil, req.Title); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

func writeFeatureError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		apperrors.WriteNotFound(w, r, "Feature request not found")
	case errors.Is(err, ErrUnknownProject):
		apperrors.WriteBadRequest(w, r, "Project not found in organization")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
