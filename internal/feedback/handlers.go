package feedback

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
	ProjectID *uuid.UUID `json:"project_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
}

// HandleList handles GET /api/v1/orgs/{org_id}/feedback
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		items, err := NewService(pool).List(ctx, session.OrgID(), session.Checker(), session.ProjectFilter())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list feedback")
			apperrors.WriteInternalError(w, r, "Failed to list feedback")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"feedback": items,
		})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}/feedback/{feedback_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		itemID, err := uuid.Parse(chi.URLParam(r, "feedback_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid feedback ID")
			return
		}

		item, err := NewService(pool).Get(ctx, session.OrgID(), itemID, session.Checker(), session.ProjectFilter())
		if err != nil {
			writeFeedbackError(w, r, err, "Failed to get feedback")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"feedback": item,
		})
	}
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/feedback
func HandleCreate(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			apperrors.WriteBadRequest(w, r, "Feedback title is required")
			return
		}
		if !session.ProjectFilter().Visible(req.ProjectID) {
			apperrors.WriteBadRequest(w, r, "Project is outside your access")
			return
		}

		item, err := NewService(pool).Create(ctx, session.OrgID(), CreateParams{
			ProjectID:      req.ProjectID,
			Title:          req.Title,
			Body:           req.Body,
			AuthorMemberID: session.MemberID(),
		})
		if err != nil {
			writeFeedbackError(w, r, err, "Failed to create feedback")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"feedback": item,
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}/feedback/{feedback_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		itemID, err := uuid.Parse(chi.URLParam(r, "feedback_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid feedback ID")
			return
		}

		service := NewService(pool)
		item, err := service.Get(ctx, session.OrgID(), itemID, session.Checker(), session.ProjectFilter())
		if err != nil {
			writeFeedbackError(w, r, err, "Failed to delete feedback")
			return
		}
		if !session.Can(access.ResourceFeedback, access.ActionDelete, item.AuthorID()) {
			apperrors.WriteAccessDenied(w, r, "Access Denied")
			return
		}

		if err := service.Delete(ctx, session.OrgID(), itemID); err != nil {
			writeFeedbackError(w, r, err, "Failed to delete feedback")
			return
		}

		if err := auditor.LogRecordDeleted(ctx, audit.EventFeedbackDeleted, session.OrgID(), session.UserID(), item.ID, item.ProjectID, item.Title); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

func writeFeedbackError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrFeedbackNotFound):
		apperrors.WriteNotFound(w, r, "Feedback not found")
	case errors.Is(err, ErrUnknownProject):
		apperrors.WriteBadRequest(w, r, "Project not found in organization")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
