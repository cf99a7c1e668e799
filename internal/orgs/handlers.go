package orgs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/apperrors"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/validation"
	"github.com/rs/zerolog/log"
)

// CreateRequest represents the request to create an organization
type CreateRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type OrgCreateResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt string    `json:"created_at"`
}

type OrgListItemResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	MemberID uuid.UUID `json:"member_id"`
	RoleName string    `json:"role_name"`
	IsOwner  bool      `json:"is_owner"`
}

// HandleCreate handles POST /api/v1/orgs
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "Organization name is required")
			return
		}
		if req.Slug == "" {
			apperrors.WriteBadRequest(w, r, "Organization slug is required")
			return
		}

		req.Slug = validation.NormalizeSlug(req.Slug)
		if err := validation.ValidateSlug(req.Slug); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		org, err := service.CreateWithOwner(ctx, req.Name, req.Slug, userID)
		if err != nil {
			if errors.Is(err, ErrSlugConflict) {
				apperrors.WriteConflict(w, r, "Organization slug already exists")
				return
			}
			log.Error().Err(err).Msg("Failed to create organization")
			apperrors.WriteInternalError(w, r, "Failed to create organization")
			return
		}

		if err := auditor.LogOrgCreated(ctx, org.ID, userID, org.Slug); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		resp := OrgCreateResponse{
			ID:        org.ID,
			Name:      org.Name,
			Slug:      org.Slug,
			CreatedAt: org.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"org": resp,
		})
	}
}

// HandleList handles GET /api/v1/orgs
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		orgs, err := service.ListUserOrgs(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list organizations")
			apperrors.WriteInternalError(w, r, "Failed to list organizations")
			return
		}

		resp := make([]OrgListItemResponse, len(orgs))
		for i, org := range orgs {
			resp[i] = OrgListItemResponse{
				ID:       org.ID,
				Name:     org.Name,
				Slug:     org.Slug,
				MemberID: org.MemberID,
				RoleName: org.RoleName,
				IsOwner:  org.IsOwner,
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"orgs": resp,
		})
	}
}

// HandleSession handles GET /api/v1/orgs/{org_id}/session. It returns what the
// client needs to render navigation and hide controls the member cannot use.
func HandleSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := access.FromContext(r.Context())

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"session": session.View(),
		})
	}
}
