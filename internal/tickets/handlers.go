package tickets

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
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
	ProjectID        *uuid.UUID `json:"project_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Priority         Priority   `json:"priority"`
	AssigneeMemberID *uuid.UUID `json:"assignee_member_id"`
}

type UpdateRequest struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	Status           *Status    `json:"status"`
	Priority         *Priority  `json:"priority"`
	AssigneeMemberID *uuid.UUID `json:"assignee_member_id"`
	Unassign         bool       `json:"unassign"`
}

// HandleList handles GET /api/v1/orgs/{org_id}/tickets
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		opts, err := parseListOptions(r)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		tickets, err := NewService(pool).List(ctx, session.OrgID(), session.Checker(), session.ProjectFilter(), opts)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list tickets")
			apperrors.WriteInternalError(w, r, "Failed to list tickets")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"tickets": tickets,
		})
	}
}

func parseListOptions(r *http.Request) (ListOptions, error) {
	q := r.URL.Query()
	var opts ListOptions

	if raw := q.Get("status"); raw != "" {
		opts.Status = Status(raw)
		if !opts.Status.IsValid() {
			return opts, errors.New("Invalid status")
		}
	}
	if raw := q.Get("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return opts, errors.New("Invalid project ID")
		}
		opts.ProjectID = &id
	}
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			opts.Limit = v
		}
	}
	return opts, nil
}

// HandleGet handles GET /api/v1/orgs/{org_id}/tickets/{ticket_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		ticketID, err := uuid.Parse(chi.URLParam(r, "ticket_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid ticket ID")
			return
		}

		ticket, err := NewService(pool).Get(ctx, session.OrgID(), ticketID, session.Checker(), session.ProjectFilter())
		if err != nil {
			writeTicketError(w, r, err, "Failed to get ticket")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"ticket": ticket,
		})
	}
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/tickets
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
			apperrors.WriteBadRequest(w, r, "Ticket title is required")
			return
		}
		if req.Priority != "" && !req.Priority.IsValid() {
			apperrors.WriteBadRequest(w, r, "Invalid priority")
			return
		}
		if !session.ProjectFilter().Visible(req.ProjectID) {
			apperrors.WriteBadRequest(w, r, "Project is outside your access")
			return
		}

		ticket, err := NewService(pool).Create(ctx, session.OrgID(), CreateParams{
			ProjectID:        req.ProjectID,
			Title:            req.Title,
			Description:      req.Description,
			Priority:         req.Priority,
			OwnerMemberID:    session.MemberID(),
			AssigneeMemberID: req.AssigneeMemberID,
		})
		if err != nil {
			writeTicketError(w, r, err, "Failed to create ticket")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"ticket": ticket,
		})
	}
}

// HandleUpdate handles PATCH /api/v1/orgs/{org_id}/tickets/{ticket_id}
func HandleUpdate(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		ticketID, err := uuid.Parse(chi.URLParam(r, "ticket_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid ticket ID")
			return
		}

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Status != nil && !req.Status.IsValid() {
			apperrors.WriteBadRequest(w, r, "Invalid status")
			return
		}
		if req.Priority != nil && !req.Priority.IsValid() {
			apperrors.WriteBadRequest(w, r, "Invalid priority")
			return
		}
		if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
			apperrors.WriteBadRequest(w, r, "Ticket title is required")
			return
		}

		service := NewService(pool)
		ticket, err := service.Get(ctx, session.OrgID(), ticketID, session.Checker(), session.ProjectFilter())
		if err != nil {
			writeTicketError(w, r, err, "Failed to update ticket")
			return
		}
		if !session.Can(access.ResourceTickets, access.ActionEdit, ticket.OwnerID()) {
			apperrors.WriteAccessDenied(w, r, "Access Denied")
			return
		}

		updated, err := service.Update(ctx, session.OrgID(), ticketID, UpdateParams{
			Title:            req.Title,
			Description:      req.Description,
			Status:           req.Status,
			Priority:         req.Priority,
			AssigneeMemberID: req.AssigneeMemberID,
			Unassign:         req.Unassign,
		})
		if err != nil {
			writeTicketError(w, r, err, "Failed to update ticket")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"ticket": updated,
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}/tickets/{ticket_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := access.FromContext(ctx)

		ticketID, err := uuid.Parse(chi.URLParam(r, "ticket_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid ticket ID")
			return
		}

		service := NewService(pool)
		ticket, err := service.Get(ctx, session.OrgID(), ticketID, session.Checker(), session.ProjectFilter())
		if err != nil {
			writeTicketError(w, r, err, "Failed to delete ticket")
			return
		}
		if !session.Can(access.ResourceTickets, access.ActionDelete, ticket.OwnerID()) {
			apperrors.WriteAccessDenied(w, r, "Access Denied")
			return
		}

		if err := service.Delete(ctx, session.OrgID(), ticketID); err != nil {
			writeTicketError(w, r, err, "Failed to delete ticket")
			return
		}

		if err := auditor.LogRecordDeleted(ctx, audit.EventTicketDeleted, session.OrgID(), session.UserID(), ticket.ID, ticket.ProjectID, ticket.Title); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

func writeTicketError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrTicketNotFound):
		apperrors.WriteNotFound(w, r, "Ticket not found")
	case errors.Is(err, ErrInvalidReference):
		apperrors.WriteBadRequest(w, r, "Project or assignee not found in organization")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
