package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup            = "user.signup"
	EventLoginFailed           = "auth.login_failed"
	EventPasswordReset         = "auth.password_reset"
	EventOrgCreated            = "org.created"
	EventRoleCreated           = "role.created"
	EventRoleUpdated           = "role.updated"
	EventRoleDeleted           = "role.deleted"
	EventMemberAdded           = "member.added"
	EventMemberAccessUpdated   = "member.access_updated"
	EventMemberRemoved         = "member.removed"
	EventOwnershipTransferred  = "member.ownership_transferred"
	EventProjectCreated        = "project.created"
	EventProjectDeleted        = "project.deleted"
	EventTicketDeleted         = "ticket.deleted"
	EventFeedbackDeleted       = "feedback.deleted"
	EventFeatureRequestDeleted = "feature_request.deleted"
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID      `db:"id"`
	OrgID       uuid.NullUUID  `db:"org_id"`
	ProjectID   uuid.NullUUID  `db:"project_id"`
	ActorUserID uuid.NullUUID  `db:"actor_user_id"`
	Action      string         `db:"action"`
	Meta        map[string]any `db:"meta"`
	CreatedAt   time.Time      `db:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	OrgID       *uuid.UUID
	ProjectID   *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]any
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (org_id, project_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := w.pool.Exec(ctx, query,
		toNullUUID(params.OrgID),
		toNullUUID(params.ProjectID),
		toNullUUID(params.ActorUserID),
		params.Action,
		metaJSON,
	)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("org_id", params.OrgID).
		Interface("project_id", params.ProjectID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// orgEvent logs an organization-level action taken by actorUserID.
func (w *Writer) orgEvent(ctx context.Context, action string, orgID, actorUserID uuid.UUID, meta map[string]any) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &actorUserID,
		Action:      action,
		Meta:        meta,
	})
}

func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta: map[string]any{
			"email": email,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]any{
			"email": email,
			"ip":    ip,
		},
	})
}

// LogPasswordReset records an operator password reset; there is no acting user.
func (w *Writer) LogPasswordReset(ctx context.Context, userID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		Action: EventPasswordReset,
		Meta: map[string]any{
			"user_id": userID.String(),
			"source":  "cli",
		},
	})
}

func (w *Writer) LogOrgCreated(ctx context.Context, orgID, userID uuid.UUID, slug string) error {
	return w.orgEvent(ctx, EventOrgCreated, orgID, userID, map[string]any{
		"slug": slug,
	})
}

func (w *Writer) LogRoleCreated(ctx context.Context, orgID, actorUserID, roleID uuid.UUID, name string) error {
	return w.orgEvent(ctx, EventRoleCreated, orgID, actorUserID, map[string]any{
		"role_id": roleID.String(),
		"name":    name,
	})
}

func (w *Writer) LogRoleUpdated(ctx context.Context, orgID, actorUserID, roleID uuid.UUID, name string) error {
	return w.orgEvent(ctx, EventRoleUpdated, orgID, actorUserID, map[string]any{
		"role_id": roleID.String(),
		"name":    name,
	})
}

func (w *Writer) LogRoleDeleted(ctx context.Context, orgID, actorUserID, roleID uuid.UUID, name string) error {
	return w.orgEvent(ctx, EventRoleDeleted, orgID, actorUserID, map[string]any{
		"role_id": roleID.String(),
		"name":    name,
	})
}

func (w *Writer) LogMemberAdded(ctx context.Context, orgID, actorUserID, memberID, targetUserID uuid.UUID, roleName string) error {
	return w.orgEvent(ctx, EventMemberAdded, orgID, actorUserID, map[string]any{
		"member_id":      memberID.String(),
		"target_user_id": targetUserID.String(),
		"role":           roleName,
	})
}

// LogMemberAccessUpdated records a role or project-restriction change.
// allowedProjectIDs is nil when the member defers to the role scope.
func (w *Writer) LogMemberAccessUpdated(ctx context.Context, orgID, actorUserID, memberID uuid.UUID, previousRole, newRole string, allowedProjectIDs []uuid.UUID) error {
	meta := map[string]any{
		"member_id":     memberID.String(),
		"previous_role": previousRole,
		"new_role":      newRole,
	}
	if allowedProjectIDs == nil {
		meta["allowed_project_ids"] = nil
	} else {
		ids := make([]string, len(allowedProjectIDs))
		for i, id := range allowedProjectIDs {
			ids[i] = id.String()
		}
		meta["allowed_project_ids"] = ids
	}
	return w.orgEvent(ctx, EventMemberAccessUpdated, orgID, actorUserID, meta)
}

func (w *Writer) LogMemberRemoved(ctx context.Context, orgID, actorUserID, memberID, targetUserID uuid.UUID, roleName string) error {
	return w.orgEvent(ctx, EventMemberRemoved, orgID, actorUserID, map[string]any{
		"member_id":      memberID.String(),
		"target_user_id": targetUserID.String(),
		"role":           roleName,
	})
}

// LogOwnershipTransferred records an operator granting owner status from the CLI.
func (w *Writer) LogOwnershipTransferred(ctx context.Context, orgID, memberID, targetUserID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		OrgID:  &orgID,
		Action: EventOwnershipTransferred,
		Meta: map[string]any{
			"member_id":      memberID.String(),
			"target_user_id": targetUserID.String(),
			"source":         "cli",
		},
	})
}

func (w *Writer) LogProjectCreated(ctx context.Context, orgID, projectID, userID uuid.UUID, slug string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ProjectID:   &projectID,
		ActorUserID: &userID,
		Action:      EventProjectCreated,
		Meta: map[string]any{
			"slug": slug,
		},
	})
}

func (w *Writer) LogProjectDeleted(ctx context.Context, orgID, projectID, userID uuid.UUID, slug string) error {
	return w.orgEvent(ctx, EventProjectDeleted, orgID, userID, map[string]any{
		"project_id": projectID.String(),
		"slug":       slug,
	})
}

// LogRecordDeleted records the deletion of a ticket, feedback item or feature
// request. projectID may be nil for unlinked records.
func (w *Writer) LogRecordDeleted(ctx context.Context, action string, orgID, actorUserID, recordID uuid.UUID, projectID *uuid.UUID, title string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ProjectID:   projectID,
		ActorUserID: &actorUserID,
		Action:      action,
		Meta: map[string]any{
			"record_id": recordID.String(),
			"title":     title,
		},
	})
}
