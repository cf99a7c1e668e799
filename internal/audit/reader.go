package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ErrInvalidFilter is returned for audit list parameters that do not parse.
var ErrInvalidFilter = errors.New("invalid audit filter")

// Categories are the event prefixes an audit listing can be narrowed to.
var Categories = []string{"auth", "user", "org", "role", "member", "project", "ticket", "feedback", "feature_request"}

// Reader lists an organization's audit trail.
type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// Entry is one audit event with the actor resolved to their membership at
// read time. ActorMemberID and ActorRole are empty for actors who have left.
type Entry struct {
	ID            uuid.UUID      `json:"id"`
	Action        string         `json:"action"`
	ProjectID     *uuid.UUID     `json:"project_id,omitempty"`
	ActorUserID   *uuid.UUID     `json:"actor_user_id,omitempty"`
	ActorEmail    string         `json:"actor_email,omitempty"`
	ActorMemberID *uuid.UUID     `json:"actor_member_id,omitempty"`
	ActorRole     string         `json:"actor_role,omitempty"`
	Meta          map[string]any `json:"meta"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ListFilter narrows an audit listing.
type ListFilter struct {
	Category    string
	ActorUserID *uuid.UUID
	Before      *time.Time
	Limit       int
}

// ParseListFilter reads ?category=, ?actor=, ?before= (RFC 3339) and ?limit=.
func ParseListFilter(q url.Values) (ListFilter, error) {
	f := ListFilter{Limit: defaultListLimit}

	if c := q.Get("category"); c != "" {
		known := false
		for _, k := range Categories {
			if c == k {
				known = true
				break
			}
		}
		if !known {
			return f, fmt.Errorf("%w: unknown category %q", ErrInvalidFilter, c)
		}
		f.Category = c
	}
	if raw := q.Get("actor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, fmt.Errorf("%w: actor must be a user id", ErrInvalidFilter)
		}
		f.ActorUserID = &id
	}
	if raw := q.Get("before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("%w: before must be an RFC 3339 timestamp", ErrInvalidFilter)
		}
		f.Before = &ts
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("%w: limit must be a positive number", ErrInvalidFilter)
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func (f ListFilter) conditions(orgID uuid.UUID) *access.Conditions {
	conds := access.NewConditions()
	conds.Add("al.org_id = ?", orgID)
	if f.Category != "" {
		conds.Add("al.action LIKE ?", strings.ReplaceAll(f.Category, "_", `\_`)+".%")
	}
	if f.ActorUserID != nil {
		conds.Add("al.actor_user_id = ?", *f.ActorUserID)
	}
	if f.Before != nil {
		conds.Add("al.created_at < ?", *f.Before)
	}
	return conds
}

// List returns the newest events of the organization matching f.
func (r *Reader) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = defaultListLimit
	}

	conds := f.conditions(orgID)
	rows, err := r.pool.Query(ctx, `
		SELECT al.id, al.project_id, al.actor_user_id, u.email, m.id, ro.name,
		       al.action, al.meta, al.created_at
		FROM audit_log al
		LEFT JOIN users u ON u.id = al.actor_user_id
		LEFT JOIN team_members m ON m.org_id = al.org_id AND m.user_id = al.actor_user_id
		LEFT JOIN roles ro ON ro.id = m.role_id
		`+conds.Where()+`
		ORDER BY al.created_at DESC
		LIMIT `+conds.NextParam(), append(conds.Args(), f.Limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var projectID, actorUserID, actorMemberID uuid.NullUUID
		var actorEmail, actorRole *string
		var metaRaw []byte

		if err := rows.Scan(&e.ID, &projectID, &actorUserID, &actorEmail, &actorMemberID, &actorRole, &e.Action, &metaRaw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}

		if projectID.Valid {
			e.ProjectID = &projectID.UUID
		}
		if actorUserID.Valid {
			e.ActorUserID = &actorUserID.UUID
		}
		if actorMemberID.Valid {
			e.ActorMemberID = &actorMemberID.UUID
		}
		if actorEmail != nil {
			e.ActorEmail = *actorEmail
		}
		if actorRole != nil {
			e.ActorRole = *actorRole
		}

		e.Meta = map[string]any{}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &e.Meta)
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return out, nil
}
