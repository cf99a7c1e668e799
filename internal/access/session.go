package access

import (
	"context"

	"github.com/google/uuid"
)

// Snapshot is the member and role data a session is built from, as read from
// the store. Nil slices mean NULL columns.
type Snapshot struct {
	UserID            uuid.UUID
	OrgID             uuid.UUID
	MemberID          uuid.UUID
	IsOwner           bool
	AllowedProjectIDs []uuid.UUID
	RoleID            uuid.UUID
	RoleName          string
	RoleProjectScope  []uuid.UUID
	Permissions       *Permissions
}

// Session is the authorization context for one member of one organization.
// It is built once per request and never mutated. Every method is safe on a
// nil *Session and denies.
type Session struct {
	snapshot Snapshot
	checker  Checker
	filter   ProjectFilter
}

// NewSession derives the decision checker and project filter from snap.
func NewSession(snap Snapshot, unlinked UnlinkedPolicy) *Session {
	var perms *Permissions
	if snap.Permissions != nil {
		copied := *snap.Permissions
		perms = &copied
	}
	snap.Permissions = perms
	return &Session{
		snapshot: snap,
		checker:  Checker{MemberID: snap.MemberID, Permissions: perms},
		filter: ProjectFilter{
			Scope:    ResolveProjectScope(snap.IsOwner, snap.AllowedProjectIDs, snap.RoleProjectScope),
			Unlinked: unlinked,
		},
	}
}

func (s *Session) UserID() uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.snapshot.UserID
}

func (s *Session) OrgID() uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.snapshot.OrgID
}

func (s *Session) MemberID() uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.snapshot.MemberID
}

func (s *Session) IsOwner() bool {
	return s != nil && s.snapshot.IsOwner
}

// Checker returns the decision checker. A nil session yields a checker that denies everything.
func (s *Session) Checker() Checker {
	if s == nil {
		return Checker{}
	}
	return s.checker
}

func (s *Session) Can(resource Resource, action Action, ownerID uuid.UUID) bool {
	return s.Checker().Can(resource, action, ownerID)
}

func (s *Session) CanAny(resource Resource, action Action) bool {
	return s.Checker().CanAny(resource, action)
}

func (s *Session) CanSettings(action SettingsAction) bool {
	return s.Checker().CanSettings(action)
}

func (s *Session) IsAdmin() bool {
	return s.Checker().IsAdmin()
}

func (s *Session) CanOwn(resource Resource, ownerID uuid.UUID) bool {
	return s.Checker().CanOwn(resource, ownerID)
}

// ProjectFilter returns the list/detail filter. A nil session filters out everything.
func (s *Session) ProjectFilter() ProjectFilter {
	if s == nil {
		return ProjectFilter{Scope: RestrictedScope(nil), Unlinked: UnlinkedHidden}
	}
	return s.filter
}

func (s *Session) HasFullProjectAccess() bool {
	return s.ProjectFilter().Scope.HasFullProjectAccess()
}

// AllowedProjectIDs returns nil when the member has full project access.
func (s *Session) AllowedProjectIDs() []uuid.UUID {
	return s.ProjectFilter().Scope.AllowedProjectIDs()
}

// View is the JSON shape of a session returned to clients.
type View struct {
	UserID               uuid.UUID    `json:"user_id"`
	OrgID                uuid.UUID    `json:"org_id"`
	MemberID             uuid.UUID    `json:"member_id"`
	RoleID               uuid.UUID    `json:"role_id"`
	RoleName             string       `json:"role_name"`
	IsOwner              bool         `json:"is_owner"`
	IsAdmin              bool         `json:"is_admin"`
	Permissions          *Permissions `json:"permissions"`
	HasFullProjectAccess bool         `json:"has_full_project_access"`
	AllowedProjectIDs    []uuid.UUID  `json:"allowed_project_ids"`
}

func (s *Session) View() View {
	if s == nil {
		return View{AllowedProjectIDs: []uuid.UUID{}}
	}
	return View{
		UserID:               s.snapshot.UserID,
		OrgID:                s.snapshot.OrgID,
		MemberID:             s.snapshot.MemberID,
		RoleID:               s.snapshot.RoleID,
		RoleName:             s.snapshot.RoleName,
		IsOwner:              s.snapshot.IsOwner,
		IsAdmin:              s.IsAdmin(),
		Permissions:          s.snapshot.Permissions,
		HasFullProjectAccess: s.HasFullProjectAccess(),
		AllowedProjectIDs:    s.AllowedProjectIDs(),
	}
}

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached by RequireSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
