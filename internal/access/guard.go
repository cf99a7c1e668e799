package access

import (
	"errors"

	"github.com/google/uuid"
)

// AuthState is the state of the authentication guard for a protected route.
type AuthState int

const (
	AuthLoading AuthState = iota
	AuthError
	AuthAuthenticated
	AuthUnauthenticated
)

func (s AuthState) String() string {
	switch s {
	case AuthLoading:
		return "loading"
	case AuthError:
		return "error"
	case AuthAuthenticated:
		return "authenticated"
	case AuthUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// AuthGuard moves from Loading to Error, Authenticated or Unauthenticated.
// Error is left only through Retry, which returns to Loading.
type AuthGuard struct {
	state   AuthState
	err     error
	session *Session
}

// NewAuthGuard returns a guard in the Loading state.
func NewAuthGuard() *AuthGuard {
	return &AuthGuard{state: AuthLoading}
}

func (g *AuthGuard) State() AuthState { return g.state }
func (g *AuthGuard) Err() error       { return g.err }
func (g *AuthGuard) Session() *Session {
	if g.state != AuthAuthenticated {
		return nil
	}
	return g.session
}

// Resolve records the outcome of a load. It has no effect unless the guard is Loading.
// A missing user id means no valid sign-in; a load error other than
// ErrNotMember moves to Error.
func (g *AuthGuard) Resolve(userID uuid.UUID, session *Session, err error) AuthState {
	if g.state != AuthLoading {
		return g.state
	}
	switch {
	case userID == uuid.Nil:
		g.state = AuthUnauthenticated
	case err != nil && !errors.Is(err, ErrNotMember):
		g.state = AuthError
		g.err = err
	case session == nil:
		g.state = AuthUnauthenticated
	default:
		g.state = AuthAuthenticated
		g.session = session
	}
	return g.state
}

// Retry clears an error and reloads.
func (g *AuthGuard) Retry() {
	if g.state != AuthError {
		return
	}
	g.state = AuthLoading
	g.err = nil
}

// PermissionState is the state of a permission guard.
type PermissionState int

const (
	PermissionLoading PermissionState = iota
	PermissionDenied
	PermissionAllowed
)

func (s PermissionState) String() string {
	switch s {
	case PermissionLoading:
		return "loading"
	case PermissionDenied:
		return "denied"
	case PermissionAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Requirement is what a permission guard checks. When Settings is set the
// settings entry is checked and Resource/Action are ignored.
type Requirement struct {
	Resource Resource
	Action   Action
	Settings SettingsAction

	// OwnerAware lets an "own" grant pass the route-level check. The instance
	// check with the real owner id is then done by the handler.
	OwnerAware bool
}

// Need builds a strict resource requirement.
func Need(resource Resource, action Action) Requirement {
	return Requirement{Resource: resource, Action: action}
}

// NeedOwned builds a requirement satisfied by Allow or "own".
func NeedOwned(resource Resource, action Action) Requirement {
	return Requirement{Resource: resource, Action: action, OwnerAware: true}
}

// NeedSettings builds a settings requirement.
func NeedSettings(action SettingsAction) Requirement {
	return Requirement{Settings: action}
}

func (r Requirement) String() string {
	if r.Settings != "" {
		return "settings." + string(r.Settings)
	}
	return string(r.Resource) + "." + string(r.Action)
}

// ResolvePermission evaluates req against s. A nil session is still Loading.
func ResolvePermission(s *Session, req Requirement) PermissionState {
	if s == nil {
		return PermissionLoading
	}
	var ok bool
	switch {
	case req.Settings != "":
		ok = s.CanSettings(req.Settings)
	case req.OwnerAware:
		ok = s.CanAny(req.Resource, req.Action)
	default:
		ok = s.Can(req.Resource, req.Action, uuid.Nil)
	}
	if ok {
		return PermissionAllowed
	}
	return PermissionDenied
}
