package access

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// ProjectScope is the effective set of projects a member can see: either
// unrestricted, or restricted to a (possibly empty) set of project ids.
// The zero value is restricted to nothing.
type ProjectScope struct {
	unrestricted bool
	ids          map[uuid.UUID]struct{}
}

// UnrestrictedScope grants access to every project.
func UnrestrictedScope() ProjectScope {
	return ProjectScope{unrestricted: true}
}

// RestrictedScope limits access to exactly ids. An empty ids means no project access.
func RestrictedScope(ids []uuid.UUID) ProjectScope {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return ProjectScope{ids: set}
}

// ResolveProjectScope applies the override chain
// owner flag > member restriction > role restriction > unrestricted.
// A nil slice means "no restriction at this tier"; a non-nil empty slice is a
// restriction to zero projects. Tiers are never merged.
func ResolveProjectScope(isOwner bool, memberProjectIDs, roleProjectScope []uuid.UUID) ProjectScope {
	switch {
	case isOwner:
		return UnrestrictedScope()
	case memberProjectIDs != nil:
		return RestrictedScope(memberProjectIDs)
	case roleProjectScope != nil:
		return RestrictedScope(roleProjectScope)
	default:
		return UnrestrictedScope()
	}
}

// HasFullProjectAccess reports whether the scope is unrestricted.
func (s ProjectScope) HasFullProjectAccess() bool {
	return s.unrestricted
}

// AllowedProjectIDs returns nil when unrestricted, otherwise the restricted set
// in a stable order. A restricted scope with no projects returns an empty,
// non-nil slice.
func (s ProjectScope) AllowedProjectIDs() []uuid.UUID {
	if s.unrestricted {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// IsEmpty reports whether the scope grants no project at all.
func (s ProjectScope) IsEmpty() bool {
	return !s.unrestricted && len(s.ids) == 0
}

// Allows reports whether projectID is inside the scope.
func (s ProjectScope) Allows(projectID uuid.UUID) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.ids[projectID]
	return ok
}
