package access

import "github.com/google/uuid"

// Checker evaluates permission decisions for one acting member against one matrix.
// A Checker with a nil matrix denies everything. uuid.Nil stands for "no id".
type Checker struct {
	MemberID    uuid.UUID
	Permissions *Permissions
}

// Can reports whether the member may perform action on resource. ownerID is the
// owner of the resource instance and only matters when the matrix value is "own".
func (c Checker) Can(resource Resource, action Action, ownerID uuid.UUID) bool {
	switch c.Permissions.Grant(resource, action) {
	case Allow:
		return true
	case OwnerOnly:
		return ownerID != uuid.Nil && c.MemberID != uuid.Nil && ownerID == c.MemberID
	default:
		return false
	}
}

// CanAny reports whether the member may perform action on at least some
// instances of resource, i.e. the grant is Allow or OwnerOnly.
func (c Checker) CanAny(resource Resource, action Action) bool {
	return c.Permissions.Grant(resource, action) != Deny
}

// CanSettings is a strict boolean lookup in the settings entry.
func (c Checker) CanSettings(action SettingsAction) bool {
	if c.Permissions == nil {
		return false
	}
	return c.Permissions.Settings.allows(action)
}

// IsAdmin is equivalent to CanSettings(SettingsManageOrg).
func (c Checker) IsAdmin() bool {
	return c.CanSettings(SettingsManageOrg)
}

// CanOwn decides whether an owned instance is shown: an unrestricted view grant
// always shows it, otherwise only the owner sees it.
func (c Checker) CanOwn(resource Resource, ownerID uuid.UUID) bool {
	if c.Permissions == nil {
		return false
	}
	if c.Permissions.Grant(resource, ActionView) == Allow {
		return true
	}
	return ownerID != uuid.Nil && c.MemberID != uuid.Nil && ownerID == c.MemberID
}
