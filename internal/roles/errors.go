package roles

import (
	"errors"
	"fmt"
)

var (
	ErrRoleNotFound     = errors.New("role not found")
	ErrRoleNameConflict = errors.New("role name already exists")

	// ErrSystemRole matches every *SystemRoleError.
	ErrSystemRole = errors.New("system role")

	// ErrRoleInUse matches every *RoleInUseError.
	ErrRoleInUse = errors.New("role is in use")
)

// SystemRoleError is returned when a system role would be deleted or changed.
type SystemRoleError struct {
	Name string
	Op   string
}

func (e *SystemRoleError) Error() string {
	return fmt.Sprintf("cannot %s system role %q", e.Op, e.Name)
}

func (e *SystemRoleError) Is(target error) bool {
	return target == ErrSystemRole
}

// RoleInUseError is returned when a role still assigned to members would be deleted.
type RoleInUseError struct {
	Name    string
	Members int
}

func (e *RoleInUseError) Error() string {
	return fmt.Sprintf("role %q is assigned to %d team member(s)", e.Name, e.Members)
}

func (e *RoleInUseError) Is(target error) bool {
	return target == ErrRoleInUse
}
