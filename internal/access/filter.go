package access

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// UnlinkedPolicy decides whether rows without any project association are
// visible to project-restricted members.
type UnlinkedPolicy int

const (
	UnlinkedVisible UnlinkedPolicy = iota
	UnlinkedHidden
)

// ProjectFilter is the list/detail restriction derived from a project scope.
type ProjectFilter struct {
	Scope    ProjectScope
	Unlinked UnlinkedPolicy
}

// Skip reports whether a list query must return no rows without touching the store.
func (f ProjectFilter) Skip() bool {
	return f.Scope.IsEmpty()
}

// Visible applies the filter to a row with a single, nullable project id.
func (f ProjectFilter) Visible(projectID *uuid.UUID) bool {
	if f.Scope.HasFullProjectAccess() {
		return true
	}
	if f.Scope.IsEmpty() {
		return false
	}
	if projectID == nil {
		return f.Unlinked == UnlinkedVisible
	}
	return f.Scope.Allows(*projectID)
}

// VisibleLinked applies the filter to a row linked to many projects: at least
// one linked project must be allowed. A row with no links follows the unlinked policy.
func (f ProjectFilter) VisibleLinked(projectIDs []uuid.UUID) bool {
	if f.Scope.HasFullProjectAccess() {
		return true
	}
	if f.Scope.IsEmpty() {
		return false
	}
	if len(projectIDs) == 0 {
		return f.Unlinked == UnlinkedVisible
	}
	for _, id := range projectIDs {
		if f.Scope.Allows(id) {
			return true
		}
	}
	return false
}

// ApplyColumn adds the predicate for a table with a direct project id column.
func (f ProjectFilter) ApplyColumn(c *Conditions, column string) {
	if f.Scope.HasFullProjectAccess() {
		return
	}
	if f.Scope.IsEmpty() {
		c.Add("FALSE")
		return
	}
	ids := f.Scope.AllowedProjectIDs()
	if f.Unlinked == UnlinkedVisible {
		c.Add(fmt.Sprintf("(%s IS NULL OR %s = ANY(?))", column, column), ids)
		return
	}
	c.Add(fmt.Sprintf("%s = ANY(?)", column), ids)
}

// ApplyProjectID adds the predicate for the projects table itself, where column
// is the project's own id and can never be NULL.
func (f ProjectFilter) ApplyProjectID(c *Conditions, column string) {
	if f.Scope.HasFullProjectAccess() {
		return
	}
	if f.Scope.IsEmpty() {
		c.Add("FALSE")
		return
	}
	c.Add(column+" = ANY(?)", f.Scope.AllowedProjectIDs())
}

// ApplyJoin adds the predicate for rows linked to projects through joinTable,
// where joinTable.fkColumn references idColumn of the listed row.
func (f ProjectFilter) ApplyJoin(c *Conditions, joinTable, fkColumn, idColumn string) {
	if f.Scope.HasFullProjectAccess() {
		return
	}
	if f.Scope.IsEmpty() {
		c.Add("FALSE")
		return
	}
	ids := f.Scope.AllowedProjectIDs()
	linked := fmt.Sprintf("EXISTS (SELECT 1 FROM %s jp WHERE jp.%s = %s AND jp.project_id = ANY(?))", joinTable, fkColumn, idColumn)
	if f.Unlinked == UnlinkedVisible {
		unlinked := fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s jp WHERE jp.%s = %s)", joinTable, fkColumn, idColumn)
		c.Add("("+linked+" OR "+unlinked+")", ids)
		return
	}
	c.Add(linked, ids)
}

// ApplyOwnerView restricts a list to rows owned by the member when the view
// grant for resource is "own". It returns false when the member cannot view the
// resource at all.
func (ch Checker) ApplyOwnerView(c *Conditions, resource Resource, ownerColumn string) bool {
	switch ch.Permissions.Grant(resource, ActionView) {
	case Allow:
		return true
	case OwnerOnly:
		if ch.MemberID == uuid.Nil {
			return false
		}
		c.Add(ownerColumn+" = ?", ch.MemberID)
		return true
	default:
		return false
	}
}

// Conditions accumulates AND-ed SQL predicates. Each "?" in a predicate is
// rewritten to the next positional parameter ($1, $2, ...).
type Conditions struct {
	clauses []string
	args    []any
}

// NewConditions starts a predicate list after the given number of already bound parameters.
func NewConditions(args ...any) *Conditions {
	return &Conditions{args: append([]any(nil), args...)}
}

// Add appends one predicate with its arguments.
func (c *Conditions) Add(clause string, args ...any) {
	var b strings.Builder
	next := len(c.args)
	for _, r := range clause {
		if r == '?' {
			next++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(next))
			continue
		}
		b.WriteRune(r)
	}
	c.clauses = append(c.clauses, b.String())
	c.args = append(c.args, args...)
}

// Where renders "WHERE a AND b", or an empty string when there is nothing to filter.
func (c *Conditions) Where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(c.clauses, " AND ")
}

// Args returns the positional arguments in order.
func (c *Conditions) Args() []any {
	return c.args
}

// NextParam returns the placeholder for the next positional parameter.
func (c *Conditions) NextParam() string {
	return "$" + strconv.Itoa(len(c.args)+1)
}
