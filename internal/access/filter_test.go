package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type feedbackRow struct {
	title     string
	projectID *uuid.UUID
}

func TestProjectFilter_FeedbackScenario(t *testing.T) {
	p1 := uuid.New()
	p2 := uuid.New()
	rows := []feedbackRow{
		{title: "in P1", projectID: &p1},
		{title: "in P2", projectID: &p2},
		{title: "no project"},
	}

	filter := ResolveProjectScope(false, []uuid.UUID{p1}, nil)
	visible := func(policy UnlinkedPolicy) []string {
		f := ProjectFilter{Scope: filter, Unlinked: policy}
		var out []string
		for _, row := range rows {
			if f.Visible(row.projectID) {
				out = append(out, row.title)
			}
		}
		return out
	}

	require.Equal(t, []string{"in P1", "no project"}, visible(UnlinkedVisible))
	require.Equal(t, []string{"in P1"}, visible(UnlinkedHidden))
}

func TestProjectFilter_VisibleLinked(t *testing.T) {
	p1 := uuid.New()
	p2 := uuid.New()
	p3 := uuid.New()
	f := ProjectFilter{Scope: RestrictedScope([]uuid.UUID{p1})}

	require.True(t, f.VisibleLinked([]uuid.UUID{p2, p1}))
	require.False(t, f.VisibleLinked([]uuid.UUID{p2, p3}))
	require.True(t, f.VisibleLinked(nil))

	f.Unlinked = UnlinkedHidden
	require.False(t, f.VisibleLinked(nil))

	full := ProjectFilter{Scope: UnrestrictedScope(), Unlinked: UnlinkedHidden}
	require.True(t, full.VisibleLinked(nil))
	require.True(t, full.Visible(nil))
}

func TestProjectFilter_EmptyScopeHidesEverything(t *testing.T) {
	f := ProjectFilter{Scope: RestrictedScope([]uuid.UUID{}), Unlinked: UnlinkedVisible}
	p := uuid.New()

	require.True(t, f.Skip())
	require.False(t, f.Visible(nil))
	require.False(t, f.Visible(&p))
	require.False(t, f.VisibleLinked(nil))
}

func TestProjectFilter_ApplyColumn(t *testing.T) {
	orgID := uuid.New()
	p1 := uuid.New()

	full := NewConditions(orgID)
	ProjectFilter{Scope: UnrestrictedScope()}.ApplyColumn(full, "f.project_id")
	require.Equal(t, "", full.Where())
	require.Len(t, full.Args(), 1)

	c := NewConditions(orgID)
	c.Add("f.org_id = $1")
	ProjectFilter{Scope: RestrictedScope([]uuid.UUID{p1})}.ApplyColumn(c, "f.project_id")
	require.Equal(t, "WHERE f.org_id = $1 AND (f.project_id IS NULL OR f.project_id = ANY($2))", c.Where())
	require.Equal(t, []any{orgID, []uuid.UUID{p1}}, c.Args())

	hidden := NewConditions()
	ProjectFilter{Scope: RestrictedScope([]uuid.UUID{p1}), Unlinked: UnlinkedHidden}.ApplyColumn(hidden, "project_id")
	require.Equal(t, "WHERE project_id = ANY($1)", hidden.Where())

	empty := NewConditions()
	ProjectFilter{Scope: RestrictedScope(nil)}.ApplyColumn(empty, "project_id")
	require.Equal(t, "WHERE FALSE", empty.Where())
}

func TestProjectFilter_ApplyJoin(t *testing.T) {
	p1 := uuid.New()
	c := NewConditions(uuid.New())
	c.Add("fr.org_id = ?")
	require.Equal(t, "WHERE fr.org_id = $2", c.Where())

	c = NewConditions()
	ProjectFilter{Scope: RestrictedScope([]uuid.UUID{p1})}.ApplyJoin(c, "feature_request_projects", "feature_request_id", "fr.id")
	require.Equal(t,
		"WHERE (EXISTS (SELECT 1 FROM feature_request_projects jp WHERE jp.feature_request_id = fr.id AND jp.project_id = ANY($1))"+
			" OR NOT EXISTS (SELECT 1 FROM feature_request_projects jp WHERE jp.feature_request_id = fr.id))",
		c.Where())
	require.Equal(t, "$2", c.NextParam())
}

func TestChecker_ApplyOwnerView(t *testing.T) {
	me := uuid.New()

	own := Permissions{Tickets: ActionGrants{View: OwnerOnly}}
	c := NewConditions()
	require.True(t, Checker{MemberID: me, Permissions: &own}.ApplyOwnerView(c, ResourceTickets, "t.owner_member_id"))
	require.Equal(t, "WHERE t.owner_member_id = $1", c.Where())
	require.Equal(t, []any{me}, c.Args())

	full := Permissions{Tickets: ActionGrants{View: Allow}}
	c = NewConditions()
	require.True(t, Checker{MemberID: me, Permissions: &full}.ApplyOwnerView(c, ResourceTickets, "t.owner_member_id"))
	require.Equal(t, "", c.Where())

	none := Permissions{}
	require.False(t, Checker{MemberID: me, Permissions: &none}.ApplyOwnerView(NewConditions(), ResourceTickets, "t.owner_member_id"))
}

func TestProjectFilter_ApplyProjectID(t *testing.T) {
	p1 := uuid.New()
	orgID := uuid.New()

	c := NewConditions(orgID)
	c.Add("p.org_id = $1")
	ProjectFilter{Scope: RestrictedScope([]uuid.UUID{p1})}.ApplyProjectID(c, "p.id")
	require.Equal(t, "WHERE p.org_id = $1 AND p.id = ANY($2)", c.Where())

	full := NewConditions(orgID)
	ProjectFilter{Scope: UnrestrictedScope()}.ApplyProjectID(full, "p.id")
	require.Empty(t, full.Where())
}
