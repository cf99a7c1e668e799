package projects

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/stretchr/testify/require"
)

var errQueryIssued = errors.New("query issued")

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type fakeDB struct {
	row       fakeRow
	querySQL  string
	queryArgs []any
	execs     int
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = sql
	f.queryArgs = args
	return nil, errQueryIssued
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs++
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func projectRow(orgID, projectID, createdBy uuid.UUID) fakeRow {
	now := time.Now()
	return fakeRow{values: []any{
		projectID, orgID, "Website", "website", "",
		uuid.NullUUID{UUID: createdBy, Valid: true},
		now, now,
	}}
}

func checker(member uuid.UUID, perms access.Permissions) access.Checker {
	return access.Checker{MemberID: member, Permissions: &perms}
}

func TestService_EmptyScopeNeverQueries(t *testing.T) {
	// A nil pool proves no query is issued.
	svc := NewService(nil)
	c := checker(uuid.New(), access.FullPermissions())
	empty := access.ProjectFilter{Scope: access.RestrictedScope([]uuid.UUID{})}

	got, err := svc.List(context.Background(), uuid.New(), c, empty)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	_, err = svc.Get(context.Background(), uuid.New(), uuid.New(), c, empty)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestService_ListWithoutViewGrant(t *testing.T) {
	db := &fakeDB{}
	svc := &Service{db: db}

	got, err := svc.List(context.Background(), uuid.New(), checker(uuid.New(), access.Permissions{}), access.ProjectFilter{Scope: access.UnrestrictedScope()})
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, db.querySQL)
}

func TestService_ListOwnViewFiltersByCreator(t *testing.T) {
	db := &fakeDB{}
	svc := &Service{db: db}
	me := uuid.New()
	p1 := uuid.New()

	c := checker(me, access.Permissions{Projects: access.ActionGrants{View: access.OwnerOnly}})
	_, err := svc.List(context.Background(), uuid.New(), c, access.ProjectFilter{Scope: access.RestrictedScope([]uuid.UUID{p1})})
	require.ErrorIs(t, err, errQueryIssued)
	require.Contains(t, db.querySQL, "p.id = ANY($2) AND p.created_by_member_id = $3")
	require.Equal(t, me, db.queryArgs[2])
}

func TestService_GetOwnView(t *testing.T) {
	orgID := uuid.New()
	projectID := uuid.New()
	me := uuid.New()
	other := uuid.New()
	own := access.Permissions{Projects: access.ActionGrants{View: access.OwnerOnly}}
	scope := access.ProjectFilter{Scope: access.UnrestrictedScope()}

	svc := &Service{db: &fakeDB{row: projectRow(orgID, projectID, other)}}
	_, err := svc.Get(context.Background(), orgID, projectID, checker(me, own), scope)
	require.ErrorIs(t, err, ErrProjectNotFound)

	svc = &Service{db: &fakeDB{row: projectRow(orgID, projectID, me)}}
	project, err := svc.Get(context.Background(), orgID, projectID, checker(me, own), scope)
	require.NoError(t, err)
	require.Equal(t, projectID, project.ID)
	require.Equal(t, me, project.OwnerID())

	svc = &Service{db: &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}}
	_, err = svc.Get(context.Background(), orgID, projectID, checker(me, access.FullPermissions()), scope)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func projectRequest(method string, session *access.Session, projectID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/projects/"+projectID.String(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("project_id", projectID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(access.WithSession(ctx, session))
}

func TestHandleGet_OtherMembersProjectIsNotFound(t *testing.T) {
	orgID := uuid.New()
	projectID := uuid.New()
	perms := access.Permissions{Projects: access.ActionGrants{View: access.OwnerOnly}}
	session := access.NewSession(access.Snapshot{OrgID: orgID, MemberID: uuid.New(), Permissions: &perms}, access.UnlinkedVisible)

	rec := httptest.NewRecorder()
	handleGet(&Service{db: &fakeDB{row: projectRow(orgID, projectID, uuid.New())}})(rec, projectRequest(http.MethodGet, session, projectID))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDelete_OwnGrants(t *testing.T) {
	orgID := uuid.New()
	projectID := uuid.New()
	me := uuid.New()
	other := uuid.New()

	t.Run("own delete on another member's project", func(t *testing.T) {
		perms := access.Permissions{Projects: access.ActionGrants{View: access.Allow, Delete: access.OwnerOnly}}
		session := access.NewSession(access.Snapshot{OrgID: orgID, MemberID: me, Permissions: &perms}, access.UnlinkedVisible)
		db := &fakeDB{row: projectRow(orgID, projectID, other)}

		rec := httptest.NewRecorder()
		handleDelete(&Service{db: db}, nil)(rec, projectRequest(http.MethodDelete, session, projectID))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "access_denied")
		require.Zero(t, db.execs)
	})

	t.Run("own view hides another member's project", func(t *testing.T) {
		perms := access.Permissions{Projects: access.ActionGrants{View: access.OwnerOnly, Delete: access.Allow}}
		session := access.NewSession(access.Snapshot{OrgID: orgID, MemberID: me, Permissions: &perms}, access.UnlinkedVisible)
		db := &fakeDB{row: projectRow(orgID, projectID, other)}

		rec := httptest.NewRecorder()
		handleDelete(&Service{db: db}, nil)(rec, projectRequest(http.MethodDelete, session, projectID))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Zero(t, db.execs)
	})
}
