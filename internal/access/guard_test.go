package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAuthGuard_Transitions(t *testing.T) {
	perms := DefaultPermissions()
	session := NewSession(Snapshot{MemberID: uuid.New(), Permissions: &perms}, UnlinkedVisible)
	user := uuid.New()

	g := NewAuthGuard()
	require.Equal(t, AuthLoading, g.State())
	require.Equal(t, AuthUnauthenticated, g.Resolve(uuid.Nil, nil, nil))

	g = NewAuthGuard()
	require.Equal(t, AuthError, g.Resolve(user, nil, errors.New("db down")))
	require.Error(t, g.Err())
	require.Nil(t, g.Session())

	// Error is sticky until retried.
	require.Equal(t, AuthError, g.Resolve(user, session, nil))
	g.Retry()
	require.Equal(t, AuthLoading, g.State())
	require.NoError(t, g.Err())
	require.Equal(t, AuthAuthenticated, g.Resolve(user, session, nil))
	require.Same(t, session, g.Session())
}

func TestResolvePermission(t *testing.T) {
	me := uuid.New()
	perms := Permissions{
		Tickets:  ActionGrants{View: Allow, Edit: OwnerOnly},
		Settings: SettingsGrants{ManageRoles: true},
	}
	s := NewSession(Snapshot{MemberID: me, Permissions: &perms}, UnlinkedVisible)

	require.Equal(t, PermissionLoading, ResolvePermission(nil, Need(ResourceTickets, ActionView)))
	require.Equal(t, PermissionAllowed, ResolvePermission(s, Need(ResourceTickets, ActionView)))
	require.Equal(t, PermissionDenied, ResolvePermission(s, Need(ResourceTickets, ActionEdit)))
	require.Equal(t, PermissionAllowed, ResolvePermission(s, NeedOwned(ResourceTickets, ActionEdit)))
	require.Equal(t, PermissionDenied, ResolvePermission(s, NeedOwned(ResourceTickets, ActionDelete)))
	require.Equal(t, PermissionAllowed, ResolvePermission(s, NeedSettings(SettingsManageRoles)))
	require.Equal(t, PermissionDenied, ResolvePermission(s, NeedSettings(SettingsManageOrg)))
}

type fakeDirectory struct {
	mu    sync.Mutex
	calls int32
	snaps map[uuid.UUID]*Snapshot
	err   error
	delay time.Duration
}

func (f *fakeDirectory) LoadSnapshot(ctx context.Context, orgID, userID uuid.UUID) (*Snapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[userID]
	if !ok || snap.OrgID != orgID {
		return nil, ErrNotMember
	}
	copied := *snap
	return &copied, nil
}

type userKey struct{}

func testUserID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userKey{}).(uuid.UUID)
	return id
}

func newGuardedRouter(loader *Loader, opts SessionOptions, req Requirement, denied Denied) *chi.Mux {
	opts.UserID = testUserID
	r := chi.NewRouter()
	r.Route("/orgs/{org_id}", func(r chi.Router) {
		r.Use(RequireSession(loader, opts))
		r.With(RequirePermission(req, denied)).Get("/crm", func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()) == nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("crm"))
		})
	})
	return r
}

func doGet(h http.Handler, path string, user uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != uuid.Nil {
		req = req.WithContext(context.WithValue(req.Context(), userKey{}, user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireSession_And_RequirePermission(t *testing.T) {
	orgID := uuid.New()
	viewer := uuid.New()
	stranger := uuid.New()

	viewerPerms := Permissions{CRM: ActionGrants{View: Allow}}
	dir := &fakeDirectory{snaps: map[uuid.UUID]*Snapshot{
		viewer: {UserID: viewer, OrgID: orgID, MemberID: uuid.New(), Permissions: &viewerPerms},
	}}
	loader := NewLoader(dir, UnlinkedVisible)

	crmPath := "/orgs/" + orgID.String() + "/crm"

	t.Run("allowed", func(t *testing.T) {
		h := newGuardedRouter(loader, SessionOptions{}, Need(ResourceCRM, ActionView), Denied{})
		rec := doGet(h, crmPath, viewer)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "crm", rec.Body.String())
	})

	t.Run("denied generic panel", func(t *testing.T) {
		h := newGuardedRouter(loader, SessionOptions{}, Need(ResourceCRM, ActionCreate), Denied{})
		rec := doGet(h, crmPath, viewer)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "access_denied")
	})

	t.Run("denied redirect wins over fallback", func(t *testing.T) {
		fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		h := newGuardedRouter(loader, SessionOptions{}, Need(ResourceCRM, ActionCreate), Denied{RedirectTo: "/dashboard", Fallback: fallback})
		rec := doGet(h, crmPath, viewer)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/dashboard", rec.Header().Get("Location"))

		h = newGuardedRouter(loader, SessionOptions{}, Need(ResourceCRM, ActionCreate), Denied{Fallback: fallback})
		rec = doGet(h, crmPath, viewer)
		require.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("unauthenticated api", func(t *testing.T) {
		h := newGuardedRouter(loader, SessionOptions{}, Need(ResourceCRM, ActionView), Denied{})
		rec := doGet(h, crmPath, uuid.Nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unauthenticated page keeps location", func(t *testing.T) {
		h := newGuardedRouter(loader, SessionOptions{LoginPath: "/login"}, Need(ResourceCRM, ActionView), Denied{})
		rec := doGet(h, crmPath+"?tab=deals", uuid.Nil)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/login?next=%2Forgs%2F"+orgID.String()+"%2Fcrm%3Ftab%3Ddeals", rec.Header().Get("Location"))
	})

	t.Run("non member sees not found", func(t *testing.T) {
		h := newGuardedRouter(loader, SessionOptions{}, Need(ResourceCRM, ActionView), Denied{})
		rec := doGet(h, crmPath, stranger)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid org id", func(t *testing.T) {
		h := newGuardedRouter(loader, SessionOptions{}, Need(ResourceCRM, ActionView), Denied{})
		rec := doGet(h, "/orgs/not-a-uuid/crm", viewer)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequireSession_LoadErrorIsRetryable(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	h := newGuardedRouter(NewLoader(dir, UnlinkedVisible), SessionOptions{RetryAfterSeconds: 3}, Need(ResourceCRM, ActionView), Denied{})

	rec := doGet(h, "/orgs/"+uuid.NewString()+"/crm", uuid.New())
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "3", rec.Header().Get("Retry-After"))
}

func TestRequirePermission_WithoutSessionRendersNothing(t *testing.T) {
	h := Require(Need(ResourceCRM, ActionView))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/crm", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestLoader_SharesConcurrentLoads(t *testing.T) {
	orgID := uuid.New()
	user := uuid.New()
	perms := DefaultPermissions()
	dir := &fakeDirectory{
		delay: 50 * time.Millisecond,
		snaps: map[uuid.UUID]*Snapshot{user: {UserID: user, OrgID: orgID, MemberID: uuid.New(), Permissions: &perms}},
	}
	loader := NewLoader(dir, UnlinkedVisible)

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := loader.Load(context.Background(), orgID, user)
			require.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	require.Less(t, atomic.LoadInt32(&dir.calls), int32(len(sessions)))
	for _, s := range sessions {
		require.True(t, s.Can(ResourceDashboard, ActionView, uuid.Nil))
	}

	// Nothing is cached once the shared load finished.
	before := atomic.LoadInt32(&dir.calls)
	_, err := loader.Load(context.Background(), orgID, user)
	require.NoError(t, err)
	require.Equal(t, before+1, atomic.LoadInt32(&dir.calls))
}

func TestLoader_NotMember(t *testing.T) {
	loader := NewLoader(&fakeDirectory{snaps: map[uuid.UUID]*Snapshot{}}, UnlinkedVisible)
	_, err := loader.Load(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrNotMember)
}

func TestLoader_CancelledCallerDoesNotFailOthers(t *testing.T) {
	orgID := uuid.New()
	user := uuid.New()
	perms := DefaultPermissions()
	dir := &fakeDirectory{
		delay: 200 * time.Millisecond,
		snaps: map[uuid.UUID]*Snapshot{user: {UserID: user, OrgID: orgID, MemberID: uuid.New(), Permissions: &perms}},
	}
	loader := NewLoader(dir, UnlinkedVisible)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := loader.Load(ctx, orgID, user)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&dir.calls) == 1 }, time.Second, time.Millisecond)

	type result struct {
		session *Session
		err     error
	}
	second := make(chan result, 1)
	go func() {
		s, err := loader.Load(context.Background(), orgID, user)
		second <- result{s, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	res := <-second
	require.NoError(t, res.err)
	require.True(t, res.session.Can(ResourceDashboard, ActionView, uuid.Nil))
	require.Equal(t, int32(1), atomic.LoadInt32(&dir.calls))
}
