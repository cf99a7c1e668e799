package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/app"
	"github.com/opsdesk/opsdesk/internal/auth"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/members"
	"github.com/opsdesk/opsdesk/internal/retention"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, pool *pgxpool.Pool, unlinkedVisible bool) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Env:                 "dev",
		HTTPAddr:            ":0",
		BaseURL:             "http://localhost",
		DBDSN:               "unused",
		JWTSecret:           "test-secret",
		LogLevel:            "error",
		SessionDays:         7,
		LoginRateLimit:      100,
		AuditRetentionDays:  180,
		UnlinkedRowsVisible: unlinkedVisible,
	}

	loader := access.NewLoader(members.NewDirectory(pool), app.UnlinkedPolicy(cfg))
	srv := httptest.NewServer(app.NewRouter(pool, loader, cfg))
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiClient is one signed-in browser: a cookie jar plus the CSRF token echoed on writes.
type apiClient struct {
	t       *testing.T
	baseURL string
	http    *http.Client
	csrf    string
}

func newClient(t *testing.T, srv *httptest.Server) *apiClient {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &apiClient{t: t, baseURL: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *apiClient) do(method, path string, payload any) (int, envelope) {
	c.t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.csrf != "" {
		req.Header.Set(auth.CSRFHeaderName, c.csrf)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var env envelope
	require.NoError(c.t, json.Unmarshal(raw, &env), "body: %s", string(raw))
	return resp.StatusCode, env
}

func (c *apiClient) expect(method, path string, payload any, wantStatus int, out any) envelope {
	c.t.Helper()
	status, env := c.do(method, path, payload)
	require.Equal(c.t, wantStatus, status, "%s %s: %+v", method, path, env.Error)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(env.Data, out))
	}
	return env
}

func (c *apiClient) signup(email string) uuid.UUID {
	c.t.Helper()
	var resp auth.SessionResponse
	c.expect(http.MethodPost, "/api/v1/auth/signup", map[string]any{
		"email":    email,
		"password": "password123",
	}, http.StatusCreated, &resp)
	c.csrf = resp.CSRFToken
	return resp.UserID
}

type idOnly struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// tenant is an organization with two projects, created by its owner.
type tenant struct {
	owner    *apiClient
	orgPath  string
	roles    map[string]uuid.UUID
	project1 uuid.UUID
	project2 uuid.UUID
}

func setupTenant(t *testing.T, srv *httptest.Server) *tenant {
	t.Helper()

	owner := newClient(t, srv)
	owner.signup("owner@example.com")

	var created struct {
		Org idOnly `json:"org"`
	}
	owner.expect(http.MethodPost, "/api/v1/orgs", map[string]any{"name": "Acme", "slug": "acme"}, http.StatusCreated, &created)
	tn := &tenant{owner: owner, orgPath: "/api/v1/orgs/" + created.Org.ID.String(), roles: map[string]uuid.UUID{}}

	var roleList struct {
		Roles []idOnly `json:"roles"`
	}
	owner.expect(http.MethodGet, tn.orgPath+"/roles", nil, http.StatusOK, &roleList)
	for _, r := range roleList.Roles {
		tn.roles[r.Name] = r.ID
	}

	var p struct {
		Project idOnly `json:"project"`
	}
	owner.expect(http.MethodPost, tn.orgPath+"/projects", map[string]any{"name": "Website", "slug": "website"}, http.StatusCreated, &p)
	tn.project1 = p.Project.ID
	owner.expect(http.MethodPost, tn.orgPath+"/projects", map[string]any{"name": "Mobile", "slug": "mobile"}, http.StatusCreated, &p)
	tn.project2 = p.Project.ID

	return tn
}

// addMember signs up a new user and adds them to the tenant with roleID.
func (tn *tenant) addMember(t *testing.T, srv *httptest.Server, email string, roleID uuid.UUID, allowed []uuid.UUID) (*apiClient, uuid.UUID) {
	t.Helper()
	client := newClient(t, srv)
	client.signup(email)

	var added struct {
		Member idOnly `json:"member"`
	}
	tn.owner.expect(http.MethodPost, tn.orgPath+"/members", map[string]any{
		"email":               email,
		"role_id":             roleID,
		"allowed_project_ids": allowed,
	}, http.StatusCreated, &added)
	return client, added.Member.ID
}

func TestE2E_OrgCreationSeedsSystemRoles(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool, true)

	tn := setupTenant(t, srv)

	names := make([]string, 0, len(tn.roles))
	for name := range tn.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"Admin", "Member", "Owner", "Viewer"}, names)

	var session struct {
		Session access.View `json:"session"`
	}
	tn.owner.expect(http.MethodGet, tn.orgPath+"/session", nil, http.StatusOK, &session)
	require.True(t, session.Session.IsOwner)
	require.True(t, session.Session.HasFullProjectAccess)
	require.Nil(t, session.Session.AllowedProjectIDs)
}

func TestE2E_ScopedFeedbackListing(t *testing.T) {
	for _, tc := range []struct {
		name            string
		unlinkedVisible bool
		want            []string
	}{
		{"unlinked visible", true, []string{"about website", "general"}},
		{"unlinked hidden", false, []string{"about website"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pool, cleanup := newTestDB(t)
			t.Cleanup(cleanup)
			srv := newTestServer(t, pool, tc.unlinkedVisible)
			tn := setupTenant(t, srv)

			for _, fb := range []struct {
				title   string
				project *uuid.UUID
			}{
				{"about website", &tn.project1},
				{"about mobile", &tn.project2},
				{"general", nil},
			} {
				tn.owner.expect(http.MethodPost, tn.orgPath+"/feedback", map[string]any{
					"title":      fb.title,
					"project_id": fb.project,
				}, http.StatusCreated, nil)
			}

			reader, _ := tn.addMember(t, srv, "reader@example.com", tn.roles["Viewer"], []uuid.UUID{tn.project1})

			var list struct {
				Feedback []struct {
					ID    uuid.UUID `json:"id"`
					Title string    `json:"title"`
				} `json:"feedback"`
			}
			reader.expect(http.MethodGet, tn.orgPath+"/feedback", nil, http.StatusOK, &list)

			var titles []string
			for _, item := range list.Feedback {
				titles = append(titles, item.Title)
			}
			sort.Strings(titles)
			require.Equal(t, tc.want, titles)

			// The owner is never restricted.
			tn.owner.expect(http.MethodGet, tn.orgPath+"/feedback", nil, http.StatusOK, &list)
			require.Len(t, list.Feedback, 3)
		})
	}
}

func TestE2E_EmptyProjectRestrictionHidesEverything(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool, true)
	tn := setupTenant(t, srv)

	tn.owner.expect(http.MethodPost, tn.orgPath+"/feedback", map[string]any{"title": "general"}, http.StatusCreated, nil)
	locked, _ := tn.addMember(t, srv, "locked@example.com", tn.roles["Viewer"], []uuid.UUID{})

	var list struct {
		Feedback []json.RawMessage `json:"feedback"`
	}
	locked.expect(http.MethodGet, tn.orgPath+"/feedback", nil, http.StatusOK, &list)
	require.Empty(t, list.Feedback)

	var projectList struct {
		Projects []json.RawMessage `json:"projects"`
	}
	locked.expect(http.MethodGet, tn.orgPath+"/projects", nil, http.StatusOK, &projectList)
	require.Empty(t, projectList.Projects)

	locked.expect(http.MethodGet, tn.orgPath+"/projects/"+tn.project1.String(), nil, http.StatusNotFound, nil)
}

func TestE2E_RoleDeletionGuards(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool, true)
	tn := setupTenant(t, srv)

	status, env := tn.owner.do(http.MethodDelete, tn.orgPath+"/roles/"+tn.roles["Viewer"].String(), nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, `cannot delete system role "Viewer"`, env.Error.Message)

	var created struct {
		Role idOnly `json:"role"`
	}
	tn.owner.expect(http.MethodPost, tn.orgPath+"/roles", map[string]any{"name": "Support"}, http.StatusCreated, &created)
	supportID := created.Role.ID

	member, memberID := tn.addMember(t, srv, "support@example.com", supportID, nil)

	status, env = tn.owner.do(http.MethodDelete, tn.orgPath+"/roles/"+supportID.String(), nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, `role "Support" is assigned to 1 team member(s)`, env.Error.Message)

	// A member without settings.manage_roles is stopped by the route guard.
	status, env = member.do(http.MethodDelete, tn.orgPath+"/roles/"+supportID.String(), nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "access_denied", env.Error.Code)

	tn.owner.expect(http.MethodDelete, tn.orgPath+"/members/"+memberID.String(), nil, http.StatusOK, nil)
	tn.owner.expect(http.MethodDelete, tn.orgPath+"/roles/"+supportID.String(), nil, http.StatusOK, nil)
	tn.owner.expect(http.MethodGet, tn.orgPath+"/roles/"+supportID.String(), nil, http.StatusNotFound, nil)
}

func TestE2E_OwnTicketsOnly(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool, true)
	tn := setupTenant(t, srv)

	var created struct {
		Role idOnly `json:"role"`
	}
	tn.owner.expect(http.MethodPost, tn.orgPath+"/roles", map[string]any{
		"name": "Agent",
		"permissions": map[string]any{
			"tickets": map[string]any{"view": "own", "create": true, "edit": "own"},
		},
	}, http.StatusCreated, &created)

	agent, _ := tn.addMember(t, srv, "agent@example.com", created.Role.ID, nil)

	var ownerTicket struct {
		Ticket idOnly `json:"ticket"`
	}
	tn.owner.expect(http.MethodPost, tn.orgPath+"/tickets", map[string]any{"title": "owner's"}, http.StatusCreated, &ownerTicket)

	var agentTicket struct {
		Ticket idOnly `json:"ticket"`
	}
	agent.expect(http.MethodPost, tn.orgPath+"/tickets", map[string]any{"title": "agent's"}, http.StatusCreated, &agentTicket)

	var list struct {
		Tickets []struct {
			Title string `json:"title"`
		} `json:"tickets"`
	}
	agent.expect(http.MethodGet, tn.orgPath+"/tickets", nil, http.StatusOK, &list)
	require.Len(t, list.Tickets, 1)
	require.Equal(t, "agent's", list.Tickets[0].Title)

	agent.expect(http.MethodGet, tn.orgPath+"/tickets/"+ownerTicket.Ticket.ID.String(), nil, http.StatusNotFound, nil)
	agent.expect(http.MethodPatch, tn.orgPath+"/tickets/"+agentTicket.Ticket.ID.String(), map[string]any{"status": "resolved"}, http.StatusOK, nil)
}

func TestE2E_AuditRetention(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	srv := newTestServer(t, pool, true)
	setupTenant(t, srv)

	ctx := context.Background()
	_, err := pool.Exec(ctx, `UPDATE audit_log SET created_at = NOW() - INTERVAL '400 days' WHERE action = 'user.signup'`)
	require.NoError(t, err)

	deleted, err := retention.PruneAuditLog(ctx, pool, 180)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log WHERE action = 'user.signup'`).Scan(&remaining))
	require.Zero(t, remaining)
}
