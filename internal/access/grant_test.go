package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPermissions_JSONWireFormat(t *testing.T) {
	perms := Permissions{
		Dashboard: DashboardGrants{View: true},
		Tickets:   ActionGrants{View: OwnerOnly, Create: Allow},
		Settings:  SettingsGrants{View: true},
	}

	raw, err := json.Marshal(perms)
	require.NoError(t, err)

	var generic map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Equal(t, "own", generic["tickets"]["view"])
	require.Equal(t, true, generic["tickets"]["create"])
	require.Equal(t, false, generic["tickets"]["edit"])
	require.Equal(t, true, generic["dashboard"]["view"])
}

func TestPermissions_JSONMissingEntriesDeny(t *testing.T) {
	var perms Permissions
	err := json.Unmarshal([]byte(`{"crm":{"view":true},"tickets":{"edit":"own","delete":null}}`), &perms)
	require.NoError(t, err)

	require.Equal(t, Allow, perms.CRM.View)
	require.Equal(t, Deny, perms.CRM.Create)
	require.Equal(t, OwnerOnly, perms.Tickets.Edit)
	require.Equal(t, Deny, perms.Tickets.Delete)
	require.Equal(t, ActionGrants{}, perms.Financials)
	require.False(t, perms.Settings.ManageRoles)
}

func TestGrant_RejectsUnknownValues(t *testing.T) {
	for _, input := range []string{`"yes"`, `1`, `"OWN"`, `{}`} {
		var g Grant
		require.Error(t, json.Unmarshal([]byte(input), &g), input)
	}
}

func TestGrant_YAML(t *testing.T) {
	var perms Permissions
	err := yaml.Unmarshal([]byte(`
tickets:
  view: own
  create: true
  edit: false
settings:
  manage_roles: true
`), &perms)
	require.NoError(t, err)
	require.Equal(t, OwnerOnly, perms.Tickets.View)
	require.Equal(t, Allow, perms.Tickets.Create)
	require.Equal(t, Deny, perms.Tickets.Edit)
	require.True(t, perms.Settings.ManageRoles)

	err = yaml.Unmarshal([]byte("crm:\n  view: maybe\n"), &perms)
	require.Error(t, err)
}
