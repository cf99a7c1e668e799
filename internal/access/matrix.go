package access

// Resource is a functional area of the application with its own permission entry.
type Resource string

const (
	ResourceDashboard  Resource = "dashboard"
	ResourceProjects   Resource = "projects"
	ResourceTickets    Resource = "tickets"
	ResourceTeam       Resource = "team"
	ResourceCRM        Resource = "crm"
	ResourceQuotes     Resource = "quotes"
	ResourceFeatures   Resource = "features"
	ResourceFeedback   Resource = "feedback"
	ResourceEmails     Resource = "emails"
	ResourceFinancials Resource = "financials"
	ResourceExpenses   Resource = "expenses"
)

// Resources lists every resource checked by Can, in matrix order.
func Resources() []Resource {
	return []Resource{
		ResourceDashboard,
		ResourceProjects,
		ResourceTickets,
		ResourceTeam,
		ResourceCRM,
		ResourceQuotes,
		ResourceFeatures,
		ResourceFeedback,
		ResourceEmails,
		ResourceFinancials,
		ResourceExpenses,
	}
}

// IsValid reports whether r belongs to the closed resource set.
func (r Resource) IsValid() bool {
	for _, known := range Resources() {
		if r == known {
			return true
		}
	}
	return false
}

// Action is an operation class checked against a resource entry.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// SettingsAction is an operation on the settings area. Settings are never owner-scoped.
type SettingsAction string

const (
	SettingsView        SettingsAction = "view"
	SettingsManageOrg   SettingsAction = "manage_org"
	SettingsManageUsers SettingsAction = "manage_users"
	SettingsManageRoles SettingsAction = "manage_roles"
)

// ActionGrants is the per-action entry for a regular resource.
type ActionGrants struct {
	View   Grant `json:"view" yaml:"view"`
	Create Grant `json:"create" yaml:"create"`
	Edit   Grant `json:"edit" yaml:"edit"`
	Delete Grant `json:"delete" yaml:"delete"`
}

func (a ActionGrants) grant(action Action) Grant {
	switch action {
	case ActionView:
		return a.View
	case ActionCreate:
		return a.Create
	case ActionEdit:
		return a.Edit
	case ActionDelete:
		return a.Delete
	default:
		return Deny
	}
}

// DashboardGrants only carries view.
type DashboardGrants struct {
	View bool `json:"view" yaml:"view"`
}

// SettingsGrants holds the strictly boolean settings entry.
type SettingsGrants struct {
	View        bool `json:"view" yaml:"view"`
	ManageOrg   bool `json:"manage_org" yaml:"manage_org"`
	ManageUsers bool `json:"manage_users" yaml:"manage_users"`
	ManageRoles bool `json:"manage_roles" yaml:"manage_roles"`
}

func (s SettingsGrants) allows(action SettingsAction) bool {
	switch action {
	case SettingsView:
		return s.View
	case SettingsManageOrg:
		return s.ManageOrg
	case SettingsManageUsers:
		return s.ManageUsers
	case SettingsManageRoles:
		return s.ManageRoles
	default:
		return false
	}
}

// Permissions is a role's permission matrix. It is total over the closed
// resource/action set: any field left unset decodes to Deny.
type Permissions struct {
	Dashboard  DashboardGrants `json:"dashboard" yaml:"dashboard"`
	Projects   ActionGrants    `json:"projects" yaml:"projects"`
	Tickets    ActionGrants    `json:"tickets" yaml:"tickets"`
	Team       ActionGrants    `json:"team" yaml:"team"`
	CRM        ActionGrants    `json:"crm" yaml:"crm"`
	Quotes     ActionGrants    `json:"quotes" yaml:"quotes"`
	Features   ActionGrants    `json:"features" yaml:"features"`
	Feedback   ActionGrants    `json:"feedback" yaml:"feedback"`
	Emails     ActionGrants    `json:"emails" yaml:"emails"`
	Financials ActionGrants    `json:"financials" yaml:"financials"`
	Expenses   ActionGrants    `json:"expenses" yaml:"expenses"`
	Settings   SettingsGrants  `json:"settings" yaml:"settings"`
}

// entry returns the action grants for a non-dashboard resource.
func (p *Permissions) entry(resource Resource) (ActionGrants, bool) {
	switch resource {
	case ResourceProjects:
		return p.Projects, true
	case ResourceTickets:
		return p.Tickets, true
	case ResourceTeam:
		return p.Team, true
	case ResourceCRM:
		return p.CRM, true
	case ResourceQuotes:
		return p.Quotes, true
	case ResourceFeatures:
		return p.Features, true
	case ResourceFeedback:
		return p.Feedback, true
	case ResourceEmails:
		return p.Emails, true
	case ResourceFinancials:
		return p.Financials, true
	case ResourceExpenses:
		return p.Expenses, true
	default:
		return ActionGrants{}, false
	}
}

// Grant returns the raw matrix value for resource/action. The dashboard entry is
// reported as Allow/Deny for view and Deny for every other action.
func (p *Permissions) Grant(resource Resource, action Action) Grant {
	if p == nil {
		return Deny
	}
	if resource == ResourceDashboard {
		if action == ActionView && p.Dashboard.View {
			return Allow
		}
		return Deny
	}
	entry, ok := p.entry(resource)
	if !ok {
		return Deny
	}
	return entry.grant(action)
}

// DefaultPermissions is the seed matrix for newly created custom roles.
func DefaultPermissions() Permissions {
	return Permissions{
		Dashboard: DashboardGrants{View: true},
		Projects:  ActionGrants{View: Allow},
		Tickets:   ActionGrants{View: Allow, Create: Allow},
		Team:      ActionGrants{View: Allow},
		CRM:       ActionGrants{},
		Quotes:    ActionGrants{},
		Emails:    ActionGrants{},
		Features:  ActionGrants{View: Allow},
		Feedback:  ActionGrants{View: Allow},
		Settings:  SettingsGrants{View: true},
	}
}

// FullPermissions grants every action on every resource.
func FullPermissions() Permissions {
	all := ActionGrants{View: Allow, Create: Allow, Edit: Allow, Delete: Allow}
	return Permissions{
		Dashboard:  DashboardGrants{View: true},
		Projects:   all,
		Tickets:    all,
		Team:       all,
		CRM:        all,
		Quotes:     all,
		Features:   all,
		Feedback:   all,
		Emails:     all,
		Financials: all,
		Expenses:   all,
		Settings:   SettingsGrants{View: true, ManageOrg: true, ManageUsers: true, ManageRoles: true},
	}
}
