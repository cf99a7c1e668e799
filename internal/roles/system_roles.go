package roles

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/opsdesk/opsdesk/internal/access"
	"gopkg.in/yaml.v3"
)

const OwnerRoleName = "Owner"

//go:embed system_roles.yaml
var systemRolesYAML []byte

// SystemRole is a role definition seeded into every organization.
type SystemRole struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	FullAccess  bool               `yaml:"full_access"`
	Permissions access.Permissions `yaml:"permissions"`
}

var loadSystemRoles = sync.OnceValues(func() ([]SystemRole, error) {
	return parseSystemRoles(systemRolesYAML)
})

// SystemRoles returns the embedded system role definitions.
func SystemRoles() ([]SystemRole, error) {
	return loadSystemRoles()
}

func parseSystemRoles(data []byte) ([]SystemRole, error) {
	var defs []SystemRole
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse system roles: %w", err)
	}

	seen := make(map[string]bool, len(defs))
	hasOwner := false
	for i := range defs {
		if defs[i].Name == "" {
			return nil, fmt.Errorf("system role %d has no name", i)
		}
		if seen[defs[i].Name] {
			return nil, fmt.Errorf("duplicate system role %q", defs[i].Name)
		}
		seen[defs[i].Name] = true
		if defs[i].FullAccess {
			defs[i].Permissions = access.FullPermissions()
		}
		if defs[i].Name == OwnerRoleName {
			hasOwner = true
		}
	}
	if !hasOwner {
		return nil, fmt.Errorf("system roles must define %q", OwnerRoleName)
	}
	return defs, nil
}
