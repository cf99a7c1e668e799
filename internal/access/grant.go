package access

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Grant is the value stored for a resource action in a permission matrix.
// The zero value is Deny, so absent entries never grant anything.
type Grant uint8

const (
	Deny Grant = iota
	Allow
	OwnerOnly
)

// ownLiteral is the wire form of OwnerOnly.
const ownLiteral = "own"

func (g Grant) String() string {
	switch g {
	case Allow:
		return "allow"
	case OwnerOnly:
		return ownLiteral
	default:
		return "deny"
	}
}

// MarshalJSON encodes Allow/Deny as booleans and OwnerOnly as "own".
func (g Grant) MarshalJSON() ([]byte, error) {
	switch g {
	case Allow:
		return []byte("true"), nil
	case OwnerOnly:
		return json.Marshal(ownLiteral)
	default:
		return []byte("false"), nil
	}
}

// UnmarshalJSON accepts true, false, null or "own".
func (g *Grant) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := parseGrant(raw)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// UnmarshalYAML accepts the same values as UnmarshalJSON.
func (g *Grant) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := parseGrant(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*g = parsed
	return nil
}

func parseGrant(raw any) (Grant, error) {
	switch v := raw.(type) {
	case nil:
		return Deny, nil
	case bool:
		if v {
			return Allow, nil
		}
		return Deny, nil
	case string:
		if v == ownLiteral {
			return OwnerOnly, nil
		}
	}
	return Deny, fmt.Errorf("invalid permission value %v: expected true, false or %q", raw, ownLiteral)
}
