package validation

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidSlug is returned when a slug doesn't match the required format
	ErrInvalidSlug = errors.New("invalid slug format")

	// ErrSlugTooShort is returned when a slug is too short
	ErrSlugTooShort = errors.New("slug must be at least 3 characters")

	// ErrSlugTooLong is returned when a slug is too long
	ErrSlugTooLong = errors.New("slug must be at most 64 characters")

	ErrRoleNameRequired = errors.New("role name is required")
	ErrRoleNameTooLong  = errors.New("role name must be at most 64 characters")
	ErrRoleNameInvalid  = errors.New("role name may not contain control characters")

	ErrInvalidEmail = errors.New("invalid email address")

	// slugRegex validates slug format: starts and ends with alphanumeric, can contain hyphens
	// Format: ^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$
	slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

	controlRegex = regexp.MustCompile(`[[:cntrl:]]`)
)

// ValidateSlug validates an organization or project slug:
// - Must be 3-64 characters long
// - Must start and end with lowercase alphanumeric (a-z, 0-9)
// - Can contain hyphens in the middle
// - No uppercase, no underscores, no other special characters
func ValidateSlug(slug string) error {
	slug = strings.ToLower(strings.TrimSpace(slug))

	if len(slug) < 3 {
		return ErrSlugTooShort
	}
	if len(slug) > 64 {
		return ErrSlugTooLong
	}

	if !slugRegex.MatchString(slug) {
		return ErrInvalidSlug
	}

	return nil
}

// NormalizeSlug normalizes a slug by converting to lowercase and trimming whitespace
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// NormalizeRoleName trims surrounding whitespace. Case is preserved; role
// names are compared case-sensitively.
func NormalizeRoleName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateRoleName checks a normalized role name.
func ValidateRoleName(name string) error {
	if name == "" {
		return ErrRoleNameRequired
	}
	if utf8.RuneCountInString(name) > 64 {
		return ErrRoleNameTooLong
	}
	if controlRegex.MatchString(name) {
		return ErrRoleNameInvalid
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail accepts a bare address ("a@b.c"), not a display-name form.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	return nil
}
