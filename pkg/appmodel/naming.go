package appmodel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResourceName is returned for names that cannot be used as
// container, network alias or manifest keys.
var ErrInvalidResourceName = errors.New("invalid resource name")

// ErrDuplicateResource is returned when two resources share a name.
var ErrDuplicateResource = errors.New("duplicate resource")

// MaxResourceNameLength bounds resource names
const MaxResourceNameLength = 64

// ValidateResourceName checks that name starts with an ASCII letter, contains
// only ASCII letters, digits and hyphens, has no consecutive hyphens and does
// not end with a hyphen.
func ValidateResourceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidResourceName)
	}
	if len(name) > MaxResourceNameLength {
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidResourceName, name, MaxResourceNameLength)
	}
	if !isASCIILetter(name[0]) {
		return fmt.Errorf("%w: %q must start with an ASCII letter", ErrInvalidResourceName, name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isASCIILetter(c) && !(c >= '0' && c <= '9') && c != '-' {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidResourceName, name, c)
		}
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("%w: %q contains consecutive hyphens", ErrInvalidResourceName, name)
	}
	if strings.HasSuffix(name, "-") {
		return fmt.Errorf("%w: %q ends with a hyphen", ErrInvalidResourceName, name)
	}
	return nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// VolumeName returns "<app>-<resource>-<suffix>" with characters Docker does
// not accept in volume names replaced by '_'.
func VolumeName(appName, resourceName, suffix string) string {
	parts := []string{sanitizeVolumePart(appName), sanitizeVolumePart(resourceName), sanitizeVolumePart(suffix)}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "-")
}

func sanitizeVolumePart(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isASCIILetter(c), c >= '0' && c <= '9', c == '_', c == '.', c == '-':
			sb.WriteByte(c)
		default:
			sb.WriteByte('_')
		}
	}
	out := strings.ToLower(sb.String())
	// volume names must start with a letter or digit
	return strings.TrimLeft(out, "_.-")
}
