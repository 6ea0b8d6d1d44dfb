package tool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Separator joins namespace and simple name in a fully qualified name.
const Separator = "/"

// legacySeparator is rejected everywhere; some toolkit authors still write it.
const legacySeparator = ":"

var simpleNameRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// ErrInvalidName is wrapped by every name validation failure.
var ErrInvalidName = errors.New("invalid tool name")

// ValidateSimpleName checks a tool or namespace name: lowercase alphanumeric with hyphens.
func ValidateSimpleName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if !simpleNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q (must be lowercase alphanumeric with hyphens)", ErrInvalidName, name)
	}
	return nil
}

// FullName joins name segments with the canonical separator.
func FullName(segments ...string) string {
	return strings.Join(segments, Separator)
}

// ParseName splits a fully qualified name into namespace path and simple name.
// An un-namespaced (internal) name returns an empty namespace.
func ParseName(fullName string) (namespace, name string, err error) {
	if fullName == "" {
		return "", "", fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if strings.Contains(fullName, legacySeparator) {
		return "", "", fmt.Errorf("%w: %q uses %q; the separator is %q (e.g. %q)",
			ErrInvalidName, fullName, legacySeparator, Separator,
			strings.ReplaceAll(fullName, legacySeparator, Separator))
	}

	segments := strings.Split(fullName, Separator)
	for _, segment := range segments {
		if err := ValidateSimpleName(segment); err != nil {
			return "", "", fmt.Errorf("%q: %w", fullName, err)
		}
	}

	last := len(segments) - 1
	return strings.Join(segments[:last], Separator), segments[last], nil
}
