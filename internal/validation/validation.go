// Package validation canonicalizes the user-supplied identifiers that end up
// as filesystem locations: signal paths and telemetry contexts.
//
// Identifiers are validated, never repaired: a path containing anything outside
// its allow-list is rejected as a whole instead of having characters stripped,
// so "a..b", "../etc" or "nav/../../x" can never collapse into a different,
// valid-looking location.
package validation

import (
	"fmt"
	"strings"

	"github.com/xtxerr/logbook/internal/errors"
)

// =============================================================================
// Segment Rules
// =============================================================================

// SegmentRules defines the validation rules for one dot-separated segment.
type SegmentRules struct {
	MinLength    int
	MaxLength    int
	AllowHyphens bool
	AllowColons  bool
}

// PathSegmentRules returns the rules for signal path segments:
// ASCII letters, digits and underscores only.
func PathSegmentRules() SegmentRules {
	return SegmentRules{
		MinLength: 1,
		MaxLength: 255,
	}
}

// ContextIDRules returns the rules for the identifier part of a context,
// which carries URNs such as urn:mrn:signalk:uuid:c0d79334-4e25-4245-8892-54e8ccc8021d.
func ContextIDRules() SegmentRules {
	return SegmentRules{
		MinLength:    1,
		MaxLength:    255,
		AllowHyphens: true,
		AllowColons:  true,
	}
}

// MaxPathLength bounds a full dotted signal path.
const MaxPathLength = 1024

// ValidateSegment validates one segment according to the given rules.
func ValidateSegment(segment string, rules SegmentRules) error {
	if len(segment) < rules.MinLength {
		return fmt.Errorf("segment too short: minimum %d characters required", rules.MinLength)
	}
	if len(segment) > rules.MaxLength {
		return fmt.Errorf("segment too long: maximum %d characters allowed", rules.MaxLength)
	}

	for i := 0; i < len(segment); i++ {
		if !isAllowedSegmentChar(segment[i], rules) {
			return fmt.Errorf("invalid character %q at position %d", segment[i], i)
		}
	}

	return nil
}

func isAllowedSegmentChar(c byte, rules SegmentRules) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return true
	case c == '-':
		return rules.AllowHyphens
	case c == ':':
		return rules.AllowColons
	}
	return false
}

// =============================================================================
// Signal Paths
// =============================================================================

// ParseSignalPath validates a dotted signal path such as
// navigation.speedOverGround and returns its segments.
func ParseSignalPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path: %w", errors.ErrInvalidPath)
	}
	if len(path) > MaxPathLength {
		return nil, fmt.Errorf("path longer than %d characters: %w", MaxPathLength, errors.ErrInvalidPath)
	}

	segments := strings.Split(path, ".")
	rules := PathSegmentRules()
	for i, seg := range segments {
		if err := ValidateSegment(seg, rules); err != nil {
			return nil, fmt.Errorf("path %q segment %d: %v: %w", path, i, err, errors.ErrInvalidPath)
		}
	}

	return segments, nil
}

// =============================================================================
// Contexts
// =============================================================================

// Context is a parsed telemetry context such as vessels.self.
type Context struct {
	Group string
	ID    string
}

// ParseContext validates a context of the form group.id.
// The group follows path segment rules; the id may contain colons and hyphens.
func ParseContext(ctx string) (*Context, error) {
	group, id, ok := strings.Cut(ctx, ".")
	if !ok {
		return nil, fmt.Errorf("context %q: expected 'group.id': %w", ctx, errors.ErrInvalidContext)
	}

	if err := ValidateSegment(group, PathSegmentRules()); err != nil {
		return nil, fmt.Errorf("context %q group: %v: %w", ctx, err, errors.ErrInvalidContext)
	}
	if err := ValidateSegment(id, ContextIDRules()); err != nil {
		return nil, fmt.Errorf("context %q id: %v: %w", ctx, err, errors.ErrInvalidContext)
	}

	return &Context{Group: group, ID: id}, nil
}

// String returns the dotted form of the context.
func (c *Context) String() string {
	return c.Group + "." + c.ID
}

// DirName returns the id as used for a directory name: colons become underscores.
func (c *Context) DirName() string {
	return strings.ReplaceAll(c.ID, ":", "_")
}

// ContextIDFromDirName reverses DirName for URN identifiers. Other names are
// returned unchanged.
func ContextIDFromDirName(name string) string {
	if strings.HasPrefix(name, "urn_") {
		return strings.ReplaceAll(name, "_", ":")
	}
	return name
}

// =============================================================================
// SQL Escaping
// =============================================================================

// QuoteIdentifier returns s as a double-quoted SQL identifier.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteLiteral returns s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
