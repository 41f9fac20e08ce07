package tomoid

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrUnrecognizedIdentifier indicates no rule could derive an identifier.
var ErrUnrecognizedIdentifier = errors.New("unrecognized tomogram identifier")

// TomogramID is the canonical token naming one logical tomogram within a run.
type TomogramID string

func (id TomogramID) String() string { return string(id) }

// DefaultPrefixes are the filename prefixes stripped when no configuration
// overrides them.
var DefaultPrefixes = []string{"rec_Position_", "Position_"}

// Rule is one pure filename-matching strategy.
type Rule interface {
	Name() string
	// Extract derives an identifier from a base name (no directory, no
	// extension). ok is false when the rule does not apply.
	Extract(base string) (id TomogramID, ok bool)
	// Match reports whether base belongs to id. applies is false when the
	// rule has no opinion and the next rule should decide.
	Match(base string, id TomogramID) (matched, applies bool)
}

// Matcher evaluates rules in order.
type Matcher struct {
	rules []Rule
}

// NewMatcher builds a matcher from explicit rules.
func NewMatcher(rules ...Rule) *Matcher {
	kept := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule != nil {
			kept = append(kept, rule)
		}
	}
	return &Matcher{rules: kept}
}

// NewDefaultMatcher returns the standard rule chain: prefix strip, boundary
// membership, trailing-number fallback. Empty prefixes fall back to
// DefaultPrefixes.
func NewDefaultMatcher(prefixes []string) *Matcher {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	return NewMatcher(NewPrefixRule(prefixes...), BoundaryRule{}, TrailingNumberRule{})
}

// Rules returns the rule names in evaluation order.
func (m *Matcher) Rules() []string {
	names := make([]string, 0, len(m.rules))
	for _, rule := range m.rules {
		names = append(names, rule.Name())
	}
	return names
}

// Extract derives the identifier for filename. Directories and the final
// extension are ignored.
func (m *Matcher) Extract(filename string) (TomogramID, error) {
	base := BaseName(filename)
	if base == "" {
		return "", fmt.Errorf("%w: empty filename", ErrUnrecognizedIdentifier)
	}
	for _, rule := range m.rules {
		if id, ok := rule.Extract(base); ok && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnrecognizedIdentifier, filepath.Base(filename))
}

// Match reports whether filename belongs to id.
func (m *Matcher) Match(filename string, id TomogramID) bool {
	base := BaseName(filename)
	id = Normalize(string(id))
	if base == "" || id == "" {
		return false
	}
	for _, rule := range m.rules {
		if matched, applies := rule.Match(base, id); applies {
			return matched
		}
	}
	return false
}

// BaseName strips the directory and final extension from filename and
// NFC-normalizes the remainder.
func BaseName(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return norm.NFC.String(base)
}

// Normalize canonicalizes a user-supplied identifier token.
func Normalize(value string) TomogramID {
	return TomogramID(norm.NFC.String(strings.TrimSpace(value)))
}
