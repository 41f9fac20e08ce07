package tomoid

import (
	"regexp"
	"sort"
	"strings"
)

// PrefixRule strips the longest matching known prefix. Among prefixes of equal
// length the earlier one wins.
type PrefixRule struct {
	prefixes []string
}

// NewPrefixRule orders prefixes by descending length, keeping the given order
// for ties.
func NewPrefixRule(prefixes ...string) PrefixRule {
	ordered := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p != "" {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})
	return PrefixRule{prefixes: ordered}
}

func (PrefixRule) Name() string { return "prefix" }

func (r PrefixRule) strip(base string) (string, bool) {
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(base, prefix) {
			return base[len(prefix):], true
		}
	}
	return "", false
}

func (r PrefixRule) Extract(base string) (TomogramID, bool) {
	rest, ok := r.strip(base)
	if !ok || rest == "" {
		return "", false
	}
	return TomogramID(rest), true
}

func (r PrefixRule) Match(base string, id TomogramID) (bool, bool) {
	rest, ok := r.strip(base)
	if !ok {
		return false, false
	}
	return TomogramID(rest) == id, true
}

// BoundaryRule matches a file when the identifier is the complete trailing
// token of its base name: preceded by the start of the name, by a separator
// that itself follows a non-digit, or by a non-digit character. It never
// extracts identifiers.
type BoundaryRule struct{}

func (BoundaryRule) Name() string { return "boundary" }

func (BoundaryRule) Extract(string) (TomogramID, bool) { return "", false }

func (BoundaryRule) Match(base string, id TomogramID) (bool, bool) {
	return boundaryPattern(id).MatchString(base), true
}

func boundaryPattern(id TomogramID) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^0-9_]_?)` + regexp.QuoteMeta(string(id)) + `$`)
}

var trailingNumber = regexp.MustCompile(`(?:^|[^0-9_]_?)([0-9]+(?:_[0-9]+)*)$`)

// TrailingNumberRule extracts a numeric or compound-numeric token (digits
// optionally followed by repeated _digits) anchored at the end of the name.
type TrailingNumberRule struct{}

func (TrailingNumberRule) Name() string { return "trailing-number" }

func (TrailingNumberRule) Extract(base string) (TomogramID, bool) {
	m := trailingNumber.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	return TomogramID(m[1]), true
}

func (r TrailingNumberRule) Match(base string, id TomogramID) (bool, bool) {
	got, ok := r.Extract(base)
	if !ok {
		return false, false
	}
	return got == id, true
}
