package reqs

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/pep440"
)

// SpecifierClause is a single "<op><version>" clause, e.g. ">=1.2,<2".
type SpecifierClause struct {
	Op      string
	Version pep440.Version
	raw     string
}

// SpecifierSet is a conjunction ("AND") of clauses, as PEP 440 and
// spec.md §3 define a Constraint's specifier set to be.
type SpecifierSet struct {
	clauses []SpecifierClause
}

// ParseSpecifierSet parses a comma-separated PEP 440 specifier set such as
// ">=1.0,<2.0,!=1.5".
func ParseSpecifierSet(s string) (SpecifierSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SpecifierSet{}, nil
	}
	var out SpecifierSet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseClause(part)
		if err != nil {
			return SpecifierSet{}, err
		}
		out.clauses = append(out.clauses, c)
	}
	return out, nil
}

var specOps = []string{"~=", "==", "!=", "<=", ">=", "<", ">", "==="}

func parseClause(s string) (SpecifierClause, error) {
	for _, op := range specOps {
		if strings.HasPrefix(s, op) {
			rest := strings.TrimSpace(s[len(op):])
			// Wildcard match (e.g. "==1.2.*") is treated as a prefix match
			// by stripping the wildcard before parsing; Contains special-
			// cases it back.
			trimmed := strings.TrimSuffix(rest, ".*")
			v, err := pep440.Parse(trimmed)
			if err != nil {
				return SpecifierClause{}, errors.Wrapf(err, "invalid specifier %q", s)
			}
			return SpecifierClause{Op: op, Version: v, raw: rest}, nil
		}
	}
	return SpecifierClause{}, errors.Errorf("invalid specifier clause %q", s)
}

// String renders the specifier set in its original clause order.
func (s SpecifierSet) String() string {
	parts := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		parts[i] = c.Op + c.raw
	}
	return strings.Join(parts, ",")
}

// Empty reports whether the specifier set has no clauses (matches anything).
func (s SpecifierSet) Empty() bool { return len(s.clauses) == 0 }

// HasExplicitPrerelease reports whether any clause pins to a prerelease
// version, per spec.md §3: "if it contains a prerelease pin, that package
// is allowed prereleases during resolution".
func (s SpecifierSet) HasExplicitPrerelease() bool {
	for _, c := range s.clauses {
		if c.Version.IsPrerelease() {
			return true
		}
	}
	return false
}

// Contains reports whether v satisfies every clause in the set. Prerelease
// versions are excluded unless allowPrerelease is true or the set itself
// pins a prerelease (HasExplicitPrerelease), matching packaging.specifiers'
// `contains(version, prereleases=...)` semantics used throughout
// fromager/resolver.py.
func (s SpecifierSet) Contains(v pep440.Version, allowPrerelease bool) bool {
	if v.IsPrerelease() && !allowPrerelease && !s.HasExplicitPrerelease() {
		return false
	}
	for _, c := range s.clauses {
		if !clauseMatches(c, v) {
			return false
		}
	}
	return true
}

func clauseMatches(c SpecifierClause, v pep440.Version) bool {
	cmp := v.Compare(c.Version)
	switch c.Op {
	case "==", "===":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "~=":
		// Compatible release: >= c.Version and == c.Version.release[:-1].*
		if cmp < 0 {
			return false
		}
		base := c.Version.Release()
		if len(base) == 0 {
			return false
		}
		prefix := base[:len(base)-1]
		vr := v.Release()
		if len(vr) < len(prefix) {
			return false
		}
		for i, seg := range prefix {
			if vr[i] != seg {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Filter returns the subset of versions (preserving order) that satisfy the
// specifier set, mirroring packaging.specifiers.SpecifierSet.filter used by
// the constraint-file writer (spec.md §4.G step 3).
func (s SpecifierSet) Filter(versions []pep440.Version, allowPrerelease bool) []pep440.Version {
	var out []pep440.Version
	for _, v := range versions {
		if s.Contains(v, allowPrerelease) {
			out = append(out, v)
		}
	}
	return out
}
