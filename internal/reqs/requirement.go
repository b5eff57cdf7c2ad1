package reqs

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Requirement is a parsed PEP 508 requirement: a canonical name, optional
// extras, optional direct URL, optional specifier set, and optional
// marker. Equality is textual (spec.md §3): two Requirements are == iff
// their original text is byte-identical; identity for bookkeeping purposes
// is the canonicalized name.
type Requirement struct {
	raw string

	Name       string // as written
	Extras     []string
	URL        string
	Specifier  SpecifierSet
	Marker     Marker
}

// CanonicalName returns the PEP 503 canonical form of Name.
func (r Requirement) CanonicalName() string { return Canonicalize(r.Name) }

// String returns the original requirement text.
func (r Requirement) String() string { return r.raw }

// Equal implements spec.md's "equality is textual" rule.
func (r Requirement) Equal(o Requirement) bool { return r.raw == o.raw }

// SortedExtras returns the requirement's extras, canonicalized and sorted.
func (r Requirement) SortedExtras() []string { return sortedExtras(r.Extras) }

// Parse parses a single PEP 508 requirement line. It handles the standard
// forms:
//
//	name
//	name[extra1,extra2]
//	name>=1.0,<2.0
//	name[extra] @ https://example.com/pkg.tar.gz
//	name; python_version >= "3.8"
//	name[extra]>=1.0; sys_platform == "linux"
func Parse(s string) (Requirement, error) {
	raw := strings.TrimSpace(s)
	work := raw

	var marker Marker
	if idx := strings.Index(work, ";"); idx >= 0 {
		m, err := ParseMarker(work[idx+1:])
		if err != nil {
			return Requirement{}, err
		}
		marker = m
		work = strings.TrimSpace(work[:idx])
	}

	var url string
	if idx := strings.Index(work, "@"); idx >= 0 {
		// Only treat "@" as a URL marker if what follows looks like a
		// URL/VCS ref rather than a version specifier character.
		candidate := strings.TrimSpace(work[idx+1:])
		if candidate != "" {
			url = candidate
			work = strings.TrimSpace(work[:idx])
		}
	}

	name := work
	var extrasStr, specStr string
	if idx := strings.IndexByte(work, '['); idx >= 0 {
		end := strings.IndexByte(work, ']')
		if end < idx {
			return Requirement{}, errors.Errorf("invalid requirement %q: unterminated extras", raw)
		}
		name = strings.TrimSpace(work[:idx])
		extrasStr = work[idx+1 : end]
		specStr = strings.TrimSpace(work[end+1:])
	} else {
		for i, c := range work {
			if strings.ContainsRune("=<>!~", c) {
				name = strings.TrimSpace(work[:i])
				specStr = strings.TrimSpace(work[i:])
				break
			}
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Requirement{}, errors.Errorf("invalid requirement %q: missing name", raw)
	}

	var extras []string
	if extrasStr != "" {
		for _, e := range strings.Split(extrasStr, ",") {
			e = strings.TrimSpace(e)
			if e != "" {
				extras = append(extras, e)
			}
		}
	}

	spec, err := ParseSpecifierSet(specStr)
	if err != nil {
		return Requirement{}, errors.Wrapf(err, "invalid requirement %q", raw)
	}

	return Requirement{
		raw:       raw,
		Name:      name,
		Extras:    extras,
		URL:       url,
		Specifier: spec,
		Marker:    marker,
	}, nil
}

// MustParse parses s, panicking on error. For tests and constants.
func MustParse(s string) Requirement {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// EvaluateMarker implements spec.md §4.A: returns true if req has no
// marker, or if the marker evaluates true under DefaultEnvironment
// augmented with each of parentReq.Extras ∪ extras as the "extra"
// variable in turn, canonicalizing extras before comparing.
func EvaluateMarker(parentReq, req Requirement, extras []string) bool {
	if req.Marker.IsZero() {
		return true
	}
	all := make([]string, 0, len(parentReq.Extras)+len(extras))
	all = append(all, parentReq.Extras...)
	all = append(all, extras...)
	return req.Marker.Evaluate(DefaultEnvironment(), all)
}

// SortByName sorts requirements by name, matching bootstrapper.py's
// _sort_requirements (spec.md §4.F step 10: "sort by name, recurse").
func SortByName(rs []Requirement) []Requirement {
	out := make([]Requirement, len(rs))
	copy(out, rs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
