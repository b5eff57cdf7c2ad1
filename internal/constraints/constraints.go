// Package constraints loads the user-supplied global version pins (one
// PEP 508 requirement per line) applied across an entire bootstrap run,
// independent of what any individual package declares as its own
// dependency specifiers.
package constraints

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// Constraints is an immutable set of global constraints, keyed by
// canonical package name.
type Constraints struct {
	data map[string]reqs.Requirement
}

// Empty returns a Constraints with no entries; GetConstraint always
// returns ok=false and IsSatisfiedBy always returns true.
func Empty() Constraints {
	return Constraints{data: map[string]reqs.Requirement{}}
}

// GetConstraint returns the constraint requirement for pkgName, if any.
func (c Constraints) GetConstraint(pkgName string) (reqs.Requirement, bool) {
	r, ok := c.data[reqs.Canonicalize(pkgName)]
	return r, ok
}

// AllowPrerelease reports whether pkgName's constraint, if any, pins to a
// prerelease version, which licenses the resolver to consider prereleases
// for that package even though it normally excludes them.
func (c Constraints) AllowPrerelease(pkgName string) bool {
	r, ok := c.GetConstraint(pkgName)
	if !ok {
		return false
	}
	return r.Specifier.HasExplicitPrerelease()
}

// IsSatisfiedBy reports whether version satisfies pkgName's constraint.
// A package with no constraint is always satisfied.
func (c Constraints) IsSatisfiedBy(pkgName string, version pep440.Version) bool {
	r, ok := c.GetConstraint(pkgName)
	if !ok {
		return true
	}
	return r.Specifier.Contains(version, true)
}

// Load reads a constraints file (one requirement per line, "#" starts a
// trailing comment, blank lines ignored) and returns the parsed set. A
// requirement whose own marker evaluates false against the default
// environment is dropped, matching the behavior of the loader this
// package is modeled on. An empty path returns Empty().
func Load(path string) (Constraints, error) {
	if path == "" {
		return Empty(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Constraints{}, errors.Errorf("constraints file %s does not exist", path)
		}
		return Constraints{}, errors.Wrapf(err, "opening constraints file %s", path)
	}
	defer f.Close()

	data := make(map[string]reqs.Requirement)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		req, err := reqs.Parse(line)
		if err != nil {
			return Constraints{}, errors.Wrapf(err, "parsing constraints file %s", path)
		}
		if !reqs.EvaluateMarker(req, req, nil) {
			continue
		}
		data[req.CanonicalName()] = req
	}
	if err := scanner.Err(); err != nil {
		return Constraints{}, errors.Wrapf(err, "reading constraints file %s", path)
	}
	return Constraints{data: data}, nil
}
