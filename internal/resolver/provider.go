// Package resolver implements the version/source resolver: a uniform
// Provider interface with three concrete strategies (a PyPI-style simple
// index, a generic version-source callback, and a GitHub-tags lookup
// built on the generic provider), plus a single-pass resolve driver.
//
// This plays the role golang-dep's SourceManager/bridge pairing plays for
// Go import paths, generalized to PEP 508 name+extras+specifier
// resolution against a constraint set instead of semver ranges.
package resolver

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// Provider is the uniform interface every resolution strategy
// implements.
type Provider interface {
	Identify(name string) string
	GetExtrasFor(extras []string) []string
	GetBaseRequirement(c *Candidate) reqs.Requirement
	IsSatisfiedBy(req reqs.Requirement, c *Candidate) bool
	// GetDependencies always returns nil in this core: dependency
	// expansion is the bootstrap engine's job, not the provider's.
	GetDependencies(c *Candidate) []reqs.Requirement
	FindMatches(ctx context.Context, identifier string, requirements []reqs.Requirement, incompatibilities []*Candidate) ([]*Candidate, error)
}

// BaseProvider implements the parts of Provider that are identical
// across every concrete strategy: identification, extras sorting, and
// the constraint-aware satisfaction check.
type BaseProvider struct {
	Constraints constraints.Constraints
}

func (b BaseProvider) Identify(name string) string { return reqs.Canonicalize(name) }

func (b BaseProvider) GetExtrasFor(extras []string) []string {
	out := make([]string, len(extras))
	copy(out, extras)
	sort.Strings(out)
	return out
}

func (b BaseProvider) GetBaseRequirement(c *Candidate) reqs.Requirement {
	return reqs.MustParse(c.Name + "==" + c.Version.String())
}

// IsSatisfiedBy implements P8: name match, specifier containment
// (allowing prereleases when the requirement's own specifier or the
// global constraint for this name permits them), and constraint
// acceptance.
func (b BaseProvider) IsSatisfiedBy(req reqs.Requirement, c *Candidate) bool {
	if req.CanonicalName() != c.Name {
		return false
	}
	allowPrerelease := b.Constraints.AllowPrerelease(req.Name) || req.Specifier.HasExplicitPrerelease()
	if !req.Specifier.Contains(c.Version, allowPrerelease) {
		return false
	}
	return b.Constraints.IsSatisfiedBy(req.Name, c.Version)
}

func (b BaseProvider) GetDependencies(c *Candidate) []reqs.Requirement { return nil }

func badVersionSet(incompatibilities []*Candidate) map[string]bool {
	bad := map[string]bool{}
	for _, c := range incompatibilities {
		bad[c.Version.String()] = true
	}
	return bad
}

// matchesAllRequirements reports whether every requirement's specifier
// accepts version, honoring each requirement's own prerelease allowance
// plus the provider-wide allowance.
func matchesAllRequirements(requirements []reqs.Requirement, version pep440.Version, allowPrerelease bool) bool {
	for _, r := range requirements {
		if !r.Specifier.Contains(version, allowPrerelease || r.Specifier.HasExplicitPrerelease()) {
			return false
		}
	}
	return true
}

// ResolveFromProvider resolves a single requirement against provider,
// returning its highest-preference candidate. Since GetDependencies
// always returns nil in this core, a single FindMatches pass suffices —
// there is no multi-requirement backtracking to perform.
func ResolveFromProvider(ctx context.Context, provider Provider, req reqs.Requirement) (*Candidate, error) {
	identifier := provider.Identify(req.Name)
	matches, err := provider.FindMatches(ctx, identifier, []reqs.Requirement{req}, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range matches {
		if provider.IsSatisfiedBy(req, c) {
			return c, nil
		}
	}
	return nil, errors.Errorf("unable to resolve %s", req)
}
