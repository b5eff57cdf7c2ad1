package resolver

import (
	"context"
	"sort"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// VersionSourceItem is one (url, version) pair a VersionSource yields for
// a given identifier.
type VersionSourceItem struct {
	URL     string
	Version pep440.Version
}

// VersionSource is a pure callback from an identifier to its available
// (url, version) pairs, used to adapt any version-listing mechanism
// (a git tag list, a local directory, a private index) to the Provider
// interface without writing a bespoke provider for each.
type VersionSource func(ctx context.Context, identifier string, requirements []reqs.Requirement, incompatibilities []*Candidate) ([]VersionSourceItem, error)

// GenericProvider resolves candidates from an arbitrary VersionSource,
// applying the same requirement/constraint filtering pipeline as
// PyPIProvider minus the platform-tag logic.
type GenericProvider struct {
	BaseProvider
	Source VersionSource
}

// NewGenericProvider returns a provider backed by source.
func NewGenericProvider(source VersionSource, c constraints.Constraints) *GenericProvider {
	return &GenericProvider{BaseProvider: BaseProvider{Constraints: c}, Source: source}
}

func (g *GenericProvider) FindMatches(ctx context.Context, identifier string, requirements []reqs.Requirement, incompatibilities []*Candidate) ([]*Candidate, error) {
	bad := badVersionSet(incompatibilities)
	allowPrerelease := g.Constraints.AllowPrerelease(identifier)

	items, err := g.Source(ctx, identifier, requirements, incompatibilities)
	if err != nil {
		return nil, err
	}

	var candidates []*Candidate
	for _, item := range items {
		if bad[item.Version.String()] {
			continue
		}
		if !matchesAllRequirements(requirements, item.Version, allowPrerelease) {
			continue
		}
		if !g.Constraints.IsSatisfiedBy(identifier, item.Version) {
			continue
		}
		candidates = append(candidates, NewCandidate(identifier, item.Version, item.URL, nil, false, ""))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Version.Compare(candidates[j].Version) > 0
	})
	return candidates, nil
}
