package resolver

import (
	"context"
	"os"

	"github.com/google/go-github/v40/github"
	"golang.org/x/oauth2"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// GitHubTagProvider resolves candidates from a GitHub repository's tags,
// treating each parseable tag name as a version and the tag's tarball
// URL as the download location. It wraps GenericProvider the same way
// its Python counterpart does, supplying only the version source.
//
// GITHUB_TOKEN, if set, authenticates the client; unauthenticated
// requests are subject to GitHub's stricter anonymous rate limit.
type GitHubTagProvider struct {
	*GenericProvider
	Organization string
	Repo         string
	client       *github.Client
}

// NewGitHubTagProvider returns a provider for organization/repo.
func NewGitHubTagProvider(ctx context.Context, organization, repo string, c constraints.Constraints) *GitHubTagProvider {
	var client *github.Client
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		client = github.NewClient(nil)
	}
	p := &GitHubTagProvider{Organization: organization, Repo: repo, client: client}
	p.GenericProvider = NewGenericProvider(p.findTags, c)
	return p
}

func (p *GitHubTagProvider) findTags(ctx context.Context, identifier string, requirements []reqs.Requirement, incompatibilities []*Candidate) ([]VersionSourceItem, error) {
	var out []VersionSourceItem
	opts := &github.ListOptions{PerPage: 100}
	for {
		tags, resp, err := p.client.Repositories.ListTags(ctx, p.Organization, p.Repo, opts)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			v, err := pep440.Parse(tag.GetName())
			if err != nil {
				continue
			}
			out = append(out, VersionSourceItem{URL: tag.GetTarballURL(), Version: v})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}
