package resolver

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

type fakeHTTPClient struct {
	responses map[string]string
}

func (f fakeHTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	body, ok := f.responses[url]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestBaseProviderIsSatisfiedBy(t *testing.T) {
	b := BaseProvider{Constraints: constraints.Empty()}
	c := NewCandidate("foo", pep440.MustParse("1.2.3"), "https://example.com/foo-1.2.3.tar.gz", nil, true, "")
	req := reqs.MustParse("foo>=1.0,<2.0")
	if !b.IsSatisfiedBy(req, c) {
		t.Error("expected candidate to satisfy requirement")
	}
	reqHigh := reqs.MustParse("foo>=2.0")
	if b.IsSatisfiedBy(reqHigh, c) {
		t.Error("did not expect candidate to satisfy foo>=2.0")
	}
}

func TestPyPIProviderFindMatches(t *testing.T) {
	index := `
<!DOCTYPE html>
<html><body>
<a href="https://files.example.com/foo-1.0.0.tar.gz">foo-1.0.0.tar.gz</a>
<a href="https://files.example.com/foo-1.2.0-py3-none-any.whl">foo-1.2.0-py3-none-any.whl</a>
<a href="https://files.example.com/foo-2.0.0.tar.gz">foo-2.0.0.tar.gz</a>
</body></html>
`
	client := fakeHTTPClient{responses: map[string]string{
		"https://pypi.test/simple/foo/": index,
	}}
	p := NewPyPIProvider(client, "https://pypi.test/simple", true, true, constraints.Empty())

	req := reqs.MustParse("foo>=1.0,<2.0")
	matches, err := p.FindMatches(context.Background(), "foo", []reqs.Requirement{req}, nil)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (1.0.0 and 1.2.0, not 2.0.0): %v", len(matches), matches)
	}
	if matches[0].Version.String() != "1.2.0" {
		t.Errorf("matches[0] = %s, want descending order starting at 1.2.0", matches[0].Version)
	}
}

func TestResolveFromProviderPicksHighest(t *testing.T) {
	index := `<a href="https://files.example.com/bar-1.0.0.tar.gz">bar-1.0.0.tar.gz</a>
<a href="https://files.example.com/bar-1.5.0.tar.gz">bar-1.5.0.tar.gz</a>`
	client := fakeHTTPClient{responses: map[string]string{"https://pypi.test/simple/bar/": index}}
	p := NewPyPIProvider(client, "https://pypi.test/simple", true, true, constraints.Empty())

	c, err := ResolveFromProvider(context.Background(), p, reqs.MustParse("bar"))
	if err != nil {
		t.Fatalf("ResolveFromProvider: %v", err)
	}
	if c.Version.String() != "1.5.0" {
		t.Errorf("resolved %s, want 1.5.0", c.Version)
	}
}

func TestGenericProviderFiltering(t *testing.T) {
	source := func(ctx context.Context, identifier string, requirements []reqs.Requirement, incompatibilities []*Candidate) ([]VersionSourceItem, error) {
		return []VersionSourceItem{
			{URL: "u1", Version: pep440.MustParse("1.0")},
			{URL: "u2", Version: pep440.MustParse("2.0")},
		}, nil
	}
	g := NewGenericProvider(source, constraints.Empty())
	matches, err := g.FindMatches(context.Background(), "pkg", []reqs.Requirement{reqs.MustParse("pkg<2.0")}, nil)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Version.String() != "1.0" {
		t.Errorf("matches = %v", matches)
	}
}

func TestCandidateDependenciesFiltersMarkers(t *testing.T) {
	metadata := "Metadata-Version: 2.1\nName: foo\nRequires-Dist: bar\nRequires-Dist: baz; extra == \"opt\"\nRequires-Dist: qux; extra == \"other\"\n"
	client := fakeHTTPClient{responses: map[string]string{"https://example.com/foo-1.0-py3-none-any.whl.metadata": metadata}}
	c := NewCandidate("foo", pep440.MustParse("1.0"), "https://example.com/foo-1.0-py3-none-any.whl", []string{"opt"}, false, "")
	c.WithMetadataURL("https://example.com/foo-1.0-py3-none-any.whl.metadata")
	deps, err := c.Dependencies(context.Background(), client)
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	names := map[string]bool{}
	for _, d := range deps {
		names[d.CanonicalName()] = true
	}
	if !names["bar"] || !names["baz"] || names["qux"] {
		t.Errorf("deps = %v", deps)
	}
}
