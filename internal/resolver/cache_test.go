package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/pep440"
)

func TestCandidateCachePutGet(t *testing.T) {
	cache, err := OpenCandidateCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("OpenCandidateCache: %v", err)
	}
	defer cache.Close()

	if _, ok := cache.Get("https://pypi.org/simple", "foo"); ok {
		t.Fatal("expected miss on empty cache")
	}

	candidates := []*Candidate{
		NewCandidate("foo", pep440.MustParse("1.0"), "https://example.com/foo-1.0.tar.gz", nil, true, ""),
		NewCandidate("foo", pep440.MustParse("2.0"), "https://example.com/foo-2.0-py3-none-any.whl", nil, false, ""),
	}
	candidates[1].WithMetadataURL("https://example.com/foo-2.0-py3-none-any.whl.metadata")

	if err := cache.Put("https://pypi.org/simple", "foo", candidates); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := cache.Get("https://pypi.org/simple", "foo")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Version.String() != "1.0" || got[1].Version.String() != "2.0" {
		t.Errorf("unexpected versions: %v, %v", got[0].Version, got[1].Version)
	}

	if _, ok := cache.Get("https://pypi.org/simple", "bar"); ok {
		t.Error("expected miss for a project never cached")
	}
	if _, ok := cache.Get("https://other.example/simple", "foo"); ok {
		t.Error("expected miss for the same project under a different source")
	}
}

func TestCandidateCacheExpiry(t *testing.T) {
	cache, err := OpenCandidateCache(t.TempDir(), time.Nanosecond)
	if err != nil {
		t.Fatalf("OpenCandidateCache: %v", err)
	}
	defer cache.Close()

	candidates := []*Candidate{NewCandidate("foo", pep440.MustParse("1.0"), "https://example.com/foo-1.0.tar.gz", nil, true, "")}
	if err := cache.Put("https://pypi.org/simple", "foo", candidates); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, ok := cache.Get("https://pypi.org/simple", "foo"); ok {
		t.Error("expected entry to be expired")
	}
}

func TestPyPIProviderUsesCache(t *testing.T) {
	client := fakeHTTPClient{responses: map[string]string{
		"https://pypi.org/simple/foo/": `<a href="foo-1.0.tar.gz">foo-1.0.tar.gz</a>`,
	}}
	cache, err := OpenCandidateCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("OpenCandidateCache: %v", err)
	}
	defer cache.Close()

	p := NewPyPIProvider(client, "https://pypi.org/simple", true, true, constraints.Empty()).WithCache(cache)

	matches, err := p.FindMatches(context.Background(), "foo", nil, nil)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}

	// Remove the provider's network access entirely; the second lookup
	// must be served from the cache populated by the first.
	p.Client = fakeHTTPClient{responses: map[string]string{}}
	matches, err = p.FindMatches(context.Background(), "foo", nil, nil)
	if err != nil {
		t.Fatalf("FindMatches (cached): %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches from cache, want 1", len(matches))
	}
}
