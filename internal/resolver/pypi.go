package resolver

import (
	"context"
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/hooks"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// PyPIProvider resolves candidates from a PEP 503/691 simple index.
type PyPIProvider struct {
	BaseProvider
	Client         hooks.HTTPClient
	SdistServerURL string
	IncludeSdists  bool
	IncludeWheels  bool

	// Cache, if set, short-circuits the simple-index fetch for a
	// project already looked up within its TTL.
	Cache *CandidateCache
}

// NewPyPIProvider returns a provider pointed at sdistServerURL (e.g.
// "https://pypi.org/simple").
func NewPyPIProvider(client hooks.HTTPClient, sdistServerURL string, includeSdists, includeWheels bool, c constraints.Constraints) *PyPIProvider {
	return &PyPIProvider{
		BaseProvider:   BaseProvider{Constraints: c},
		Client:         client,
		SdistServerURL: strings.TrimRight(sdistServerURL, "/"),
		IncludeSdists:  includeSdists,
		IncludeWheels:  includeWheels,
	}
}

// WithCache enables the on-disk candidate cache for this provider.
func (p *PyPIProvider) WithCache(cache *CandidateCache) *PyPIProvider {
	p.Cache = cache
	return p
}

// getProjectCandidatesCached fetches project's unfiltered candidate list,
// consulting and populating p.Cache around the network fetch when a
// cache is configured.
func (p *PyPIProvider) getProjectCandidatesCached(ctx context.Context, project string) ([]*Candidate, error) {
	if p.Cache != nil {
		if cached, ok := p.Cache.Get(p.SdistServerURL, project); ok {
			return cached, nil
		}
	}
	raw, err := GetProjectCandidates(ctx, p.Client, p.SdistServerURL, project)
	if err != nil {
		return nil, err
	}
	if p.Cache != nil {
		if err := p.Cache.Put(p.SdistServerURL, project, raw); err != nil {
			return nil, errors.Wrapf(err, "failed to cache candidates for %s", project)
		}
	}
	return raw, nil
}

var hrefRe = regexp.MustCompile(`(?i)<a[^>]*href="([^"]+)"[^>]*>`)
var dataRequiresPythonRe = regexp.MustCompile(`(?i)data-requires-python="([^"]*)"`)

// linkEntry is one file entry off a simple index page, in either its
// PEP 691 JSON or PEP 503 HTML form: a filename/URL pair plus whatever
// metadata the index chose to advertise about it.
type linkEntry struct {
	filename           string
	url                string
	requiresPython     string
	hasMetadataSidecar bool
}

// simpleIndexJSON is the PEP 691 "project detail" response body.
type simpleIndexJSON struct {
	Files []struct {
		Filename         string      `json:"filename"`
		URL              string      `json:"url"`
		RequiresPython   string      `json:"requires-python"`
		Yanked           interface{} `json:"yanked"`
		CoreMetadata     interface{} `json:"core-metadata"`
		DistInfoMetadata interface{} `json:"dist-info-metadata"`
	} `json:"files"`
}

// hasTruthyMetadata reports whether a PEP 691 metadata field is
// present and not explicitly false: it may be a bool, a dict of hash
// algorithms, or simply absent.
func hasTruthyMetadata(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}

func parseSimpleIndexJSON(body []byte) ([]linkEntry, error) {
	var idx simpleIndexJSON
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, errors.Wrap(err, "parsing PEP 691 simple-index JSON")
	}
	out := make([]linkEntry, 0, len(idx.Files))
	for _, f := range idx.Files {
		if yanked, ok := f.Yanked.(bool); ok && yanked {
			continue
		}
		out = append(out, linkEntry{
			filename:           f.Filename,
			url:                f.URL,
			requiresPython:     f.RequiresPython,
			hasMetadataSidecar: hasTruthyMetadata(f.CoreMetadata) || hasTruthyMetadata(f.DistInfoMetadata),
		})
	}
	return out, nil
}

func parseSimpleIndexHTML(body, indexURL string) []linkEntry {
	var out []linkEntry
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil
	}
	for _, m := range hrefRe.FindAllStringSubmatch(body, -1) {
		href := m[1]
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		candidateURL := base.ResolveReference(ref).String()
		path := ref.Path
		filename := path
		if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
			filename = path[idx+1:]
		}

		entry := linkEntry{filename: filename, url: candidateURL}
		if rp := dataRequiresPythonRe.FindStringSubmatch(m[0]); rp != nil {
			entry.requiresPython = html.UnescapeString(rp[1])
		}
		entry.hasMetadataSidecar = strings.Contains(m[0], "data-dist-info-metadata") || strings.Contains(m[0], "data-core-metadata")
		out = append(out, entry)
	}
	return out
}

// GetProjectCandidates fetches the simple-index page for project and
// parses each file entry into a Candidate. It prefers the PEP 691 JSON
// form, negotiated via the client's Accept header, and falls back to
// parsing the PEP 503 HTML form when the server answers with one
// instead (most simple indexes still do).
func GetProjectCandidates(ctx context.Context, client hooks.HTTPClient, sdistServerURL, project string) ([]*Candidate, error) {
	indexURL := sdistServerURL + "/" + project + "/"
	resp, err := client.Get(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			body.Write(buf[:n])
		}
		if readErr != nil {
			break
		}
	}

	contentType := resp.Header.Get("Content-Type")
	var entries []linkEntry
	if strings.Contains(contentType, "application/vnd.pypi.simple.v1+json") || strings.Contains(contentType, "application/json") {
		entries, err = parseSimpleIndexJSON([]byte(body.String()))
		if err != nil {
			return nil, err
		}
	} else {
		entries = parseSimpleIndexHTML(body.String(), indexURL)
	}

	supportedTags := SupportedTags()
	pyEnv := reqs.DefaultEnvironment()
	runningPython := pep440.MustParse(pyEnv["python_full_version"])

	var out []*Candidate
	for _, entry := range entries {
		if entry.requiresPython != "" {
			spec, err := reqs.ParseSpecifierSet(entry.requiresPython)
			if err == nil && !spec.Contains(runningPython, true) {
				continue
			}
			// An invalid requires-python specifier is ignored rather
			// than treated as disqualifying, matching the original's
			// behavior on InvalidSpecifier.
		}

		var c *Candidate
		if strings.HasSuffix(entry.filename, ".tar.gz") || strings.HasSuffix(entry.filename, ".zip") {
			sd, err := reqs.ParseSdistFilename(entry.filename)
			if err != nil {
				continue
			}
			if len(sd.Distribution) != len(project) {
				continue
			}
			v, err := pep440.Parse(sd.Version)
			if err != nil {
				continue
			}
			c = NewCandidate(sd.Distribution, v, entry.url, nil, true, "")
		} else if strings.HasSuffix(entry.filename, ".whl") {
			w, err := reqs.ParseWheelFilename(entry.filename)
			if err != nil {
				continue
			}
			if len(w.Distribution) != len(project) {
				continue
			}
			if !wheelIsSupported(w, supportedTags) {
				continue
			}
			v, err := pep440.Parse(w.Version)
			if err != nil {
				continue
			}
			c = NewCandidate(w.Distribution, v, entry.url, nil, false, w.Build)
		} else {
			continue
		}
		if entry.hasMetadataSidecar {
			c.WithMetadataURL(entry.url + ".metadata")
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *PyPIProvider) FindMatches(ctx context.Context, identifier string, requirements []reqs.Requirement, incompatibilities []*Candidate) ([]*Candidate, error) {
	bad := badVersionSet(incompatibilities)
	allowPrerelease := p.Constraints.AllowPrerelease(identifier)

	raw, err := p.getProjectCandidatesCached(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var candidates []*Candidate
	for _, c := range raw {
		if bad[c.Version.String()] {
			continue
		}
		if !matchesAllRequirements(requirements, c.Version, allowPrerelease) {
			continue
		}
		if !p.Constraints.IsSatisfiedBy(identifier, c.Version) {
			continue
		}
		if c.IsSdist && !p.IncludeSdists {
			continue
		}
		if !c.IsSdist && !p.IncludeWheels {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		cmp := candidates[i].Version.Compare(candidates[j].Version)
		if cmp != 0 {
			return cmp > 0
		}
		return candidates[i].BuildTag > candidates[j].BuildTag
	})
	return candidates, nil
}
