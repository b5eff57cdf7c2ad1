package resolver

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/hooks"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// Candidate is a concrete (name, version, url) selected by a provider: one
// package version available from one location, optionally an sdist
// rather than a wheel.
type Candidate struct {
	Name     string
	Version  pep440.Version
	URL      string
	Extras   []string
	IsSdist  bool
	BuildTag string

	metadataURL string // PEP 658 sidecar, if known
	metadata    []byte
	deps        []reqs.Requirement
}

// NewCandidate constructs a Candidate, canonicalizing name.
func NewCandidate(name string, version pep440.Version, url string, extras []string, isSdist bool, buildTag string) *Candidate {
	return &Candidate{
		Name:     reqs.Canonicalize(name),
		Version:  version,
		URL:      url,
		Extras:   extras,
		IsSdist:  isSdist,
		BuildTag: buildTag,
	}
}

// String renders the candidate the way its Python counterpart's __repr__
// does: "<name==version>" or "<name[extras]==version>".
func (c *Candidate) String() string {
	if len(c.Extras) == 0 {
		return fmt.Sprintf("<%s==%s>", c.Name, c.Version)
	}
	return fmt.Sprintf("<%s[%s]==%s>", c.Name, strings.Join(c.Extras, ","), c.Version)
}

// WithMetadataURL records a PEP 658 metadata sidecar URL for this
// candidate, to be preferred over downloading the whole wheel.
func (c *Candidate) WithMetadataURL(url string) *Candidate {
	c.metadataURL = url
	return c
}

// Metadata fetches (and caches) the candidate's RFC-822 METADATA content:
// the PEP 658 sidecar if one is known, falling back to downloading the
// wheel and extracting "*.dist-info/METADATA" from its zip central
// directory. sdists are not supported by this path (their metadata
// requires a build).
func (c *Candidate) Metadata(ctx context.Context, client hooks.HTTPClient) ([]byte, error) {
	if c.metadata != nil {
		return c.metadata, nil
	}
	if c.metadataURL != "" {
		resp, err := client.Get(ctx, c.metadataURL)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			defer resp.Body.Close()
			body, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				c.metadata = body
				return body, nil
			}
		}
	}
	if c.IsSdist {
		return nil, errors.Errorf("%s: cannot read metadata from an sdist without building it", c.Name)
	}
	resp, err := client.Get(ctx, c.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: downloading wheel to read metadata", c.Name)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: reading wheel body", c.Name)
	}
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: opening wheel as zip", c.Name)
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			rc, err := f.Open()
			if err != nil {
				return nil, errors.Wrapf(err, "%s: opening %s", c.Name, f.Name)
			}
			defer rc.Close()
			content, err := io.ReadAll(rc)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: reading %s", c.Name, f.Name)
			}
			c.metadata = content
			return content, nil
		}
	}
	return nil, errors.Errorf("%s: no *.dist-info/METADATA found in wheel", c.Name)
}

// Dependencies parses Requires-Dist lines from the candidate's metadata,
// keeping only those whose marker evaluates true against the candidate's
// own extras (or unconditionally, if the requirement carries no marker).
func (c *Candidate) Dependencies(ctx context.Context, client hooks.HTTPClient) ([]reqs.Requirement, error) {
	if c.deps != nil {
		return c.deps, nil
	}
	raw, err := c.Metadata(ctx, client)
	if err != nil {
		return nil, err
	}
	self := reqs.MustParse(c.Name)
	extras := c.Extras
	if len(extras) == 0 {
		extras = []string{""}
	}
	var out []reqs.Requirement
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Requires-Dist:") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, "Requires-Dist:"))
		req, err := reqs.Parse(value)
		if err != nil {
			continue
		}
		if reqs.EvaluateMarker(self, req, extras) {
			out = append(out, req)
		}
	}
	c.deps = out
	return out, nil
}

// RequiresPython returns the Requires-Python header value, if present.
func RequiresPython(raw []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Requires-Python:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Requires-Python:")), true
		}
	}
	return "", false
}
