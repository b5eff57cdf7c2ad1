package reqs

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// WheelFilename is a parsed PEP 427/PEP 425 wheel filename:
//
//	{distribution}-{version}(-{build})?-{python}-{abi}-{platform}.whl
type WheelFilename struct {
	Distribution string
	Version      string
	Build        string // empty if absent
	PythonTag    string
	ABITag       string
	PlatformTag  string
	raw          string
}

// String returns the original filename.
func (w WheelFilename) String() string { return w.raw }

// CanonicalName returns the PEP 503 canonical distribution name.
func (w WheelFilename) CanonicalName() string { return Canonicalize(w.Distribution) }

var wheelRe = regexp.MustCompile(`^([^-]+)-([^-]+)(?:-([^-]+))?-([^-]+)-([^-]+)-([^-]+)\.whl$`)

// ParseWheelFilename parses a wheel filename into its components.
func ParseWheelFilename(name string) (WheelFilename, error) {
	base := name
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	m := wheelRe.FindStringSubmatch(base)
	if m == nil {
		return WheelFilename{}, errors.Errorf("invalid wheel filename %q", name)
	}
	return WheelFilename{
		Distribution: m[1],
		Version:      m[2],
		Build:        m[3],
		PythonTag:    m[4],
		ABITag:       m[5],
		PlatformTag:  m[6],
		raw:          name,
	}, nil
}

// SdistFilename is a parsed source-distribution filename, either the
// legacy "{name}-{version}.tar.gz" form or the PEP 625-normalized
// "{name}-{version}.tar.gz" with a canonicalized distribution name.
type SdistFilename struct {
	Distribution string
	Version      string
	Ext          string
	raw          string
}

// String returns the original filename.
func (s SdistFilename) String() string { return s.raw }

// CanonicalName returns the PEP 503 canonical distribution name.
func (s SdistFilename) CanonicalName() string { return Canonicalize(s.Distribution) }

var sdistExts = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".zip", ".tgz"}

// ParseSdistFilename parses a source distribution filename of the form
// "{name}-{version}{ext}" per PEP 625.
func ParseSdistFilename(name string) (SdistFilename, error) {
	base := name
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	var ext string
	stem := base
	for _, e := range sdistExts {
		if strings.HasSuffix(base, e) {
			ext = e
			stem = strings.TrimSuffix(base, e)
			break
		}
	}
	if ext == "" {
		return SdistFilename{}, errors.Errorf("invalid sdist filename %q: unrecognized extension", name)
	}
	idx := strings.LastIndexByte(stem, '-')
	if idx <= 0 {
		return SdistFilename{}, errors.Errorf("invalid sdist filename %q: missing version separator", name)
	}
	return SdistFilename{
		Distribution: stem[:idx],
		Version:      stem[idx+1:],
		Ext:          ext,
		raw:          name,
	}, nil
}

// RequirementKind is the closed sum type distinguishing why a requirement
// is being resolved, per spec.md §3: TopLevel | Install | BuildSystem |
// BuildBackend | BuildSdist.
type RequirementKind string

const (
	KindTopLevel     RequirementKind = "top-level"
	KindInstall      RequirementKind = "install"
	KindBuildSystem  RequirementKind = "build-system"
	KindBuildBackend RequirementKind = "build-backend"
	KindBuildSdist   RequirementKind = "build-sdist"
)

// IsBuildRequirement reports whether k is one of the three build-time
// requirement kinds (build-system, build-backend, build-sdist), as opposed
// to a runtime install requirement.
func (k RequirementKind) IsBuildRequirement() bool {
	switch k {
	case KindBuildSystem, KindBuildBackend, KindBuildSdist:
		return true
	default:
		return false
	}
}

// IsInstallRequirement reports whether k represents a requirement that
// must be satisfiable at install time (top-level or install).
func (k RequirementKind) IsInstallRequirement() bool {
	switch k {
	case KindTopLevel, KindInstall:
		return true
	default:
		return false
	}
}

// SourceKind is the closed sum type describing how a resolved candidate's
// artifact was obtained, per spec.md §3: Sdist | Prebuilt | Override.
type SourceKind string

const (
	SourceSdist    SourceKind = "sdist"
	SourcePrebuilt SourceKind = "prebuilt"
	SourceOverride SourceKind = "override"
)
