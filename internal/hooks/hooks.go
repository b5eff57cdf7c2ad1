// Package hooks defines the seams between the dependency-resolution and
// bootstrap core and everything that actually touches the network, a
// subprocess, or the filesystem's archive formats. None of these
// interfaces is implemented here; concrete adapters live at the edges of
// a caller's program the same way golang-dep's SourceManager is adapted
// by a bridge rather than baked into the solver.
package hooks

import (
	"context"
	"net/http"

	"github.com/Masterminds/semver"
)

// HTTPClient fetches a URL, used for PyPI simple-index pages, sdist/wheel
// downloads, and metadata sidecars.
type HTTPClient interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// ProcessCmd describes a subprocess invocation: the program, its
// arguments, the working directory, and any extra environment variables
// layered on top of the caller's own environment.
type ProcessCmd struct {
	Dir     string
	Args    []string
	Environ map[string]string
}

// ProcessRunner runs an external command and captures its output, used
// for invoking pip, git, and build-backend subprocesses.
type ProcessRunner interface {
	Run(ctx context.Context, cmd ProcessCmd) (stdout string, err error)
}

// BuildEnv carries the per-invocation context a PEP 517 hook needs: the
// source directory, the parallel-job count, and any extra environment
// variables computed from package settings.
type BuildEnv struct {
	SourceDir string
	Jobs      int
	Environ   map[string]string
}

// PEP517Hooks wraps the four build-backend entry points a source
// distribution exposes via its pyproject.toml [build-system] table.
type PEP517Hooks interface {
	GetRequiresForBuildWheel(ctx context.Context, env BuildEnv) ([]string, error)
	PrepareMetadataForBuildWheel(ctx context.Context, env BuildEnv, dir string) (string, error)
	BuildWheel(ctx context.Context, env BuildEnv, dir string) (string, error)
	BuildSdist(ctx context.Context, env BuildEnv, dir string) (string, error)
}

// ArchiveIO extracts and repacks the archive formats involved in a
// build: tarballs, zip/wheel files, and wheel METADATA extraction.
type ArchiveIO interface {
	ExtractTarGz(src, destDir string) error
	ExtractZip(src, destDir string) error
	WheelMetadata(wheelPath string) ([]byte, error)
	ReproducibleTar(srcDir, destPath string) error
}

// PatchApplier applies a single patch file to a source tree, in the
// lexical order patches_for_source_dir yields them.
type PatchApplier interface {
	Apply(ctx context.Context, sourceDir string, patchFile string) error
}

// PluginFunc is an override implementation for one (package, method)
// pair, e.g. a package's own get_resolver_provider or build_sdist.
type PluginFunc func(args ...interface{}) (interface{}, error)

// PluginRegistry looks up per-package override plugins, mirroring
// overrides.find_override_method's "module exists but has no such
// method" vs. "no module at all" distinction via the boolean return.
type PluginRegistry interface {
	APIVersion() (string, *semver.Version)
	Find(pkg, method string) (PluginFunc, bool)
}
