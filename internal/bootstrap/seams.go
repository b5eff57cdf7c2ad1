package bootstrap

import (
	"context"

	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// SourceResolver turns a requirement into a concrete (download URL,
// version) pair, the way resolver.ResolveFromProvider does against a
// live index. Source and prebuilt requirements go through separate
// methods because they draw from different indexes (an sdist/wheel
// simple index vs. a wheel-only prebuilt server) and fail
// independently.
type SourceResolver interface {
	ResolveSource(ctx context.Context, req reqs.Requirement) (url string, version pep440.Version, err error)
	ResolvePrebuiltWheel(ctx context.Context, req reqs.Requirement) (url string, version pep440.Version, err error)
}

// Builder performs the filesystem-and-subprocess mechanics of turning
// a resolved requirement into an installable wheel: fetching the
// sdist or prebuilt wheel, unpacking it, invoking the PEP 517 build
// backend, and producing the final wheel file. Each method corresponds
// to one step bootstrapper.py performs through its sources/wheels
// helper modules.
type Builder interface {
	DownloadSource(ctx context.Context, req reqs.Requirement, version pep440.Version, url string) (archivePath string, err error)
	PrepareSource(ctx context.Context, req reqs.Requirement, archivePath string, version pep440.Version) (sourceDir string, err error)
	BuildSdist(ctx context.Context, req reqs.Requirement, version pep440.Version, sourceDir string) error
	BuildWheel(ctx context.Context, req reqs.Requirement, version pep440.Version, sourceDir string, buildDeps []reqs.Requirement) (wheelPath string, err error)
	DownloadWheel(ctx context.Context, req reqs.Requirement, wheelURL string, destDir string) (wheelPath string, err error)
	Cleanup(ctx context.Context, sourceDir string) error
}

// DependencyExtractor reads the three build-requirement files and the
// install-requires metadata out of a prepared source tree or built
// wheel, the Go analogue of dependencies.py's
// get_build_system_dependencies / get_build_backend_dependencies /
// get_build_sdist_dependencies / get_install_dependencies_of_wheel.
type DependencyExtractor interface {
	InstallDependenciesOfWheel(ctx context.Context, req reqs.Requirement, wheelPath string) ([]reqs.Requirement, error)
	BuildSystemDependencies(ctx context.Context, req reqs.Requirement, sourceDir string) ([]reqs.Requirement, error)
	BuildBackendDependencies(ctx context.Context, req reqs.Requirement, sourceDir string) ([]reqs.Requirement, error)
	BuildSdistDependencies(ctx context.Context, req reqs.Requirement, sourceDir string) ([]reqs.Requirement, error)
}

// WheelMirror republishes newly-built or newly-downloaded wheels to
// the local wheel server so that later build environments can install
// them, mirroring server.update_wheel_mirror.
type WheelMirror interface {
	UpdateWheelMirror(ctx context.Context) error
}

// CachedWheelLookup optionally short-circuits a build by finding an
// already-built wheel for (req, version) on a cache server, the Go
// analogue of Bootstrapper._download_wheel_from_cache. A nil
// CachedWheelLookup on Engine disables the cache-lookup step
// entirely, equivalent to cache_wheel_server_url being unset.
type CachedWheelLookup interface {
	DownloadCachedWheel(ctx context.Context, req reqs.Requirement, version pep440.Version, cacheServerURL string) (wheelPath string, found bool, err error)
}
