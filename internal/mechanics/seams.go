package mechanics

import (
	"bufio"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	shutil "github.com/termie/go-shutil"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/flog"
	"github.com/fromager-go/fromager/internal/hooks"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
	"github.com/fromager-go/fromager/internal/resolver"
	"github.com/fromager-go/fromager/internal/settings"
)

// Workspace is the concrete implementation of bootstrap.SourceResolver,
// bootstrap.Builder, bootstrap.DependencyExtractor, bootstrap.WheelMirror,
// and bootstrap.CachedWheelLookup, wiring the resolver/hooks/mechanics
// packages together the way context.WorkContext threads ctx through
// sources.py/wheels.py/dependencies.py/server.py's module-level
// functions. One Workspace corresponds to one bootstrap run's work_dir.
type Workspace struct {
	Settings *settings.Settings
	HTTP     hooks.HTTPClient
	Runner   hooks.ProcessRunner
	Archive  *Archiver
	Hooks    *HookCaller
	Logger   *flog.Logger

	SdistServerURL    string
	PrebuiltServerURL string
	Constraints       constraints.Constraints

	WorkDir          string // sdists downloaded here: WorkDir/downloads
	BuildDir         string // sources extracted/built here: BuildDir/<name>-<version>
	WheelsBuildDir   string // newly built wheels land here before mirroring
	WheelsDownloads  string // the mirror directory served back out as a simple index
	CacheWheelServer string // optional cache server URL consulted before building

	// Plugins is the process-wide override registry consulted before
	// every hook-dispatching Workspace method falls back to its default
	// behavior. Nil means no overrides are configured.
	Plugins hooks.PluginRegistry

	sdistProvider    *resolver.PyPIProvider
	prebuiltProvider *resolver.PyPIProvider
}

// WithPlugins wires a PluginRegistry into the Workspace, logging its
// reported API version once so a mismatch between the registry's
// plugins and the hook-ABI this build expects shows up in the run log
// immediately, the same role AnalyzerInfo plays for golang-dep's cache.
func (w *Workspace) WithPlugins(registry hooks.PluginRegistry) *Workspace {
	w.Plugins = registry
	if w.Logger != nil && registry != nil {
		name, version := registry.APIVersion()
		w.Logger.Infof("mechanics", "loaded override registry %s (api version %s)", name, version)
	}
	return w
}

// findAndInvoke prefers pkg's method override, if one is registered,
// falling back to defaultFn otherwise: the Go analogue of
// overrides.find_and_invoke.
func (w *Workspace) findAndInvoke(pkg, method string, defaultFn func() (interface{}, error), args ...interface{}) (interface{}, error) {
	if w.Plugins != nil {
		if fn, ok := w.Plugins.Find(pkg, method); ok {
			if w.Logger != nil {
				w.Logger.Debugf("mechanics", "found %s override for %s", method, pkg)
			}
			return fn(args...)
		}
	}
	return defaultFn()
}

// NewWorkspace wires a Workspace's two PyPIProvider instances (one for
// sdist+wheel resolution, one restricted to prebuilt wheels only) around
// the shared HTTP client and constraint set.
func NewWorkspace(s *settings.Settings, c constraints.Constraints, http hooks.HTTPClient, runner hooks.ProcessRunner, logger *flog.Logger) *Workspace {
	w := &Workspace{
		Settings:    s,
		HTTP:        http,
		Runner:      runner,
		Archive:     NewArchiver(),
		Hooks:       NewHookCaller(runner),
		Logger:      logger,
		Constraints: c,
	}
	return w
}

// WithIndexes sets the sdist and prebuilt simple-index server URLs and
// (re)builds the providers that query them.
func (w *Workspace) WithIndexes(sdistServerURL, prebuiltServerURL string) *Workspace {
	w.SdistServerURL = sdistServerURL
	w.PrebuiltServerURL = prebuiltServerURL
	w.sdistProvider = resolver.NewPyPIProvider(w.HTTP, sdistServerURL, true, true, w.Constraints)
	w.prebuiltProvider = resolver.NewPyPIProvider(w.HTTP, prebuiltServerURL, false, true, w.Constraints)
	return w
}

func (w *Workspace) providerFor(req reqs.Requirement) (*resolver.PyPIProvider, bool) {
	pbi := w.Settings.PackageBuildInfo(req.Name)
	sdistURL := pbi.ResolverSdistServerURL(w.SdistServerURL)
	if sdistURL == w.SdistServerURL && w.sdistProvider != nil {
		return w.sdistProvider, pbi.ResolverIncludeSdists()
	}
	return resolver.NewPyPIProvider(w.HTTP, sdistURL, pbi.ResolverIncludeSdists(), pbi.ResolverIncludeWheels(), w.Constraints), pbi.ResolverIncludeSdists()
}

// --- bootstrap.SourceResolver ---

func (w *Workspace) ResolveSource(ctx context.Context, req reqs.Requirement) (string, pep440.Version, error) {
	provider, _ := w.providerFor(req)
	c, err := resolver.ResolveFromProvider(ctx, provider, req)
	if err != nil {
		return "", pep440.Version{}, err
	}
	return c.URL, c.Version, nil
}

func (w *Workspace) ResolvePrebuiltWheel(ctx context.Context, req reqs.Requirement) (string, pep440.Version, error) {
	c, err := resolver.ResolveFromProvider(ctx, w.prebuiltProvider, req)
	if err != nil {
		return "", pep440.Version{}, err
	}
	return c.URL, c.Version, nil
}

// --- bootstrap.Builder ---

// DownloadSource fetches downloadURL into WorkDir/downloads, the Go
// analogue of sources.py's default_download_source.
func (w *Workspace) DownloadSource(ctx context.Context, req reqs.Requirement, version pep440.Version, downloadURL string) (string, error) {
	destDir := filepath.Join(w.WorkDir, "downloads")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	result, err := w.findAndInvoke(req.CanonicalName(), "download_source", func() (interface{}, error) {
		return w.downloadTo(ctx, downloadURL, destDir)
	}, ctx, req, version, downloadURL, destDir)
	if err != nil {
		return "", err
	}
	path, ok := result.(string)
	if !ok {
		return "", errors.Errorf("%s: download_source override returned %T, want string", req.Name, result)
	}
	return path, nil
}

func (w *Workspace) downloadTo(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "parsing %s", rawURL)
	}
	filename := filepath.Base(u.Path)
	dest := filepath.Join(destDir, filename)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	resp, err := w.HTTP.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", errors.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return "", writeErr
			}
		}
		if readErr != nil {
			break
		}
	}
	return dest, nil
}

// PrepareSource unpacks archivePath (a .tar.gz sdist or .zip) under
// BuildDir/<name>-<version> and returns the extracted source tree root.
func (w *Workspace) PrepareSource(ctx context.Context, req reqs.Requirement, archivePath string, version pep440.Version) (string, error) {
	container := filepath.Join(w.BuildDir, req.CanonicalName()+"-"+version.String())
	if err := os.MkdirAll(container, 0o755); err != nil {
		return "", err
	}
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz") || strings.HasSuffix(archivePath, ".tgz"):
		if err := w.Archive.ExtractTarGz(archivePath, container); err != nil {
			return "", err
		}
	case strings.HasSuffix(archivePath, ".zip"):
		if err := w.Archive.ExtractZip(archivePath, container); err != nil {
			return "", err
		}
	default:
		return "", errors.Errorf("unsupported source archive format: %s", archivePath)
	}
	extractRoot, err := firstSubdir(container)
	if err != nil {
		return "", err
	}
	pbi := w.Settings.PackageBuildInfo(req.Name)
	return pbi.BuildDir(extractRoot), nil
}

func firstSubdir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return dir, nil
}

func (w *Workspace) buildEnv(req reqs.Requirement, sourceDir string) (hooks.BuildEnv, error) {
	pbi := w.Settings.PackageBuildInfo(req.Name)
	extra, err := pbi.GetExtraEnviron(nil)
	if err != nil {
		return hooks.BuildEnv{}, err
	}
	return hooks.BuildEnv{SourceDir: sourceDir, Jobs: pbi.ParallelJobs(0), Environ: extra}, nil
}

func (w *Workspace) BuildSdist(ctx context.Context, req reqs.Requirement, version pep440.Version, sourceDir string) error {
	env, err := w.buildEnv(req, sourceDir)
	if err != nil {
		return err
	}
	_, err = w.findAndInvoke(req.CanonicalName(), "build_sdist", func() (interface{}, error) {
		return w.Hooks.BuildSdist(ctx, env, sourceDir)
	}, ctx, env, sourceDir)
	return err
}

func (w *Workspace) BuildWheel(ctx context.Context, req reqs.Requirement, version pep440.Version, sourceDir string, buildDeps []reqs.Requirement) (string, error) {
	env, err := w.buildEnv(req, sourceDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.WheelsBuildDir, 0o755); err != nil {
		return "", err
	}
	result, err := w.findAndInvoke(req.CanonicalName(), "build_wheel", func() (interface{}, error) {
		return w.Hooks.BuildWheel(ctx, env, w.WheelsBuildDir)
	}, ctx, env, w.WheelsBuildDir, buildDeps)
	if err != nil {
		return "", err
	}
	builtPath, ok := result.(string)
	if !ok {
		return "", errors.Errorf("%s: build_wheel override returned %T, want string", req.Name, result)
	}
	return builtPath, nil
}

func (w *Workspace) DownloadWheel(ctx context.Context, req reqs.Requirement, wheelURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	return w.downloadTo(ctx, wheelURL, destDir)
}

func (w *Workspace) Cleanup(ctx context.Context, sourceDir string) error {
	if sourceDir == "" {
		return nil
	}
	return os.RemoveAll(sourceDir)
}

// --- bootstrap.DependencyExtractor ---

// InstallDependenciesOfWheel reads "Requires-Dist:" fields out of the
// wheel's dist-info METADATA, the Go analogue of
// get_install_dependencies_of_wheel's pkginfo.Wheel(...).requires_dist.
func (w *Workspace) InstallDependenciesOfWheel(ctx context.Context, req reqs.Requirement, wheelPath string) ([]reqs.Requirement, error) {
	raw, err := w.Archive.WheelMetadata(wheelPath)
	if err != nil {
		return nil, err
	}
	return parseRequiresDist(raw, req)
}

func parseRequiresDist(metadata []byte, parent reqs.Requirement) ([]reqs.Requirement, error) {
	var out []reqs.Requirement
	scanner := bufio.NewScanner(strings.NewReader(string(metadata)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break // end of RFC-822 headers, start of long description
		}
		const prefix = "Requires-Dist:"
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		raw := strings.TrimSpace(line[len(prefix):])
		r, err := reqs.Parse(raw)
		if err != nil {
			continue
		}
		if reqs.EvaluateMarker(parent, r, parent.Extras) {
			out = append(out, r)
		}
	}
	return out, scanner.Err()
}

func parseRequirementStrings(raw []string, parent reqs.Requirement) ([]reqs.Requirement, error) {
	var out []reqs.Requirement
	for _, s := range raw {
		r, err := reqs.Parse(s)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing requirement %q", s)
		}
		if reqs.EvaluateMarker(parent, r, parent.Extras) {
			out = append(out, r)
		}
	}
	return out, nil
}

// BuildSystemDependencies reads [build-system] requires directly out of
// pyproject.toml, matching default_get_build_system_dependencies (no
// hook call: this table has to be readable before any backend can be
// imported).
func (w *Workspace) BuildSystemDependencies(ctx context.Context, req reqs.Requirement, sourceDir string) ([]reqs.Requirement, error) {
	backend, err := ReadBuildBackend(sourceDir)
	if err != nil {
		return nil, err
	}
	return parseRequirementStrings(backend.Requires, req)
}

// BuildBackendDependencies calls the backend's get_requires_for_build_wheel
// hook, matching default_get_build_backend_dependencies.
func (w *Workspace) BuildBackendDependencies(ctx context.Context, req reqs.Requirement, sourceDir string) ([]reqs.Requirement, error) {
	env, err := w.buildEnv(req, sourceDir)
	if err != nil {
		return nil, err
	}
	raw, err := w.Hooks.GetRequiresForBuildWheel(ctx, env)
	if err != nil {
		return nil, err
	}
	return parseRequirementStrings(raw, req)
}

// BuildSdistDependencies also calls get_requires_for_build_wheel:
// default_get_build_sdist_dependencies does the same thing upstream
// (its docstring references the wheel hook too), so this mirrors that
// rather than invent a distinct sdist-hook call the original doesn't
// make either.
func (w *Workspace) BuildSdistDependencies(ctx context.Context, req reqs.Requirement, sourceDir string) ([]reqs.Requirement, error) {
	return w.BuildBackendDependencies(ctx, req, sourceDir)
}

// --- bootstrap.WheelMirror ---

// UpdateWheelMirror moves newly built wheels from WheelsBuildDir into
// WheelsDownloads, matching server.py's update_wheel_mirror. The
// subsequent `pypi-mirror create` step that regenerates the simple-index
// HTML is left to a caller wanting to actually serve the mirror over
// HTTP; nothing in this pack provides a Go package for that index
// format, and Workspace's own resolver reads the index directly off
// disk via a file:// URL, so no regeneration step is required.
func (w *Workspace) UpdateWheelMirror(ctx context.Context) error {
	if w.WheelsBuildDir == "" || w.WheelsDownloads == "" {
		return nil
	}
	if err := os.MkdirAll(w.WheelsDownloads, 0o755); err != nil {
		return err
	}
	matches, err := filepath.Glob(filepath.Join(w.WheelsBuildDir, "*.whl"))
	if err != nil {
		return err
	}
	for _, wheel := range matches {
		dest := filepath.Join(w.WheelsDownloads, filepath.Base(wheel))
		if _, err := shutil.Copy(wheel, dest, false); err != nil {
			return errors.Wrapf(err, "mirroring %s", wheel)
		}
		if err := os.Remove(wheel); err != nil {
			return err
		}
	}
	return nil
}

// --- bootstrap.CachedWheelLookup ---

// DownloadCachedWheel checks cacheServerURL's simple index for an
// already-built wheel matching req/version, the Go analogue of
// Bootstrapper._download_wheel_from_cache.
func (w *Workspace) DownloadCachedWheel(ctx context.Context, req reqs.Requirement, version pep440.Version, cacheServerURL string) (string, bool, error) {
	provider := resolver.NewPyPIProvider(w.HTTP, cacheServerURL, false, true, w.Constraints)
	pinned, err := reqs.Parse(req.CanonicalName() + "==" + version.String())
	if err != nil {
		return "", false, err
	}
	c, err := resolver.ResolveFromProvider(ctx, provider, pinned)
	if err != nil {
		return "", false, nil
	}
	path, err := w.downloadTo(ctx, c.URL, filepath.Join(w.WorkDir, "downloads"))
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}
