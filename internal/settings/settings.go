// Package settings implements the per-package and global build
// configuration: YAML-decoded package settings, a global settings.yaml,
// template substitution for source URLs and environment variables, and
// the parallel-jobs formula that scales build concurrency by CPU and
// memory headroom.
package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// ResolverDist configures how a package's available versions are
// discovered during resolution.
type ResolverDist struct {
	SdistServerURL string `yaml:"sdist_server_url"`
	IncludeSdists  *bool  `yaml:"include_sdists"`
	IncludeWheels  bool   `yaml:"include_wheels"`
}

func (r ResolverDist) includeSdists() bool {
	if r.IncludeSdists == nil {
		return true
	}
	return *r.IncludeSdists
}

// DownloadSource overrides where a package's sdist is fetched from.
type DownloadSource struct {
	URL                 string `yaml:"url"`
	DestinationFilename string `yaml:"destination_filename"`
}

// BuildOptions tunes the build-system invocation for a package.
type BuildOptions struct {
	BuildExtParallel bool    `yaml:"build_ext_parallel"`
	CPUCoresPerJob   int     `yaml:"cpu_cores_per_job"`
	MemoryPerJobGB   float64 `yaml:"memory_per_job_gb"`
}

func (b BuildOptions) cpuCoresPerJob() int {
	if b.CPUCoresPerJob <= 0 {
		return 1
	}
	return b.CPUCoresPerJob
}

func (b BuildOptions) memoryPerJobGB() float64 {
	if b.MemoryPerJobGB <= 0 {
		return 1.0
	}
	return b.MemoryPerJobGB
}

// ProjectOverride patches a package's declared build requirements before
// the build system is invoked.
type ProjectOverride struct {
	UpdateBuildRequires []string `yaml:"update_build_requires"`
	RemoveBuildRequires []string `yaml:"remove_build_requires"`
}

// VariantInfo is the per-variant override block inside a package's
// settings file.
type VariantInfo struct {
	Env            map[string]string `yaml:"env"`
	WheelServerURL string            `yaml:"wheel_server_url"`
	PreBuilt       bool              `yaml:"pre_built"`
}

// PackageSettings is the decoded contents of one package's YAML settings
// file (or the zero-value defaults when no such file exists).
type PackageSettings struct {
	Name      string
	HasConfig bool

	BuildDir        string                   `yaml:"build_dir"`
	Changelog       map[string][]string      `yaml:"changelog"`
	Env             map[string]string        `yaml:"env"`
	DownloadSource  DownloadSource           `yaml:"download_source"`
	ResolverDist    ResolverDist             `yaml:"resolver_dist"`
	BuildOptions    BuildOptions             `yaml:"build_options"`
	ProjectOverride ProjectOverride          `yaml:"project_override"`
	Variants        map[string]VariantInfo   `yaml:"variants"`
}

// OverrideModuleName is the package name with "-" replaced by "_", used
// for patch directories and plugin lookups.
func (p PackageSettings) OverrideModuleName() string { return reqs.OverrideModuleName(p.Name) }

// FromString decodes raw YAML into a PackageSettings for the given
// (already-canonicalized) package name.
func FromString(pkg string, raw []byte) (PackageSettings, error) {
	var ps PackageSettings
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := yaml.Unmarshal(raw, &ps); err != nil {
			return PackageSettings{}, errors.Wrapf(err, "%s: failed to load settings", pkg)
		}
	}
	ps.Name = pkg
	ps.HasConfig = true
	return ps, nil
}

// FromDefault returns the zero-configuration settings for pkg.
func FromDefault(pkg string) PackageSettings {
	return PackageSettings{Name: pkg, HasConfig: false}
}

// FromFile loads a package's settings from a YAML file; the package name
// is taken from the file's stem.
func FromFile(path string) (PackageSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PackageSettings{}, errors.Wrapf(err, "reading settings file %s", path)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return FromString(reqs.Canonicalize(stem), raw)
}

// GlobalSettings is the decoded contents of the top-level settings.yaml:
// per-variant changelog entries shared across every package.
type GlobalSettings struct {
	Changelog map[string][]string `yaml:"changelog"`
}

// GlobalFromString decodes the global settings.yaml contents.
func GlobalFromString(raw []byte) (GlobalSettings, error) {
	var g GlobalSettings
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := yaml.Unmarshal(raw, &g); err != nil {
			return GlobalSettings{}, errors.Wrap(err, "failed to load global settings")
		}
	}
	return g, nil
}

// GlobalFromFile loads the global settings.yaml; a missing file yields
// empty settings rather than an error.
func GlobalFromFile(path string) (GlobalSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GlobalSettings{}, nil
		}
		return GlobalSettings{}, errors.Wrapf(err, "reading settings file %s", path)
	}
	return GlobalFromString(raw)
}

// Settings aggregates global settings, per-package settings, the active
// build variant, the patches directory, and an optional job cap.
type Settings struct {
	global          GlobalSettings
	packageSettings map[string]PackageSettings
	Variant         string
	PatchesDir      string
	MaxJobs         int // 0 means unset: use CPU count

	pbiCache map[string]*PackageBuildInfo
}

// New constructs a Settings from already-loaded components.
func New(global GlobalSettings, pkgSettings []PackageSettings, variant, patchesDir string, maxJobs int) *Settings {
	m := make(map[string]PackageSettings, len(pkgSettings))
	for _, p := range pkgSettings {
		m[p.Name] = p
	}
	return &Settings{
		global:          global,
		packageSettings: m,
		Variant:         variant,
		PatchesDir:      patchesDir,
		MaxJobs:         maxJobs,
		pbiCache:        make(map[string]*PackageBuildInfo),
	}
}

// LoadAll builds a Settings by reading settingsFile (the global
// settings.yaml, optional) and every "*.yaml"/"*.yml" file directly under
// settingsDir (one file per package, keyed by filename stem), walked with
// godirwalk for parity with the patches-directory scan below.
func LoadAll(settingsFile, settingsDir, variant, patchesDir string, maxJobs int) (*Settings, error) {
	global, err := GlobalFromFile(settingsFile)
	if err != nil {
		return nil, err
	}

	var pkgFiles []string
	if info, statErr := os.Stat(settingsDir); statErr == nil && info.IsDir() {
		err = godirwalk.Walk(settingsDir, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					return nil
				}
				ext := filepath.Ext(path)
				if ext == ".yaml" || ext == ".yml" {
					pkgFiles = append(pkgFiles, path)
				}
				return nil
			},
			Unsorted: true,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walking settings directory %s", settingsDir)
		}
	}
	sort.Strings(pkgFiles)

	pkgSettings := make([]PackageSettings, 0, len(pkgFiles))
	for _, f := range pkgFiles {
		ps, err := FromFile(f)
		if err != nil {
			return nil, err
		}
		pkgSettings = append(pkgSettings, ps)
	}

	return New(global, pkgSettings, variant, patchesDir, maxJobs), nil
}

// VariantChangelog returns the global changelog entries for the active
// variant.
func (s *Settings) VariantChangelog() []string {
	return s.global.Changelog[s.Variant]
}

// PackageSetting returns pkg's settings, creating and caching defaults if
// none were loaded.
func (s *Settings) PackageSetting(pkg string) PackageSettings {
	name := reqs.Canonicalize(pkg)
	ps, ok := s.packageSettings[name]
	if !ok {
		ps = FromDefault(name)
		s.packageSettings[name] = ps
	}
	return ps
}

// PackageBuildInfo returns the (cached) build info for pkg under the
// active variant.
func (s *Settings) PackageBuildInfo(pkg string) *PackageBuildInfo {
	name := reqs.Canonicalize(pkg)
	if pbi, ok := s.pbiCache[name]; ok {
		return pbi
	}
	ps := s.PackageSetting(name)
	pbi := newPackageBuildInfo(s, ps)
	s.pbiCache[name] = pbi
	return pbi
}

// ListPreBuilt returns the canonical names of packages whose active
// variant is configured as pre-built.
func (s *Settings) ListPreBuilt() []string {
	var out []string
	for name := range s.packageSettings {
		if s.PackageBuildInfo(name).PreBuilt() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ListOverrides returns the canonical names of every package with a
// settings file or an on-disk patch directory.
func (s *Settings) ListOverrides() []string {
	set := map[string]struct{}{}
	for name, ps := range s.packageSettings {
		if ps.HasConfig {
			set[name] = struct{}{}
		}
	}
	if s.PatchesDir != "" {
		entries, err := os.ReadDir(s.PatchesDir)
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				if idx := strings.LastIndexByte(e.Name(), '-'); idx > 0 {
					set[reqs.Canonicalize(e.Name()[:idx])] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PackageBuildInfo is the read-only view of a package's settings under
// the Settings' currently active variant; it is cheap to obtain repeatedly
// (Settings.PackageBuildInfo caches one per package).
type PackageBuildInfo struct {
	variant         string
	patchesDir      string
	variantChangelog []string
	maxJobs         int
	ps              PackageSettings

	patches     map[string][]string
	patchesDone bool
}

func newPackageBuildInfo(s *Settings, ps PackageSettings) *PackageBuildInfo {
	return &PackageBuildInfo{
		variant:          s.Variant,
		patchesDir:       s.PatchesDir,
		variantChangelog: s.VariantChangelog(),
		maxJobs:          s.MaxJobs,
		ps:               ps,
	}
}

// Package returns the canonical package name.
func (pbi *PackageBuildInfo) Package() string { return pbi.ps.Name }

// Variant returns the active build variant name.
func (pbi *PackageBuildInfo) Variant() string { return pbi.variant }

// HasConfig reports whether the package has an on-disk settings file.
func (pbi *PackageBuildInfo) HasConfig() bool { return pbi.ps.HasConfig }

// OverrideModuleName is the package name with "-" replaced by "_".
func (pbi *PackageBuildInfo) OverrideModuleName() string { return pbi.ps.OverrideModuleName() }

// PreBuilt reports whether the active variant is configured to use a
// pre-built wheel instead of building from source.
func (pbi *PackageBuildInfo) PreBuilt() bool {
	if vi, ok := pbi.ps.Variants[pbi.variant]; ok {
		return vi.PreBuilt
	}
	return false
}

// WheelServerURL returns the alternative package index for a pre-built
// wheel, if the active variant configures one.
func (pbi *PackageBuildInfo) WheelServerURL() (string, bool) {
	if vi, ok := pbi.ps.Variants[pbi.variant]; ok && vi.WheelServerURL != "" {
		return vi.WheelServerURL, true
	}
	return "", false
}

// GetPatches walks patchesDir for directories matching
// "<override-module-name>-<version>" and returns the *.patch files found
// in each, keyed by the version parsed from the directory suffix. Results
// are cached on first call.
func (pbi *PackageBuildInfo) GetPatches() (map[string][]string, error) {
	if pbi.patchesDone {
		return pbi.patches, nil
	}
	patches := make(map[string][]string)
	prefix := pbi.OverrideModuleName() + "-"
	if pbi.patchesDir != "" {
		entries, err := os.ReadDir(pbi.patchesDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "reading patches directory %s", pbi.patchesDir)
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
				continue
			}
			version := strings.TrimPrefix(e.Name(), prefix)
			dir := filepath.Join(pbi.patchesDir, e.Name())
			var files []string
			walkErr := godirwalk.Walk(dir, &godirwalk.Options{
				Callback: func(path string, de *godirwalk.Dirent) error {
					if !de.IsDir() && strings.HasSuffix(path, ".patch") {
						files = append(files, path)
					}
					return nil
				},
				Unsorted: true,
			})
			if walkErr != nil {
				return nil, errors.Wrapf(walkErr, "walking patch directory %s", dir)
			}
			sort.Strings(files)
			patches[version] = files
		}
	}
	pbi.patches = patches
	pbi.patchesDone = true
	return patches, nil
}

// BuildDir resolves the package's configured build sub-directory (if any)
// relative to sdistRootDir.
func (pbi *PackageBuildInfo) BuildDir(sdistRootDir string) string {
	if pbi.ps.BuildDir == "" {
		return sdistRootDir
	}
	return filepath.Join(sdistRootDir, pbi.ps.BuildDir)
}

// BuildTag computes the package's numeric build tag for version, derived
// from the number of changelog entries recorded for that version plus the
// number of global changelog entries for the active variant. A package
// with no changelog history has no build tag (empty string).
func (pbi *PackageBuildInfo) BuildTag(version pep440.Version) string {
	release := len(pbi.ps.Changelog[version.String()])
	release += len(pbi.variantChangelog)
	if release == 0 {
		return ""
	}
	return strconv.Itoa(release)
}

// GetExtraEnviron composes the package's env and the active variant's env
// (variant entries may reference earlier entries) into a flat map, using
// baseEnv ($VAR-style references resolve against os.Environ() when
// baseEnv is nil) as the substitution context.
func (pbi *PackageBuildInfo) GetExtraEnviron(baseEnv map[string]string) (map[string]string, error) {
	templateEnv := map[string]string{}
	if baseEnv == nil {
		for _, kv := range os.Environ() {
			if idx := strings.IndexByte(kv, '='); idx >= 0 {
				templateEnv[kv[:idx]] = kv[idx+1:]
			}
		}
	} else {
		for k, v := range baseEnv {
			templateEnv[k] = v
		}
	}

	type entry struct{ key, value string }
	var entries []entry
	for k, v := range pbi.ps.Env {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	if vi, ok := pbi.ps.Variants[pbi.variant]; ok {
		var variantEntries []entry
		for k, v := range vi.Env {
			variantEntries = append(variantEntries, entry{k, v})
		}
		sort.Slice(variantEntries, func(i, j int) bool { return variantEntries[i].key < variantEntries[j].key })
		entries = append(entries, variantEntries...)
	}

	extraEnviron := make(map[string]string, len(entries))
	for _, e := range entries {
		value, err := substituteTemplate(e.value, templateEnv)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: substituting env var %s", pbi.Package(), e.key)
		}
		extraEnviron[e.key] = value
		templateEnv[e.key] = value
	}
	return extraEnviron, nil
}

func substituteTemplate(raw string, env map[string]string) (string, error) {
	tmpl, err := template.New("env").Option("missingkey=error").Parse(shellToGoTemplate(raw))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, env); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// shellToGoTemplate rewrites a shell-style "$VAR"/"${VAR}" template string
// into Go's text/template syntax so substituteTemplate can reuse the
// stdlib templating engine for what is otherwise string.Template-style
// substitution.
func shellToGoTemplate(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '$' && i+1 < len(s) {
			if s[i+1] == '{' {
				end := strings.IndexByte(s[i+2:], '}')
				if end >= 0 {
					name := s[i+2 : i+2+end]
					out.WriteString("{{.")
					out.WriteString(name)
					out.WriteString("}}")
					i += 2 + end
					continue
				}
			} else {
				j := i + 1
				for j < len(s) && isIdentByte(s[j]) {
					j++
				}
				if j > i+1 {
					out.WriteString("{{.")
					out.WriteString(s[i+1 : j])
					out.WriteString("}}")
					i = j - 1
					continue
				}
			}
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// DownloadSourceURL resolves the package's alternative sdist download URL
// template (falling back to defaultURL when none is configured), with
// "${canonicalized_name}" and "${version}" substituted.
func (pbi *PackageBuildInfo) DownloadSourceURL(version *pep440.Version, defaultURL string) (string, error) {
	tmpl := pbi.ps.DownloadSource.URL
	if tmpl == "" {
		tmpl = defaultURL
	}
	if tmpl == "" {
		return "", nil
	}
	return pbi.resolveNameVersionTemplate(tmpl, version)
}

// DownloadSourceDestinationFilename resolves the package's renamed sdist
// filename template, if configured.
func (pbi *PackageBuildInfo) DownloadSourceDestinationFilename(version *pep440.Version, defaultName string) (string, error) {
	tmpl := pbi.ps.DownloadSource.DestinationFilename
	if tmpl == "" {
		tmpl = defaultName
	}
	if tmpl == "" {
		return "", nil
	}
	return pbi.resolveNameVersionTemplate(tmpl, version)
}

func (pbi *PackageBuildInfo) resolveNameVersionTemplate(tmpl string, version *pep440.Version) (string, error) {
	env := map[string]string{"canonicalized_name": pbi.Package()}
	if version != nil {
		env["version"] = version.String()
	}
	out, err := substituteTemplate(tmpl, env)
	if err != nil {
		return "", errors.Wrapf(err, "%s: resolving template %q", pbi.Package(), tmpl)
	}
	return out, nil
}

// ResolverSdistServerURL returns the package's alternative resolver index,
// falling back to defaultURL.
func (pbi *PackageBuildInfo) ResolverSdistServerURL(defaultURL string) string {
	if pbi.ps.ResolverDist.SdistServerURL != "" {
		return pbi.ps.ResolverDist.SdistServerURL
	}
	return defaultURL
}

// ResolverIncludeWheels reports whether wheels should be considered when
// resolving this package's available versions.
func (pbi *PackageBuildInfo) ResolverIncludeWheels() bool { return pbi.ps.ResolverDist.IncludeWheels }

// ResolverIncludeSdists reports whether sdists should be considered when
// resolving this package's available versions (default true).
func (pbi *PackageBuildInfo) ResolverIncludeSdists() bool { return pbi.ps.ResolverDist.includeSdists() }

// BuildExtParallel reports whether setuptools' build_ext should be told to
// build extensions in parallel.
func (pbi *PackageBuildInfo) BuildExtParallel() bool { return pbi.ps.BuildOptions.BuildExtParallel }

// ProjectOverride returns the package's build-requirement patch list.
func (pbi *PackageBuildInfo) ProjectOverride() ProjectOverride { return pbi.ps.ProjectOverride }

// ParallelJobs computes how many parallel build jobs the package should
// use: bounded above by CPU cores (scaled by CPUCoresPerJob), available
// memory (scaled by MemoryPerJobGB), and the configured max-jobs cap —
// whichever is smallest, at least 1.
func (pbi *PackageBuildInfo) ParallelJobs(availableMemoryGiB float64) int {
	cpuCount := runtime.NumCPU()
	cpuCoresPerJob := pbi.ps.BuildOptions.cpuCoresPerJob()
	maxByCPU := cpuCount / cpuCoresPerJob
	if maxByCPU < 1 {
		maxByCPU = 1
	}

	memoryPerJob := pbi.ps.BuildOptions.memoryPerJobGB()
	maxByMemory := int(availableMemoryGiB / memoryPerJob)
	if maxByMemory < 1 {
		maxByMemory = 1
	}

	maxJobs := pbi.maxJobs
	if maxJobs <= 0 {
		maxJobs = cpuCount
	}

	result := maxByCPU
	if maxByMemory < result {
		result = maxByMemory
	}
	if maxJobs < result {
		result = maxJobs
	}
	return result
}
