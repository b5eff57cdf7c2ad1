// Package bootstrap implements the recursive dependency-resolution and
// build engine: given a set of top-level requirements, it resolves
// each one (and transitively, everything it needs to build and
// install), building a wheel for anything that isn't already
// available pre-built, and recording every edge it walks in a
// dependency graph along the way.
//
// The actual mechanics of fetching sources, invoking PEP 517 build
// hooks, and extracting dependency metadata are left to the
// SourceResolver/Builder/DependencyExtractor interfaces a caller
// supplies; this package owns only the traversal algorithm, the
// seen/build-order bookkeeping, and the human-readable "why" chain
// used in error messages.
package bootstrap

import (
	"context"
	"os"
	"sort"
	"strings"

	shutil "github.com/termie/go-shutil"
	flock "github.com/theckman/go-flock"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/depgraph"
	"github.com/fromager-go/fromager/internal/flog"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
	"github.com/fromager-go/fromager/internal/settings"
	"github.com/fromager-go/fromager/internal/writer"
)

// whyFrame is one entry in the chain of requirements that led to the
// one currently being bootstrapped, used only to build the
// "could not handle ..." error chain bootstrapper.py's _explain
// property produces.
type whyFrame struct {
	ReqType reqs.RequirementKind
	Req     reqs.Requirement
	Version pep440.Version
}

// Engine drives one bootstrap run. Construct with New, then call
// Bootstrap once per top-level requirement.
type Engine struct {
	Settings    *settings.Settings
	Constraints constraints.Constraints
	Graph       *depgraph.Graph
	PrevGraph   *depgraph.Graph

	Source      SourceResolver
	Build       Builder
	Deps        DependencyExtractor
	Mirror      WheelMirror
	CachedWheel CachedWheelLookup

	BuildOrder           *writer.BuildOrder
	CacheWheelServerURL  string
	WheelsDownloadsDir   string
	WheelsPrebuiltDir    string
	Cleanup              bool
	Logger               *flog.Logger

	why              []whyFrame
	buildRequirements map[string]bool
	seenRequirements  map[string]bool
}

// New returns an Engine ready to bootstrap requirements into graph,
// recording built wheels in buildOrder.
func New(s *settings.Settings, c constraints.Constraints, graph *depgraph.Graph, buildOrder *writer.BuildOrder, source SourceResolver, build Builder, deps DependencyExtractor, mirror WheelMirror) *Engine {
	return &Engine{
		Settings:          s,
		Constraints:       c,
		Graph:             graph,
		Source:            source,
		Build:             build,
		Deps:              deps,
		Mirror:            mirror,
		BuildOrder:        buildOrder,
		Cleanup:           true,
		buildRequirements: map[string]bool{},
		seenRequirements:  map[string]bool{},
	}
}

// Bootstrap resolves req, builds it (or locates its pre-built wheel)
// if it hasn't been handled before in this run, recurses into its
// build and install dependencies, and returns the version it
// resolved to.
func (e *Engine) Bootstrap(ctx context.Context, req reqs.Requirement, reqType reqs.RequirementKind) (pep440.Version, error) {
	var constraintReq *reqs.Requirement
	if c, ok := e.Constraints.GetConstraint(req.Name); ok {
		constraintReq = &c
		if e.Logger != nil {
			e.Logger.Infof("bootstrap", "%s: incoming requirement %s matches constraint %s, applying both", req.Name, req, c)
		}
	}

	pbi := e.Settings.PackageBuildInfo(req.Name)

	var sourceURL string
	var resolvedVersion pep440.Version
	var err error
	if pbi.PreBuilt() {
		sourceURL, resolvedVersion, err = e.resolvePrebuiltWithHistory(ctx, req, reqType)
	} else {
		sourceURL, resolvedVersion, err = e.resolveSourceWithHistory(ctx, req, reqType)
	}
	if err != nil {
		return pep440.Version{}, err
	}

	if err := e.addToGraph(req, reqType, resolvedVersion, sourceURL, pbi.PreBuilt()); err != nil {
		return pep440.Version{}, err
	}

	if e.hasBeenSeen(req, resolvedVersion) {
		if e.Logger != nil {
			e.Logger.Debugf("bootstrap", "%s: redundant %s dependency %s (%s) for %s", req.Name, reqType, req, resolvedVersion, e.explain())
		}
		return resolvedVersion, nil
	}
	e.markAsSeen(req, resolvedVersion)

	if e.Logger != nil {
		e.Logger.Infof("bootstrap", "%s: new %s dependency %s resolves to %s", req.Name, reqType, req, resolvedVersion)
	}

	e.why = append(e.why, whyFrame{ReqType: reqType, Req: req, Version: resolvedVersion})
	defer func() { e.why = e.why[:len(e.why)-1] }()

	var sourceDir string
	var wheelPath string
	sourceURLType := "sdist"

	if pbi.PreBuilt() {
		sourceURLType = "prebuilt"
		wheelPath, err = e.downloadPrebuilt(ctx, req, resolvedVersion, sourceURL)
		if err != nil {
			return pep440.Version{}, err
		}
	} else {
		var cachedWheelPath string
		var fromCache bool
		if e.CachedWheel != nil && e.CacheWheelServerURL != "" {
			cachedWheelPath, fromCache, err = e.CachedWheel.DownloadCachedWheel(ctx, req, resolvedVersion, e.CacheWheelServerURL)
			if err != nil {
				return pep440.Version{}, err
			}
		}

		archivePath, err := e.Build.DownloadSource(ctx, req, resolvedVersion, sourceURL)
		if err != nil {
			return pep440.Version{}, err
		}
		sourceDir, err = e.Build.PrepareSource(ctx, req, archivePath, resolvedVersion)
		if err != nil {
			return pep440.Version{}, err
		}

		buildDeps, err := e.prepareBuildDependencies(ctx, req, sourceDir)
		if err != nil {
			return pep440.Version{}, err
		}

		if fromCache {
			wheelPath = cachedWheelPath
		} else {
			if err := e.Build.BuildSdist(ctx, req, resolvedVersion, sourceDir); err != nil && e.Logger != nil {
				e.Logger.Warnf("bootstrap", "%s: failed to build source distribution: %v", req.Name, err)
			}
			if e.Logger != nil {
				e.Logger.Infof("bootstrap", "%s: starting build of %s", req.Name, e.explain())
			}
			wheelPath, err = e.Build.BuildWheel(ctx, req, resolvedVersion, sourceDir, buildDeps)
			if err != nil {
				return pep440.Version{}, err
			}
			if e.Mirror != nil {
				if err := e.Mirror.UpdateWheelMirror(ctx); err != nil {
					return pep440.Version{}, err
				}
			}
		}
	}

	e.addToBuildOrder(req, resolvedVersion, sourceURL, sourceURLType, pbi.PreBuilt(), constraintReq)

	installDeps, err := e.Deps.InstallDependenciesOfWheel(ctx, req, wheelPath)
	if err != nil {
		return pep440.Version{}, err
	}
	for _, dep := range sortRequirements(installDeps) {
		if _, err := e.Bootstrap(ctx, dep, reqs.KindInstall); err != nil {
			return pep440.Version{}, errors.Wrapf(err, "could not handle %s", e.explain())
		}
	}

	if e.Cleanup && e.Build != nil && sourceDir != "" {
		if err := e.Build.Cleanup(ctx, sourceDir); err != nil && e.Logger != nil {
			e.Logger.Debugf("bootstrap", "%s: cleanup of %s failed: %v", req.Name, sourceDir, err)
		}
	}

	return resolvedVersion, nil
}

// prepareBuildDependencies resolves and recursively bootstraps a
// requirement's three classes of build-time dependency (build-system,
// build-backend, build-sdist), returning their union so the wheel
// builder can assemble a build environment containing all of them.
func (e *Engine) prepareBuildDependencies(ctx context.Context, req reqs.Requirement, sourceDir string) ([]reqs.Requirement, error) {
	var all []reqs.Requirement

	buildSystemDeps, err := e.Deps.BuildSystemDependencies(ctx, req, sourceDir)
	if err != nil {
		return nil, err
	}
	if err := e.handleBuildRequirements(ctx, reqs.KindBuildSystem, buildSystemDeps); err != nil {
		return nil, err
	}
	all = append(all, buildSystemDeps...)

	buildBackendDeps, err := e.Deps.BuildBackendDependencies(ctx, req, sourceDir)
	if err != nil {
		return nil, err
	}
	if err := e.handleBuildRequirements(ctx, reqs.KindBuildBackend, buildBackendDeps); err != nil {
		return nil, err
	}
	all = append(all, buildBackendDeps...)

	buildSdistDeps, err := e.Deps.BuildSdistDependencies(ctx, req, sourceDir)
	if err != nil {
		return nil, err
	}
	if err := e.handleBuildRequirements(ctx, reqs.KindBuildSdist, buildSdistDeps); err != nil {
		return nil, err
	}
	all = append(all, buildSdistDeps...)

	return all, nil
}

func (e *Engine) handleBuildRequirements(ctx context.Context, buildType reqs.RequirementKind, deps []reqs.Requirement) error {
	for _, dep := range sortRequirements(deps) {
		if _, err := e.Bootstrap(ctx, dep, buildType); err != nil {
			return errors.Wrapf(err, "could not handle %s", e.explain())
		}
	}
	return nil
}

func (e *Engine) resolveSourceWithHistory(ctx context.Context, req reqs.Requirement, reqType reqs.RequirementKind) (string, pep440.Version, error) {
	url, version, ok, err := e.resolveFromGraph(ctx, req, reqType, false)
	if err != nil {
		return "", pep440.Version{}, err
	}
	if ok {
		if e.Logger != nil {
			e.Logger.Debugf("bootstrap", "%s: resolved from previous bootstrap to %s", req.Name, version)
		}
		return url, version, nil
	}
	return e.Source.ResolveSource(ctx, req)
}

func (e *Engine) resolvePrebuiltWithHistory(ctx context.Context, req reqs.Requirement, reqType reqs.RequirementKind) (string, pep440.Version, error) {
	url, version, ok, err := e.resolveFromGraph(ctx, req, reqType, true)
	if err != nil {
		return "", pep440.Version{}, err
	}
	if ok {
		if e.Logger != nil {
			e.Logger.Debugf("bootstrap", "%s: resolved from previous bootstrap to %s", req.Name, version)
		}
		return url, version, nil
	}
	return e.Source.ResolvePrebuiltWheel(ctx, req)
}

// downloadPrebuilt fetches a pre-built wheel and, if it isn't already
// in the downloads directory, copies it there so later build
// environments can install it from the local mirror the same way
// they'd install any other dependency.
func (e *Engine) downloadPrebuilt(ctx context.Context, req reqs.Requirement, version pep440.Version, wheelURL string) (string, error) {
	wheelPath, err := e.Build.DownloadWheel(ctx, req, wheelURL, e.WheelsPrebuiltDir)
	if err != nil {
		return "", err
	}
	if e.WheelsDownloadsDir == "" {
		return wheelPath, nil
	}

	destName := e.WheelsDownloadsDir + "/" + baseName(wheelPath)
	if !pathExists(destName) {
		if e.Logger != nil {
			e.Logger.Infof("bootstrap", "%s: updating temporary mirror with pre-built wheel", req.Name)
		}
		if _, err := shutil.Copy(wheelPath, destName, false); err != nil {
			return "", errors.Wrapf(err, "copying prebuilt wheel %s to %s", wheelPath, destName)
		}
		if e.Mirror != nil {
			if err := e.Mirror.UpdateWheelMirror(ctx); err != nil {
				return "", err
			}
		}
	}
	return wheelPath, nil
}

func (e *Engine) addToGraph(req reqs.Requirement, reqType reqs.RequirementKind, version pep440.Version, downloadURL string, preBuilt bool) error {
	if reqType == reqs.KindTopLevel {
		return nil
	}
	parentKey := depgraph.Root
	if len(e.why) > 0 {
		parent := e.why[len(e.why)-1]
		parentKey = parent.Req.CanonicalName() + "==" + parent.Version.String()
	}
	return e.Graph.AddDependency(parentKey, reqType, req, version, downloadURL, preBuilt)
}

func (e *Engine) addToBuildOrder(req reqs.Requirement, version pep440.Version, sourceURL, sourceURLType string, preBuilt bool, constraint *reqs.Requirement) {
	key := req.CanonicalName() + "==" + version.String()
	if e.buildRequirements[key] {
		return
	}
	e.buildRequirements[key] = true
	if e.Logger != nil {
		e.Logger.Infof("bootstrap", "%s: adding %s to build order", req.Name, key)
	}
	if e.BuildOrder != nil {
		e.BuildOrder.Add(req, version.String(), sourceURL, sourceURLType, preBuilt, constraint)
	}
}

func (e *Engine) resolvedKey(req reqs.Requirement, version pep440.Version) string {
	extras := append([]string(nil), req.SortedExtras()...)
	return req.CanonicalName() + "|" + strings.Join(extras, ",") + "|" + version.String()
}

func (e *Engine) markAsSeen(req reqs.Requirement, version pep440.Version) {
	e.seenRequirements[e.resolvedKey(req, version)] = true
}

func (e *Engine) hasBeenSeen(req reqs.Requirement, version pep440.Version) bool {
	return e.seenRequirements[e.resolvedKey(req, version)]
}

// explain renders the current why-chain the way bootstrapper.py's
// _explain property does, most-recent requirement first, for use in
// "could not handle ..." wrapped errors and redundant-dependency log
// lines.
func (e *Engine) explain() string {
	parts := make([]string, len(e.why))
	for i, frame := range e.why {
		parts[len(e.why)-1-i] = string(frame.ReqType) + " dependency " + frame.Req.String() + " (" + frame.Version.String() + ")"
	}
	return strings.Join(parts, " for ")
}

func sortRequirements(rs []reqs.Requirement) []reqs.Requirement {
	out := append([]reqs.Requirement(nil), rs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func baseName(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// RunLock acquires an advisory file lock on lockPath for the duration
// of a bootstrap run, so two invocations against the same work
// directory don't race on graph.json/build-order.json. Call Unlock
// when the run finishes.
type RunLock struct {
	f *flock.Flock
}

// NewRunLock creates (but does not acquire) a lock at lockPath.
func NewRunLock(lockPath string) *RunLock {
	return &RunLock{f: flock.NewFlock(lockPath)}
}

// Lock blocks until the lock is acquired.
func (l *RunLock) Lock() error {
	return l.f.Lock()
}

// TryLock attempts to acquire the lock without blocking, reporting
// whether it succeeded.
func (l *RunLock) TryLock() (bool, error) {
	return l.f.TryLock()
}

// Unlock releases the lock.
func (l *RunLock) Unlock() error {
	return l.f.Unlock()
}
