package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fromager-go/fromager/internal/bootstrap"
	"github.com/fromager-go/fromager/internal/constraints"
	"github.com/fromager-go/fromager/internal/depgraph"
	"github.com/fromager-go/fromager/internal/flog"
	"github.com/fromager-go/fromager/internal/mechanics"
	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
	"github.com/fromager-go/fromager/internal/settings"
	"github.com/fromager-go/fromager/internal/writer"
)

const bootstrapShortHelp = `Resolve and build a set of requirements`
const bootstrapLongHelp = `
Resolves each given requirement (and transitively everything it needs to
build and install), building a wheel for anything not already available
pre-built, and writes a dependency graph and build-order file recording
the work done.
`

type bootstrapCommand struct {
	workDir          string
	sdistServer      string
	wheelServer      string
	cacheWheelServer string
	settingsFile     string
	settingsDir      string
	constraintsFile  string
	variant          string
	patchesDir       string
	maxJobs          int
	cleanup          bool
	lockPath         string
}

func (cmd *bootstrapCommand) Name() string      { return "bootstrap" }
func (cmd *bootstrapCommand) Args() string      { return "<requirement...>" }
func (cmd *bootstrapCommand) ShortHelp() string { return bootstrapShortHelp }
func (cmd *bootstrapCommand) LongHelp() string  { return bootstrapLongHelp }

func (cmd *bootstrapCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.workDir, "work-dir", "work-dir", "directory to hold downloads and build trees")
	fs.StringVar(&cmd.sdistServer, "sdist-server-url", "https://pypi.org/simple/", "simple index to resolve sdists/wheels from")
	fs.StringVar(&cmd.wheelServer, "wheel-server-url", "", "simple index of already-built wheels, preferred over building from source")
	fs.StringVar(&cmd.cacheWheelServer, "cache-wheel-server-url", "", "simple index consulted for a previously built wheel before building one")
	fs.StringVar(&cmd.settingsFile, "settings-file", "overrides/settings.yaml", "global settings file")
	fs.StringVar(&cmd.settingsDir, "settings-dir", "overrides/settings", "per-package settings directory")
	fs.StringVar(&cmd.constraintsFile, "constraints-file", "", "global version constraints file")
	fs.StringVar(&cmd.variant, "variant", "default", "build variant name")
	fs.StringVar(&cmd.patchesDir, "patches-dir", "overrides/patches", "per-package source patches directory")
	fs.IntVar(&cmd.maxJobs, "max-jobs", 0, "cap on parallel build jobs (0: no cap)")
	fs.BoolVar(&cmd.cleanup, "cleanup", true, "remove build trees for successfully built packages")
	fs.StringVar(&cmd.lockPath, "lock-file", "", "advisory lock file path (empty: no locking)")
}

func (cmd *bootstrapCommand) Run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("bootstrap requires at least one requirement")
	}

	logger := flog.New(os.Stderr, flog.LevelInfo)
	if *verbose {
		logger = flog.New(os.Stderr, flog.LevelDebug)
	}

	if cmd.lockPath != "" {
		lock := bootstrap.NewRunLock(cmd.lockPath)
		acquired, err := lock.TryLock()
		if err != nil {
			return err
		}
		if !acquired {
			return fmt.Errorf("another bootstrap run holds %s", cmd.lockPath)
		}
		defer lock.Unlock()
	}

	s, err := settings.LoadAll(cmd.settingsFile, cmd.settingsDir, cmd.variant, cmd.patchesDir, cmd.maxJobs)
	if err != nil {
		return err
	}

	c, err := constraints.Load(cmd.constraintsFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cmd.workDir, 0o755); err != nil {
		return err
	}
	buildDir := filepath.Join(cmd.workDir, "build")
	wheelsBuildDir := filepath.Join(cmd.workDir, "wheels-build")
	wheelsDownloads := filepath.Join(cmd.workDir, "wheels-downloads")

	httpClient := mechanics.NewClient(2 * time.Minute)
	runner := mechanics.NewRunner(logger)
	ws := mechanics.NewWorkspace(s, c, httpClient, runner, logger).WithIndexes(cmd.sdistServer, cmd.wheelServer)
	ws.WorkDir = cmd.workDir
	ws.BuildDir = buildDir
	ws.WheelsBuildDir = wheelsBuildDir
	ws.WheelsDownloads = wheelsDownloads
	ws.CacheWheelServer = cmd.cacheWheelServer

	graph := depgraph.New()
	buildOrder := writer.NewBuildOrder()

	engine := bootstrap.New(s, c, graph, buildOrder, ws, ws, ws, ws)
	engine.Logger = logger
	engine.CacheWheelServerURL = cmd.cacheWheelServer
	engine.WheelsDownloadsDir = wheelsDownloads
	engine.Cleanup = cmd.cleanup
	if ws.CacheWheelServer != "" {
		engine.CachedWheel = ws
	}

	ctx := context.Background()
	for _, raw := range args {
		req, err := reqs.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing requirement %q: %w", raw, err)
		}

		// Top-level requirements are resolved and recorded on the root
		// node before Bootstrap is ever called: resolveFromGraph treats
		// a missing root edge for a KindTopLevel requirement as a hard
		// error rather than falling through to a live resolve.
		pbi := s.PackageBuildInfo(req.Name)
		var url string
		var version pep440.Version
		if pbi.PreBuilt() {
			url, version, err = ws.ResolvePrebuiltWheel(ctx, req)
		} else {
			url, version, err = ws.ResolveSource(ctx, req)
		}
		if err != nil {
			return fmt.Errorf("resolving top-level requirement %s: %w", req, err)
		}
		if err := graph.AddDependency(depgraph.Root, reqs.KindTopLevel, req, version, url, pbi.PreBuilt()); err != nil {
			return fmt.Errorf("recording top-level requirement %s: %w", req, err)
		}

		if _, err := engine.Bootstrap(ctx, req, reqs.KindTopLevel); err != nil {
			return fmt.Errorf("bootstrapping %s: %w", req, err)
		}
	}

	if err := ws.UpdateWheelMirror(ctx); err != nil {
		return fmt.Errorf("updating wheel mirror: %w", err)
	}

	graphFile, err := os.Create(filepath.Join(cmd.workDir, "graph.json"))
	if err != nil {
		return err
	}
	defer graphFile.Close()
	if err := graph.Serialize(graphFile); err != nil {
		return fmt.Errorf("writing graph: %w", err)
	}

	orderFile, err := os.Create(filepath.Join(cmd.workDir, "build-order.json"))
	if err != nil {
		return err
	}
	defer orderFile.Close()
	if err := buildOrder.WriteTo(orderFile); err != nil {
		return fmt.Errorf("writing build order: %w", err)
	}

	return nil
}
