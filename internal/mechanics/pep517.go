package mechanics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/hooks"
)

// HookCaller invokes a PEP 517 build backend's hook functions in a
// subprocess, the Go analogue of pyproject_hooks.BuildBackendHookCaller
// (wrapped by dependencies.py's get_build_backend_hook_caller and
// wheels.py's default_build_wheel, which shells to `pip wheel` directly
// for the actual build).
type HookCaller struct {
	Runner hooks.ProcessRunner
	Python string // interpreter to run the backend under; defaults to "python3"
}

func NewHookCaller(runner hooks.ProcessRunner) *HookCaller {
	return &HookCaller{Runner: runner, Python: "python3"}
}

func (h *HookCaller) python() string {
	if h.Python == "" {
		return "python3"
	}
	return h.Python
}

// hookScript renders a minimal PEP 517 hook invocation: import the
// backend module (honoring backend-path the way pyproject_hooks does by
// prepending it to sys.path), call the named hook, and print its result
// as a single line of JSON so the Go side can parse it back out of
// stdout.
func hookScript(backend BuildBackend, hookCall, resultExpr string) string {
	module, attr := backend.Backend, ""
	if idx := strings.Index(backend.Backend, ":"); idx >= 0 {
		module, attr = backend.Backend[:idx], backend.Backend[idx+1:]
	}
	importLine := fmt.Sprintf("import %s as backend", module)
	if attr != "" {
		importLine = fmt.Sprintf("import %s\nbackend = %s.%s", module, module, attr)
	}
	var pathLines strings.Builder
	for _, p := range backend.BackendPath {
		fmt.Fprintf(&pathLines, "sys.path.insert(0, %q)\n", p)
	}
	return fmt.Sprintf(`import sys, json
%s%s
result = backend.%s
print(json.dumps(%s))
`, pathLines.String(), importLine, hookCall, resultExpr)
}

func (h *HookCaller) runHook(ctx context.Context, env hooks.BuildEnv, backend BuildBackend, hookCall, resultExpr string) (string, error) {
	script := hookScript(backend, hookCall, resultExpr)
	scriptFile, err := os.CreateTemp("", "fromager-hook-*.py")
	if err != nil {
		return "", errors.Wrap(err, "creating hook script")
	}
	defer os.Remove(scriptFile.Name())
	if _, err := scriptFile.WriteString(script); err != nil {
		scriptFile.Close()
		return "", errors.Wrap(err, "writing hook script")
	}
	scriptFile.Close()

	out, err := h.Runner.Run(ctx, hooks.ProcessCmd{
		Dir:     env.SourceDir,
		Args:    []string{h.python(), scriptFile.Name()},
		Environ: env.Environ,
	})
	if err != nil {
		return "", err
	}
	return lastLine(out), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}

func (h *HookCaller) GetRequiresForBuildWheel(ctx context.Context, env hooks.BuildEnv) ([]string, error) {
	backend, err := ReadBuildBackend(env.SourceDir)
	if err != nil {
		return nil, err
	}
	out, err := h.runHook(ctx, env, backend, "get_requires_for_build_wheel()", "result")
	if err != nil {
		return nil, errors.Wrap(err, "get_requires_for_build_wheel")
	}
	var reqs []string
	if err := json.Unmarshal([]byte(out), &reqs); err != nil {
		return nil, errors.Wrapf(err, "parsing get_requires_for_build_wheel output: %s", out)
	}
	return reqs, nil
}

func (h *HookCaller) PrepareMetadataForBuildWheel(ctx context.Context, env hooks.BuildEnv, dir string) (string, error) {
	backend, err := ReadBuildBackend(env.SourceDir)
	if err != nil {
		return "", err
	}
	out, err := h.runHook(ctx, env, backend, fmt.Sprintf("prepare_metadata_for_build_wheel(%q)", dir), "result")
	if err != nil {
		return "", errors.Wrap(err, "prepare_metadata_for_build_wheel")
	}
	var distInfoDir string
	if err := json.Unmarshal([]byte(out), &distInfoDir); err != nil {
		return "", errors.Wrapf(err, "parsing prepare_metadata_for_build_wheel output: %s", out)
	}
	return filepath.Join(dir, distInfoDir), nil
}

// BuildWheel shells out to pip, the same way wheels.py's
// default_build_wheel does, rather than calling the backend's
// build_wheel hook directly: pip handles build-isolation flags,
// wheel-dir placement, and dependency resolution of the sdist itself.
func (h *HookCaller) BuildWheel(ctx context.Context, env hooks.BuildEnv, dir string) (string, error) {
	wheelDir := filepath.Join(dir, "wheel")
	if err := os.MkdirAll(wheelDir, 0o755); err != nil {
		return "", err
	}
	args := []string{h.python(), "-m", "pip", "wheel", "--disable-pip-version-check",
		"--no-build-isolation", "--no-deps", "--wheel-dir", wheelDir, env.SourceDir}
	if _, err := h.Runner.Run(ctx, hooks.ProcessCmd{Dir: dir, Args: args, Environ: env.Environ}); err != nil {
		return "", errors.Wrap(err, "pip wheel")
	}
	return firstGlobMatch(wheelDir, "*.whl")
}

// BuildSdist shells out to the backend's build_sdist hook via the
// generated script, matching sdist.py's direct hook invocation path (no
// pip involvement is needed for an sdist, unlike BuildWheel).
func (h *HookCaller) BuildSdist(ctx context.Context, env hooks.BuildEnv, dir string) (string, error) {
	backend, err := ReadBuildBackend(env.SourceDir)
	if err != nil {
		return "", err
	}
	if _, err := h.runHook(ctx, env, backend, fmt.Sprintf("build_sdist(%q)", dir), "result"); err != nil {
		return "", errors.Wrap(err, "build_sdist")
	}
	return firstGlobMatch(dir, "*.tar.gz")
}

func firstGlobMatch(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.Errorf("no file matching %s found in %s", pattern, dir)
	}
	return matches[0], nil
}
