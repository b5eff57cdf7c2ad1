package hooks

import "github.com/Masterminds/semver"

// StaticRegistry is a closed, process-wide PluginRegistry built once at
// startup from a fixed map of override-module-name -> hook-name -> func:
// a lookup table, never runtime module discovery.
type StaticRegistry struct {
	apiVersionString string
	apiVersion       *semver.Version
	plugins          map[string]map[string]PluginFunc
}

// NewStaticRegistry builds a registry reporting apiVersion (parsed with
// github.com/Masterminds/semver) from its APIVersion method, and serving
// Find lookups out of plugins (override-module-name -> hook name ->
// PluginFunc).
func NewStaticRegistry(apiVersion string, plugins map[string]map[string]PluginFunc) (*StaticRegistry, error) {
	v, err := semver.NewVersion(apiVersion)
	if err != nil {
		return nil, err
	}
	if plugins == nil {
		plugins = map[string]map[string]PluginFunc{}
	}
	return &StaticRegistry{apiVersionString: apiVersion, apiVersion: v, plugins: plugins}, nil
}

// APIVersion reports the hook-ABI version this registry's plugins were
// written against, so a caller wiring plugins in from a different build
// can detect a mismatch before dispatching to them.
func (r *StaticRegistry) APIVersion() (string, *semver.Version) {
	return r.apiVersionString, r.apiVersion
}

// Find looks up pkg's override implementation of method. It returns
// (nil, false) both when pkg has no override module at all and when
// pkg's module exists but doesn't override method, mirroring
// find_override_method's single "not found" outcome for both cases.
func (r *StaticRegistry) Find(pkg, method string) (PluginFunc, bool) {
	methods, ok := r.plugins[pkg]
	if !ok {
		return nil, false
	}
	fn, ok := methods[method]
	return fn, ok
}
