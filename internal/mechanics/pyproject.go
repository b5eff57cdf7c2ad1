package mechanics

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// BuildBackend is the parsed [build-system] table of a pyproject.toml,
// with pypa/build's own defaults filled in when the table (or parts of
// it) is absent, mirroring dependencies.py's _DEFAULT_BACKEND /
// get_build_backend.
type BuildBackend struct {
	Backend     string
	BackendPath []string
	Requires    []string
}

var defaultBackend = BuildBackend{
	Backend:  "setuptools.build_meta:__legacy__",
	Requires: []string{"setuptools >= 40.8.0"},
}

// ReadBuildBackend loads buildDir/pyproject.toml and extracts its
// [build-system] table, falling back to defaultBackend for any field
// the file doesn't set (or if the file doesn't exist at all, matching
// get_pyproject_contents returning {} for a missing file).
func ReadBuildBackend(buildDir string) (BuildBackend, error) {
	path := filepath.Join(buildDir, "pyproject.toml")
	backend := defaultBackend
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return backend, nil
	}
	if err != nil {
		return backend, errors.Wrapf(err, "reading %s", path)
	}

	tree, err := toml.LoadBytes(data)
	if err != nil {
		return backend, errors.Wrapf(err, "parsing %s", path)
	}

	if v, ok := tree.Get("build-system.build-backend").(string); ok {
		backend.Backend = v
	}
	if raw, ok := tree.Get("build-system.backend-path").([]interface{}); ok {
		backend.BackendPath = toStrings(raw)
	}
	if raw, ok := tree.Get("build-system.requires").([]interface{}); ok {
		backend.Requires = toStrings(raw)
	}
	return backend, nil
}

func toStrings(raw []interface{}) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
