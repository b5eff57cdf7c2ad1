package resolver

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fromager-go/fromager/internal/reqs"
)

// pythonAbiTags approximates the python-tag/abi-tag components of
// packaging.tags.sys_tags() for the CPython version
// reqs.DefaultEnvironment() describes: the generic "py3" compatibility
// tag, the version-specific "py3NN"/"cp3NN" tags, and both the stable
// "abi3" ABI and the version-specific one.
func pythonAbiTags() (pythonTags, abiTags []string) {
	env := reqs.DefaultEnvironment()
	full := strings.ReplaceAll(env["python_version"], ".", "")
	cpTag := "cp" + full
	return []string{"py3", "py" + full, cpTag}, []string{"abi3", "none", cpTag}
}

func archTag() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

// platformTags approximates the platform-tag component of sys_tags()
// for the host this process is running on.
func platformTags() []string {
	arch := archTag()
	switch runtime.GOOS {
	case "linux":
		return []string{
			"manylinux_2_17_" + arch,
			"manylinux2014_" + arch,
			"manylinux1_" + arch,
			"linux_" + arch,
			"any",
		}
	case "darwin":
		return []string{
			"macosx_11_0_" + arch,
			"macosx_10_9_" + arch,
			"any",
		}
	case "windows":
		win := "win32"
		if arch == "x86_64" {
			win = "win_amd64"
		}
		return []string{win, "any"}
	default:
		return []string{"any"}
	}
}

// SupportedTags enumerates every (python, abi, platform) tag triple
// this host can install, the Go analogue of
// SUPPORTED_TAGS = set(sys_tags()).
func SupportedTags() map[string]bool {
	pyTags, abiTags := pythonAbiTags()
	plats := platformTags()
	out := make(map[string]bool, len(pyTags)*len(abiTags)*len(plats))
	for _, py := range pyTags {
		for _, abi := range abiTags {
			for _, plat := range plats {
				out[py+"-"+abi+"-"+plat] = true
			}
		}
	}
	return out
}

// wheelTagSet expands a wheel filename's (possibly compressed,
// dot-separated) python/abi/platform tag components into every
// concrete tag triple it declares compatibility with, mirroring
// packaging.utils.parse_wheel_filename's frozenset[Tag] expansion.
func wheelTagSet(w reqs.WheelFilename) []string {
	var out []string
	for _, py := range strings.Split(w.PythonTag, ".") {
		for _, abi := range strings.Split(w.ABITag, ".") {
			for _, plat := range strings.Split(w.PlatformTag, ".") {
				out = append(out, fmt.Sprintf("%s-%s-%s", py, abi, plat))
			}
		}
	}
	return out
}

// wheelIsSupported reports whether w's declared tags intersect this
// host's SupportedTags, the same empty-intersection check resolver.py
// applies before ever offering a wheel as a candidate.
func wheelIsSupported(w reqs.WheelFilename, supported map[string]bool) bool {
	for _, tag := range wheelTagSet(w) {
		if supported[tag] {
			return true
		}
	}
	return false
}
