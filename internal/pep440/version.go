// Package pep440 implements version parsing and ordering as defined by
// PEP 440, the Python version identification and dependency specification
// standard. It is deliberately independent of the PEP 508 requirement
// grammar in internal/reqs so it can be unit tested in isolation, the way
// a Version concept stands alone from ProjectIdentifier in the teacher's
// gps package.
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a parsed, comparable PEP 440 version.
//
// Total order: epoch, then release segments (padded with zeros to the
// longer length), then pre/post/dev qualifiers, then local segment. A
// version with a pre-release segment sorts before the same release with
// no pre-release; post-releases sort after; dev-releases sort before
// pre-releases of the same release.
type Version struct {
	raw     string
	epoch   int
	release []int

	isPre  bool
	preL   string // "a", "b", "rc"
	preN   int
	isPost bool
	postN  int
	isDev  bool
	devN   int

	local string
}

var versionRe = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<preL>a|b|c|rc|alpha|beta|pre|preview)[-_.]?(?P<preN>[0-9]*))?` +
	`(?P<post>(?:-(?P<postN1>[0-9]+))|(?:[-_.]?(?:post|rev|r)[-_.]?(?P<postN2>[0-9]*)))?` +
	`(?P<dev>[-_.]?dev[-_.]?(?P<devN>[0-9]*))?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?\s*$`)

// normalizePre maps the various spellings PEP 440 allows for pre-release
// labels onto the three canonical ones.
func normalizePre(s string) string {
	switch s {
	case "alpha":
		return "a"
	case "beta":
		return "b"
	case "c", "pre", "preview":
		return "rc"
	default:
		return s
	}
}

// Parse parses a PEP 440 version string.
func Parse(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return Version{}, errors.Errorf("invalid version: %q", s)
	}
	names := versionRe.SubexpNames()
	get := func(name string) string {
		for i, n := range names {
			if n == name && i < len(m) {
				return m[i]
			}
		}
		return ""
	}

	v := Version{raw: s}
	if e := get("epoch"); e != "" {
		n, err := strconv.Atoi(e)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid epoch in %q", s)
		}
		v.epoch = n
	}

	for _, part := range strings.Split(get("release"), ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid release segment in %q", s)
		}
		v.release = append(v.release, n)
	}

	if preL := get("preL"); preL != "" {
		v.isPre = true
		v.preL = normalizePre(preL)
		if n := get("preN"); n != "" {
			v.preN, _ = strconv.Atoi(n)
		}
	}

	if postN1 := get("postN1"); postN1 != "" {
		v.isPost = true
		v.postN, _ = strconv.Atoi(postN1)
	} else if post := get("post"); post != "" {
		v.isPost = true
		if n := get("postN2"); n != "" {
			v.postN, _ = strconv.Atoi(n)
		}
	}

	if dev := get("dev"); dev != "" {
		v.isDev = true
		if n := get("devN"); n != "" {
			v.devN, _ = strconv.Atoi(n)
		}
	}

	v.local = get("local")
	return v, nil
}

// MustParse parses s, panicking on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version in canonical PEP 440 form.
func (v Version) String() string {
	var b strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.epoch)
	}
	for i, seg := range v.release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", seg)
	}
	if v.isPre {
		fmt.Fprintf(&b, "%s%d", v.preL, v.preN)
	}
	if v.isPost {
		fmt.Fprintf(&b, ".post%d", v.postN)
	}
	if v.isDev {
		fmt.Fprintf(&b, ".dev%d", v.devN)
	}
	if v.local != "" {
		fmt.Fprintf(&b, "+%s", v.local)
	}
	return b.String()
}

// IsPrerelease reports whether this version carries a pre-release or dev
// segment, the predicate PEP 440 resolvers use to exclude it by default.
func (v Version) IsPrerelease() bool {
	return v.isPre || v.isDev
}

// Release returns the numeric release segments (e.g. [1, 2, 3] for "1.2.3").
func (v Version) Release() []int {
	out := make([]int, len(v.release))
	copy(out, v.release)
	return out
}

func padded(a, b []int) ([]int, []int) {
	for len(a) < len(b) {
		a = append(a, 0)
	}
	for len(b) < len(a) {
		b = append(b, 0)
	}
	return a, b
}

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater than
// o, per PEP 440 total ordering.
func (v Version) Compare(o Version) int {
	if v.epoch != o.epoch {
		return cmpInt(v.epoch, o.epoch)
	}

	ra, rb := padded(v.release, o.release)
	for i := range ra {
		if ra[i] != rb[i] {
			return cmpInt(ra[i], rb[i])
		}
	}

	vk, vn := v.sortKey()
	ok, on := o.sortKey()
	if vk != ok {
		return cmpInt(vk, ok)
	}
	if vn != on {
		return cmpInt(vn, on)
	}

	if vk == keyPre && vn == on {
		if c := strings.Compare(v.preL, o.preL); c != 0 {
			return c
		}
	}

	// post segment breaks ties among otherwise-equal release+qualifier.
	if v.isPost != o.isPost {
		if v.isPost {
			return 1
		}
		return -1
	}
	if v.isPost && v.postN != o.postN {
		return cmpInt(v.postN, o.postN)
	}

	return strings.Compare(v.local, o.local)
}

// sortKey buckets a version into one of: dev-only, pre-release, final, so
// that dev < pre < final < post within an otherwise-equal release tuple.
const (
	keyDev = iota
	keyPre
	keyFinal
)

func (v Version) sortKey() (int, int) {
	switch {
	case v.isDev && !v.isPre:
		return keyDev, v.devN
	case v.isPre:
		return keyPre, v.preN
	default:
		return keyFinal, 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports value equality (not textual equality).
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Less reports v < o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }
