// Package reqs implements the PEP 508 requirement model: canonical package
// names, requirement/specifier/marker parsing, marker evaluation against a
// parent+extras context, and wheel/sdist filename parsing (PEP 427/625).
//
// It plays the role golang-dep's types.go plays for Go import paths
// (ProjectRoot/ProjectIdentifier distinguishing "name" from "where to get
// it"), generalized to PEP 508's name+extras+URL+specifier+marker shape.
package reqs

import (
	"regexp"
	"strings"
)

var canonicalRunRe = regexp.MustCompile(`[-_.]+`)

// Canonicalize implements PEP 503 name canonicalization: lowercase, then
// collapse any run of "-", "_", "." into a single "-".
//
// P1: Canonicalize is idempotent and case-insensitive.
func Canonicalize(name string) string {
	lower := strings.ToLower(name)
	return canonicalRunRe.ReplaceAllString(lower, "-")
}

// OverrideModuleName converts a canonical package name into the filesystem-
// safe "override module name" used for patch directories, settings files,
// and plugin lookups: canonical name with "-" replaced by "_".
func OverrideModuleName(canonicalName string) string {
	return strings.ReplaceAll(canonicalName, "-", "_")
}
