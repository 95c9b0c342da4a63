package runner

import (
	"regexp"
	"strings"
)

// packageNameRe follows PyPI naming rules (PEP 508): ASCII letters, digits,
// and runs of . _ - between them.
var packageNameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// moduleNameRe matches a dotted path of Python identifiers (ASCII only —
// that's what people actually put after `python -m`).
var moduleNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var normalizeRe = regexp.MustCompile(`[-_.]+`)

// ValidPackageName reports whether name is a syntactically valid PyPI
// package name. Existence on the index is checked separately (and only
// when verify-packages is enabled).
func ValidPackageName(name string) bool {
	return packageNameRe.MatchString(name)
}

// ValidModuleName reports whether name is a valid dotted module path.
func ValidModuleName(name string) bool {
	return moduleNameRe.MatchString(name)
}

// NormalizeName canonicalizes a package name per PEP 503: lowercase, with
// runs of dots, dashes and underscores collapsed to a single dash. Used as
// the hit-counter key so "Django" and "django" count together.
func NormalizeName(name string) string {
	return normalizeRe.ReplaceAllString(strings.ToLower(name), "-")
}
