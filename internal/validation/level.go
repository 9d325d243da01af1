// Package validation generates sandbox test programs, interprets their
// output, and statically scans package sources for suspicious patterns.
package validation

import "fmt"

// Level is the validation strictness requested for a package.
type Level string

const (
	// LevelBasic runs the import test only.
	LevelBasic Level = "basic"
	// LevelStandard adds metadata and category-specific functional checks.
	LevelStandard Level = "standard"
	// LevelComprehensive runs everything: functional, performance, and the
	// static security scan.
	LevelComprehensive Level = "comprehensive"
	// LevelSecurity focuses on the static security scan.
	LevelSecurity Level = "security"
	// LevelPerformance focuses on import-time benchmarking.
	LevelPerformance Level = "performance"
)

// ParseLevel converts a config string into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelBasic, LevelStandard, LevelComprehensive, LevelSecurity, LevelPerformance:
		return Level(s), nil
	}
	return "", fmt.Errorf("unknown validation level %q", s)
}

// includesCategory reports whether category-specific functional fragments
// are part of this level.
func (l Level) includesCategory() bool {
	return l == LevelStandard || l == LevelComprehensive
}

// includesMetadata reports whether the version/attribute metadata fragment
// is part of this level.
func (l Level) includesMetadata() bool {
	return l == LevelStandard || l == LevelComprehensive
}

// includesPerformance reports whether the import-time fragment is part of
// this level.
func (l Level) includesPerformance() bool {
	return l == LevelPerformance || l == LevelComprehensive
}

// IncludesSecurityScan reports whether the static security scan runs for
// this level. The scan executes host-side against the sandbox's installed
// source tree, not inside the generated program.
func (l Level) IncludesSecurityScan() bool {
	return l == LevelSecurity || l == LevelComprehensive
}
