// Package version carries the build version and the version pattern
// matching used to gate agents running unsupported software.
// Patterns look like "default", "1.x", "1.4.x", "1.4.2" or "1.4.2-cuda".
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is the build version, overridden at build time via -ldflags.
var Version = "dev"

// PatternType classifies how strictly a pattern matches.
type PatternType int

const (
	// PatternDefault matches any version string, including unparseable ones.
	PatternDefault PatternType = iota
	// PatternMajor matches any version with the same major (e.g. "1.x").
	PatternMajor
	// PatternMinor matches any version with the same major.minor (e.g. "1.4.x").
	PatternMinor
	// PatternExact matches an exact version, any suffix (e.g. "1.4.2").
	PatternExact
	// PatternExactSuffix matches an exact version including suffix (e.g. "1.4.2-cuda").
	PatternExactSuffix
)

// Pattern is a parsed version constraint.
type Pattern struct {
	Raw    string
	Type   PatternType
	Major  *int
	Minor  *int
	Patch  *int
	Suffix string
}

var (
	majorWildcardRegex = regexp.MustCompile(`^(\d+)\.x$`)
	minorWildcardRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.x$`)
	exactRegex         = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)
	// Suffixes hang off "-" or "+"; hashcat-style betas report "7.1.2+338.7".
	exactSuffixRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)[-+](.+)$`)
)

// ParsePattern parses a constraint string into a Pattern.
func ParsePattern(pattern string) (*Pattern, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty version pattern")
	}

	normalized := strings.ToLower(pattern)
	if normalized == "default" {
		return &Pattern{Raw: pattern, Type: PatternDefault}, nil
	}

	if m := majorWildcardRegex.FindStringSubmatch(normalized); m != nil {
		major, _ := strconv.Atoi(m[1])
		return &Pattern{Raw: pattern, Type: PatternMajor, Major: &major}, nil
	}

	if m := minorWildcardRegex.FindStringSubmatch(normalized); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		return &Pattern{Raw: pattern, Type: PatternMinor, Major: &major, Minor: &minor}, nil
	}

	if m := exactSuffixRegex.FindStringSubmatch(pattern); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		patch, _ := strconv.Atoi(m[3])
		return &Pattern{Raw: pattern, Type: PatternExactSuffix, Major: &major, Minor: &minor, Patch: &patch, Suffix: m[4]}, nil
	}

	if m := exactRegex.FindStringSubmatch(pattern); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		patch, _ := strconv.Atoi(m[3])
		return &Pattern{Raw: pattern, Type: PatternExact, Major: &major, Minor: &minor, Patch: &patch}, nil
	}

	return nil, fmt.Errorf("invalid version pattern: %q", pattern)
}

// MustParsePattern is ParsePattern for known-good literals. Panics on error.
func MustParsePattern(pattern string) *Pattern {
	p, err := ParsePattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string { return p.Raw }

// IsDefault reports whether the pattern accepts everything.
func (p *Pattern) IsDefault() bool { return p.Type == PatternDefault }

// Matches reports whether an agent-reported version string satisfies the
// pattern. Unparseable version strings only satisfy the default pattern;
// an agent that cannot state its version does not get past a constraint.
func (p *Pattern) Matches(versionStr string) bool {
	if p.IsDefault() {
		return true
	}

	v, err := Parse(versionStr)
	if err != nil {
		return false
	}

	switch p.Type {
	case PatternMajor:
		return v.Major == *p.Major
	case PatternMinor:
		return v.Major == *p.Major && v.Minor == *p.Minor
	case PatternExact:
		return v.Major == *p.Major && v.Minor == *p.Minor && v.Patch == *p.Patch
	case PatternExactSuffix:
		return v.Major == *p.Major && v.Minor == *p.Minor && v.Patch == *p.Patch && v.Suffix == p.Suffix
	default:
		return false
	}
}

// Parsed is a concrete version string broken into components.
type Parsed struct {
	Raw    string
	Major  int
	Minor  int
	Patch  int
	Suffix string
}

// Parse parses a concrete version string, "major.minor.patch" with an
// optional "-suffix".
func Parse(versionStr string) (*Parsed, error) {
	versionStr = strings.TrimSpace(versionStr)
	if versionStr == "" {
		return nil, fmt.Errorf("empty version string")
	}

	if m := exactSuffixRegex.FindStringSubmatch(versionStr); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		patch, _ := strconv.Atoi(m[3])
		return &Parsed{Raw: versionStr, Major: major, Minor: minor, Patch: patch, Suffix: m[4]}, nil
	}

	if m := exactRegex.FindStringSubmatch(versionStr); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		patch, _ := strconv.Atoi(m[3])
		return &Parsed{Raw: versionStr, Major: major, Minor: minor, Patch: patch}, nil
	}

	return nil, fmt.Errorf("invalid version string: %q", versionStr)
}

func (v *Parsed) String() string { return v.Raw }

// Compare orders two versions. Returns -1, 0 or 1. Equal numeric versions
// fall back to comparing suffixes alphabetically.
func (v *Parsed) Compare(other *Parsed) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	if v.Suffix < other.Suffix {
		return -1
	}
	if v.Suffix > other.Suffix {
		return 1
	}
	return 0
}
