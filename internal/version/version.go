// Package version validates and parses fleet release version strings.
//
// A fleet version is the literal form "v<major>.<minor>.<patch>" where each
// component is a non-negative integer with no redundant leading zero. This
// deliberately excludes prerelease and build-metadata suffixes: device
// fleets only ever track published triples.
//
// Validation is pure and has no dependencies on the release list; ordering
// between versions is owned by the release cache, which trusts the
// upstream-provided order instead of comparing triples numerically.
package version

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// MaxLen is the longest version string accepted. Anything longer is
// treated as suspicious input and rejected with a hard error rather
// than a plain "invalid" verdict, so callers can tell malformed
// requests from possibly abusive ones.
const MaxLen = 20

// pattern matches the accepted textual shape. Leading-zero and bounds
// checking happen in the semver strict parse afterwards.
var pattern = regexp.MustCompile(`^v[0-9]+\.[0-9]+\.[0-9]+$`)

// Version is a parsed release version triple.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// String returns the canonical textual form, e.g. "v1.0.2".
func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// LengthError reports input exceeding MaxLen. It is distinct from a
// false IsValid verdict: oversized input is an error, not merely
// malformed.
type LengthError struct {
	Length int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("version string is too long: %d characters (limit %d)", e.Length, MaxLen)
}

// ParseError reports input that does not form a valid version.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// IsValid reports whether text is a well-formed version string.
// It returns a *LengthError when the input exceeds MaxLen; every
// other rejection is a plain false with a nil error.
func IsValid(text string) (bool, error) {
	if len(text) > MaxLen {
		return false, &LengthError{Length: len(text)}
	}
	if _, err := Parse(text); err != nil {
		return false, nil
	}
	return true, nil
}

// Parse validates text and returns its structural triple.
// Returns *LengthError for oversized input and *ParseError otherwise.
func Parse(text string) (Version, error) {
	if len(text) > MaxLen {
		return Version{}, &LengthError{Length: len(text)}
	}
	if !pattern.MatchString(text) {
		return Version{}, &ParseError{Input: text, Reason: "must match v<major>.<minor>.<patch>"}
	}

	// The strict semver parse supplies the remaining checks the shape
	// match cannot: leading-zero components and integer overflow.
	sv, err := semver.StrictNewVersion(text[1:])
	if err != nil {
		return Version{}, &ParseError{Input: text, Reason: err.Error()}
	}

	return Version{Major: sv.Major(), Minor: sv.Minor(), Patch: sv.Patch()}, nil
}
