// Package buildinfo derives the fleetver version string from Go build
// metadata, so the binary reports something useful whether it was
// installed from a tag or built from a working tree.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version string for the current build.
//
// For tagged releases (go install from a tag) this is the tag itself.
// Development builds get a pseudo-version from VCS info:
//   - "dev-<hash>" for clean builds
//   - "dev-<hash>-dirty" for builds with uncommitted changes
//   - "dev" if no VCS info is available
//   - "unknown" if build info cannot be read at all
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return devVersion(info)
}

func devVersion(info *debug.BuildInfo) string {
	var revision string
	var modified bool

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}

	if revision == "" {
		return "dev"
	}

	// Standard short-hash length.
	if len(revision) > 12 {
		revision = revision[:12]
	}

	version := fmt.Sprintf("dev-%s", revision)
	if modified {
		version += "-dirty"
	}
	return version
}
