// Package version holds build identification injected via ldflags.
package version

import "fmt"

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build identification for --version style output.
func String() string {
	return fmt.Sprintf("rumble %s (%s, built %s)", Version, GitSHA, BuildTime)
}
