// Package version reports the build version of streamcoord.
package version

import "fmt"

// Version is overridden at build time with
// -ldflags "-X github.com/getpup/streamcoord/pkg/version.Version=v1.2.3".
var Version = "dev"

// Commit is the VCS revision the binary was built from, if known.
var Commit = ""

// String returns the version with the commit appended when set.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
