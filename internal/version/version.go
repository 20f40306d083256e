// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return "audiomon " + Short() + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// Short returns the release version, falling back to the module version for
// `go install` builds that were not stamped.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
