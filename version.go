package subwire

import (
	"fmt"
	"runtime"
	"strings"
)

// Build metadata, normally stamped with -ldflags "-X".
var (
	Version   = "v0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GetVersion describes this build and the protocol versions it can negotiate.
func GetVersion() string {
	return fmt.Sprintf("subwire %s (commit %s, built %s, %s) protocol %s to %s",
		Version, GitCommit, BuildDate, runtime.Version(),
		knownVersions[0], knownVersions[len(knownVersions)-1])
}

// UserAgent is the User-Agent header sent when the caller sets none, so
// server logs can tell client builds apart.
func UserAgent() string {
	return "subwire/" + strings.TrimPrefix(Version, "v")
}
