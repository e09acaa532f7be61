// Package version holds build metadata set via -ldflags.
package version

import "runtime/debug"

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns "version (commit) built at time". When the commit was not set
// at link time, the VCS revision recorded by the Go toolchain is used.
func Info() string {
	commit := GitCommit
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			}
		}
	}
	return Version + " (" + commit + ") built at " + BuildTime
}
