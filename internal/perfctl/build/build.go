// Package build holds version information set at link time with -ldflags "-X".
package build

var (
	ReleaseVersion = "UNKNOWN"
	GitCommit      = "UNKNOWN"
	BuildTime      = "UNKNOWN"
	GoVersion      = "UNKNOWN"
)
