// Package version holds build metadata, set with -ldflags -X at release time.
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
