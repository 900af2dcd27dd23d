// Package version holds build metadata of the opsdeck binary.
package version

import "fmt"

// Set via -ldflags "-X github.com/opsdeck/opsdeck/pkg/version.Version=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns the version with its commit, e.g. "1.4.0 (a1b2c3d)".
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

// Info returns the multi-line version report.
func Info() string {
	return fmt.Sprintf("Version:    %s\nCommit:     %s\nBuild Date: %s\n", Version, Commit, Date)
}
