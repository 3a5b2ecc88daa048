// Package version carries build identification stamped in at link time.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Get returns the build info for the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
}

// String returns a single-line rendering suitable for logs.
func (i Info) String() string {
	return fmt.Sprintf("%s (build %s, commit %s)", i.Version, i.BuildTime, i.GitCommit)
}
