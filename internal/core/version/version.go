// Package version reports the build of the running binary
package version

// BuildInfo holds version information about the service build.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information for service. version, commit and date
// are set at build time:
//
//	-ldflags "-X 'hma/internal/core/version.version=v0.3.0' -X 'hma/internal/core/version.commit=abcd'"
func Info(service string) BuildInfo {
	return BuildInfo{
		Service: service,
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// String is the one line form printed by the cli
func (b BuildInfo) String() string {
	return b.Service + " " + b.Version + " (" + b.Commit + ", " + b.Date + ")"
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
