package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/propbot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/propbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/propbot/core/buildinfo.Date=2026-10-18T12:00:00Z'
//
// Default values are useful for local dev.
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders the build metadata as a single token for the health endpoint.
func String() string {
	if Date == "" {
		return Version + "+" + Commit
	}
	return Version + "+" + Commit + "@" + Date
}
