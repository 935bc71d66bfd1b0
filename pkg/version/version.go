// Package version holds the build identity of the scanreport binary.
package version

import "runtime/debug"

// Set with -ldflags "-X github.com/Sumatoshi-tech/scanreport/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// develVersion is what the go tool reports for a non-module build.
const develVersion = "(devel)"

// InitBinaryVersion fills unset fields from the embedded build info, so that
// `go install` builds report their module version and VCS revision.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != develVersion {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}
