package version

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X .../version.Version=v1.0.0" and friends.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const service = "mission-planner"

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get reports the linker-provided build info. Without ldflags the commit and
// build time fall back to the VCS stamp of the binary, if any.
func Get() Info {
	info := Info{
		Service:   service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromVCS(&info, bi.Settings)
	}
	return info
}

func fillFromVCS(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		}
	}
}

// UserAgent identifies the planner in outbound requests.
func UserAgent() string {
	return service + "/" + Version
}
