// Package version reports what build of sightline is running.
package version

import (
	"runtime"
	"runtime/debug"
)

// Version is the application version, overridden at build time with
// -ldflags "-X sightline/pkg/version.Version=...".
var Version = "v0.1.0"

// Info describes the running binary.
type Info struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Go       string `json:"go"`
}

// Get combines Version with the VCS stamp the toolchain embeds, if any.
func Get() Info {
	info := Info{Version: Version, Go: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
