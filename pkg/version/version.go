// Package version reports the build of the running tc binary.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/RuFFyGTLP/TC/pkg/version.Version=...".
// Unset values are filled from the module build info when available.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	BuildTime string `json:"buildTime"`
	GitCommit string `json:"gitCommit"`
	GoVersion string `json:"goVersion"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	once    sync.Once
	current Build
)

// Get returns the build description, resolved once.
func Get() Build {
	once.Do(func() {
		current = resolve(Build{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
			GoVersion: GoVersion,
		}, readBuildInfo)
	})
	return current
}

var readBuildInfo = debug.ReadBuildInfo

func resolve(b Build, read func() (*debug.BuildInfo, bool)) Build {
	info, ok := read()
	if !ok {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.GitCommit == "unknown" {
				b.GitCommit = shortRevision(s.Value)
			}
		case "vcs.time":
			if b.BuildTime == "unknown" {
				b.BuildTime = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String returns a one-line version banner.
func String() string {
	b := Get()
	s := "tc " + b.Version + " (commit " + b.GitCommit
	if b.Modified {
		s += "-dirty"
	}
	return s + ", built " + b.BuildTime + ", " + b.GoVersion + ")"
}
