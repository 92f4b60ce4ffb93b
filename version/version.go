package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags -X.
var (
	Version = "dev"
	Commit  = ""
)

// Info is the build identity.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

// Get returns the build identity, filling gaps from the embedded build
// info.
func Get() Info {
	return resolve(Version, Commit, debug.ReadBuildInfo)
}

func resolve(version, commit string, read func() (*debug.BuildInfo, bool)) Info {
	info := Info{Version: version, Commit: commit}
	bi, ok := read()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if len(info.Commit) > 7 {
		info.Commit = info.Commit[:7]
	}
	return info
}

// Short renders the identity as version[-commit][-dirty].
func (i Info) Short() string {
	s := i.Version
	if i.Commit != "" {
		s += "-" + i.Commit
	}
	if i.Dirty {
		s += "-dirty"
	}
	return s
}

// String renders the identity with the toolchain.
func (i Info) String() string {
	if i.GoVersion == "" {
		return i.Short()
	}
	return fmt.Sprintf("%s (%s)", i.Short(), i.GoVersion)
}
