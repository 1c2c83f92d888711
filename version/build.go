package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// These variables are set at build time using -ldflags
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info represents build information for the portforge binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	IsDirty   bool   `json:"is_dirty"`
}

// Build returns the build information, filling gaps from the Go build info.
func Build() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = buildInfo.GoVersion
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = setting.Value
			}
		case "vcs.modified":
			info.IsDirty = setting.Value == "true"
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = setting.Value
			}
		}
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}
	return info
}

// String renders the info as "portforge <version> (<commit>[-dirty], <go>)".
func (i Info) String() string {
	var meta []string
	if i.GitCommit != "" {
		c := i.GitCommit
		if i.IsDirty {
			c += "-dirty"
		}
		meta = append(meta, c)
	}
	if i.BuildTime != "" {
		meta = append(meta, "built "+i.BuildTime)
	}
	if i.GoVersion != "" {
		meta = append(meta, i.GoVersion)
	}
	if len(meta) == 0 {
		return "portforge " + i.Version
	}
	return fmt.Sprintf("portforge %s (%s)", i.Version, strings.Join(meta, ", "))
}
