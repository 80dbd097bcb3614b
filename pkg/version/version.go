// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() *Info {
	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i *Info) String() string {
	return fmt.Sprintf("docsync %s (%s) built %s %s", i.Version, i.GitCommit, i.BuildTime, i.Platform)
}

// UserAgent identifies the client to document servers
func UserAgent() string {
	return fmt.Sprintf("docsync/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// Headers and Rows render the info as a key/value table
func (i *Info) Headers() []string {
	return []string{"Key", "Value"}
}

func (i *Info) Rows() [][]string {
	return [][]string{
		{"version", i.Version},
		{"commit", i.GitCommit},
		{"built", i.BuildTime},
		{"go", i.GoVersion},
		{"platform", i.Platform},
	}
}

func (i *Info) EmptyMessage() string {
	return ""
}
