// Package version reports build metadata injected with -ldflags.
package version

import (
	"runtime"
	"time"
)

var (
	// Version is the semantic version (set via ldflags during build)
	Version = "dev"

	// GitCommit is the git commit hash (set via ldflags during build)
	GitCommit = "unknown"

	// BuildTime is the build timestamp (set via ldflags during build)
	BuildTime = "unknown"
)

// Info describes the running service
type Info struct {
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	GitCommit   string    `json:"git_commit"`
	BuildTime   string    `json:"build_time"`
	GoVersion   string    `json:"go_version"`
	Platform    string    `json:"platform"`
	ServerTime  time.Time `json:"server_time"`
	Migrations  int       `json:"migrations_applied"`
	Environment string    `json:"environment"`
}

// Get returns the current version information. migrations is the number of
// applied schema migrations.
func Get(env, service string, migrations int) Info {
	if service == "" {
		service = "devmarket"
	}
	return Info{
		Service:     service,
		Version:     Version,
		GitCommit:   GitCommit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		ServerTime:  time.Now().UTC(),
		Migrations:  migrations,
		Environment: env,
	}
}
