package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/orderbot/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/orderbot/internal/version.Commit=abc123
//	  -X github.com/soyeahso/orderbot/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("orderbot %s (commit: %s, built: %s, %s/%s)",
		Version, short(resolvedCommit()), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies orderbot in outbound API calls.
func UserAgent() string {
	return "orderbot/" + Version
}

// resolvedCommit falls back to the VCS revision stamped by the Go toolchain
// when no commit was injected.
func resolvedCommit() string {
	if Commit != "unknown" {
		return Commit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return Commit
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
