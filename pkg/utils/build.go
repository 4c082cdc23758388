// Build information is injected through ldflags, e.g.
// go build -ldflags "-X github.com/nobletooth/seqlist/pkg/utils.Version=v0.1.0" ./cmd/seqlist
// CAUTION: This file shouldn't be removed or else flags wouldn't be set properly.

package utils

import (
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/mod/semver"
)

const unknownBuildValue = "unknown"

var (
	TestMode   string // Should be true when running tests.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

func init() {
	StartTime = time.Now()

	// If build info is not set, make that clear.
	if Version == "" {
		Version = unknownBuildValue
	}
	if Commit == "" {
		Commit = unknownBuildValue
	}
	if BuildTime == "" {
		BuildTime = unknownBuildValue
	}
	if len(TestMode) > 0 {
		if isTestMode, err := strconv.ParseBool(TestMode); err == nil {
			IsTestMode = isTestMode
		} else {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false", "error", err)
		}
	}
}

// HasReleaseVersion returns true when the binary was built with a semantic version, e.g. v1.2.3.
func HasReleaseVersion() bool {
	return semver.IsValid(Version)
}

// BuildInfo returns the build information as slog attributes.
func BuildInfo() []any {
	return []any{"version", Version, "commit", Commit, "build", BuildTime, "uptime", time.Since(StartTime).String()}
}
