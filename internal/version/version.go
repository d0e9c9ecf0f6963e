// Package version holds build metadata injected via ldflags.
package version

// Set at build time with:
//
//	-ldflags "-X github.com/halvden/jellywatch/internal/version.Version=v1.2.3
//	          -X github.com/halvden/jellywatch/internal/version.Commit=abc1234"
var (
	Version = "dev"
	Commit  = "unknown"
)
