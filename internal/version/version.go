// Package version holds build information injected via ldflags:
//
//	go build -ldflags "-X rollcall/internal/version.Version=v0.3.0 \
//	  -X rollcall/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X rollcall/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns a one-line version description.
func String() string {
	return fmt.Sprintf("rollcall %s (%s) built %s %s/%s",
		Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}
