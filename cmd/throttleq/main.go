// throttleq - rate-limited parallel API request processor
package main

import (
	"os"

	"github.com/throttleq/throttleq/internal/cli"
	"github.com/throttleq/throttleq/internal/version"
)

// Version information - overridden via LDFLAGS for release builds
var (
	Version   = "v1.2.0"
	BuildTime = "2026-08-30"
)

func main() {
	// Set version in version package (canonical source for all packages)
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
