package buildinfo

import (
	"fmt"

	"github.com/cordum/stageflow/core/infra/logging"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a single-line build summary.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", Version, Commit, Date)
}

// Fields returns the build summary as logging key/value pairs.
func Fields() []any {
	return []any{"version", Version, "commit", Commit, "date", Date}
}

// Log writes the build summary with the service name.
func Log(service string) {
	logging.Info(service, "build", Fields()...)
}
