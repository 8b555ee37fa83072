// Package logging constructs the single hclog.Logger instance the command
// dispatcher threads explicitly into every core package, mirroring how the
// vault plugin this tool is descended from passes b.Logger() into its path
// handlers rather than reaching for a package-level global.
package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// New builds a logger whose level is derived from the CLI's -v/-vv count:
// 0 -> Warn, 1 -> Info, 2+ -> Debug.
func New(verbosity int) hclog.Logger {
	level := hclog.Warn
	switch {
	case verbosity >= 2:
		level = hclog.Debug
	case verbosity == 1:
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "reserves",
		Level:  level,
		Output: os.Stderr,
	})
}
