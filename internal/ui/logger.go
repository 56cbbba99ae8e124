// Package ui provides terminal styling and logger setup for semdex.
package ui

import (
	"os"

	"github.com/charmbracelet/log"
)

// SetupLogger configures the process-wide logger. Log lines go to stderr;
// stdout is reserved for command output and MCP stdio framing.
func SetupLogger(debug bool) {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	} else {
		log.SetLevel(log.InfoLevel)
		log.SetReportCaller(false)
	}
}
