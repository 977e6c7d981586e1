// Package ui provides terminal UI components and styling for ragu.
package ui

import (
	"os"

	"github.com/charmbracelet/log"
)

// InitLogger configures the process-wide logger. Output goes to stderr so
// stdout stays reserved for command results and the MCP wire protocol.
func InitLogger(debug bool) {
	log.SetOutput(os.Stderr)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)

	if debug {
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug logging enabled")
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
