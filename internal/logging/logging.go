// Package logging builds the process logger. Stdout carries the JSON-RPC
// stream, so logs always go to stderr or an explicit writer.
package logging

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// New creates a leveled console logger writing to w.
func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           lvl,
		Prefix:          "mermaid-mcp",
	}), nil
}

// Level resolves the effective level from the configured value and the
// --verbose and --quiet switches. Quiet wins over verbose.
func Level(configured string, verbose, quiet bool) string {
	switch {
	case quiet:
		return "error"
	case verbose:
		return "debug"
	default:
		return configured
	}
}

// Component returns a child logger tagged with the component name.
func Component(logger *log.Logger, name string) *log.Logger {
	return logger.With("component", name)
}
