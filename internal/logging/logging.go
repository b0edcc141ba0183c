// Package logging provides the leveled, optionally colorized log output for
// the CLI. Colors apply to the level tag only; --logfile implies no color.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Options configures the process-wide logger.
type Options struct {
	// LogFile redirects output to a file (append mode). Disables color.
	LogFile string
	// NoColor disables colored level tags.
	NoColor bool
	// Debug enables debug-level output. The DEBUG environment variable
	// (1/true/yes) enables it as well.
	Debug bool
}

var (
	logger = log.New(os.Stdout, "", log.LstdFlags)
	debug  bool

	debugTag = color.New(color.FgCyan).Sprint("DEBUG")
	infoTag  = color.New(color.FgGreen).Sprint("INFO ")
	warnTag  = color.New(color.FgYellow).Sprint("WARN ")
	errorTag = color.New(color.FgRed).Sprint("ERROR")
)

// Setup initializes the logger. Safe to call once at startup, before any
// log output.
func Setup(opts Options) error {
	out := os.Stdout
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open logfile: %w", err)
		}
		out = f
		opts.NoColor = true
	}

	if opts.NoColor {
		color.NoColor = true
		debugTag, infoTag, warnTag, errorTag = "DEBUG", "INFO ", "WARN ", "ERROR"
	}

	debug = opts.Debug || envDebug()
	logger = log.New(out, "", log.LstdFlags)
	return nil
}

func envDebug() bool {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Debugf logs a debug-level message. Suppressed unless debug is enabled.
func Debugf(format string, args ...any) {
	if debug {
		logger.Printf("%s %s", debugTag, fmt.Sprintf(format, args...))
	}
}

// Infof logs an info-level message.
func Infof(format string, args ...any) {
	logger.Printf("%s %s", infoTag, fmt.Sprintf(format, args...))
}

// Warnf logs a warning.
func Warnf(format string, args ...any) {
	logger.Printf("%s %s", warnTag, fmt.Sprintf(format, args...))
}

// Errorf logs an error.
func Errorf(format string, args ...any) {
	logger.Printf("%s %s", errorTag, fmt.Sprintf(format, args...))
}
