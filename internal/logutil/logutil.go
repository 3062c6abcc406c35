package logutil

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

var (
	logger  = log.NewWithOptions(os.Stderr, log.Options{Prefix: "crosspub", ReportTimestamp: true, Level: log.InfoLevel})
	verbose bool
	mu      sync.RWMutex
)

func init() {
	SetFormat("auto")
}

// SetVerbose adjusts the global logging level.
func SetVerbose(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enable
	if enable {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetFormat selects the output format: "text", "json", or "auto", which
// picks text on a terminal and JSON otherwise.
func SetFormat(format string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "text":
		logger.SetFormatter(log.TextFormatter)
	default:
		if term.IsTerminal(int(os.Stderr.Fd())) {
			logger.SetFormatter(log.TextFormatter)
		} else {
			logger.SetFormatter(log.JSONFormatter)
		}
	}
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Logger exposes the shared logger for components that log structured fields.
func Logger() *log.Logger {
	return logger
}

// Debugf logs a debug message when verbose logging is enabled.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Infof logs an informational message.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}
