package logutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	logger  = log.NewWithOptions(os.Stderr, log.Options{Prefix: "polybot", ReportTimestamp: true, Level: log.InfoLevel})
	verbose bool
	mu      sync.RWMutex
)

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

// SetLevel sets the global logging level by name (debug, info, warn, error, fatal).
func SetLevel(name string) error {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return fmt.Errorf("invalid log level %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	verbose = level <= log.DebugLevel
	logger.SetLevel(level)
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
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

// Leveled adapts the shared logger to the key/value LeveledLogger interface
// used by hashicorp/go-retryablehttp.
type Leveled struct {
	Prefix string
}

func (l Leveled) Error(msg string, keysAndValues ...any) {
	logger.WithPrefix(l.prefix()).Error(msg, keysAndValues...)
}

func (l Leveled) Info(msg string, keysAndValues ...any) {
	logger.WithPrefix(l.prefix()).Debug(msg, keysAndValues...)
}

func (l Leveled) Debug(msg string, keysAndValues ...any) {
	logger.WithPrefix(l.prefix()).Debug(msg, keysAndValues...)
}

func (l Leveled) Warn(msg string, keysAndValues ...any) {
	logger.WithPrefix(l.prefix()).Warn(msg, keysAndValues...)
}

func (l Leveled) prefix() string {
	if l.Prefix == "" {
		return "polybot"
	}
	return "polybot/" + l.Prefix
}
