package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var (
	mu          sync.Mutex
	verbose     = false
	disableLogs = false
	forceStdErr = false
	colors      = true
	stdout      io.Writer = os.Stdout
	stderr      io.Writer = os.Stderr
	logPrefixes = map[int]string{
		levelDebug: "\033[37m[DBG]\033[0m", // White
		levelInfo:  "\033[36m[INF]\033[0m", // Cyan
		levelWarn:  "\033[33m[WRN]\033[0m", // Yellow
		levelError: "\033[31m[ERR]\033[0m", // Red
	}
	plainPrefixes = map[int]string{
		levelDebug: "[DBG]",
		levelInfo:  "[INF]",
		levelWarn:  "[WRN]",
		levelError: "[ERR]",
	}
)

// SetVerbose sets the logging verbosity. If true, all log levels are displayed.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose logging is enabled.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// DisableLogs disables all logging.
func DisableLogs() {
	mu.Lock()
	defer mu.Unlock()
	disableLogs = true
}

// IsDisabled returns true if logging is disabled.
func IsDisabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return disableLogs
}

// SetForceStdErr sends every level to stderr. Commands that print
// machine-readable output on stdout enable it.
func SetForceStdErr(v bool) {
	mu.Lock()
	defer mu.Unlock()
	forceStdErr = v
}

// SetColors toggles ANSI colored level prefixes.
func SetColors(v bool) {
	mu.Lock()
	defer mu.Unlock()
	colors = v
}

// SetOutput replaces the stdout/stderr writers. Passing nil keeps the current writer.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
}

// Debugf logs a debug message if verbose is true.
func Debugf(format string, args ...interface{}) {
	logMessage(levelDebug, "", format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	logMessage(levelInfo, "", format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) {
	logMessage(levelWarn, "", format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	logMessage(levelError, "", format, args...)
}

// Fatalf logs an error message and exits the program.
func Fatalf(format string, args ...interface{}) {
	logMessage(levelError, "", format, args...)
	os.Exit(1)
}

// Prefixed is a logger that prepends a fixed tag (e.g. "[identity 3]") to every message.
type Prefixed struct {
	prefix string
}

// WithPrefix returns a logger which tags every message with prefix.
func WithPrefix(prefix string) Prefixed {
	return Prefixed{prefix: prefix}
}

// ForIdentity returns the logger used for per-identity messages.
func ForIdentity(index int) Prefixed {
	return WithPrefix(fmt.Sprintf("[identity %d]", index))
}

func (p Prefixed) Debugf(format string, args ...interface{}) {
	logMessage(levelDebug, p.prefix, format, args...)
}

func (p Prefixed) Infof(format string, args ...interface{}) {
	logMessage(levelInfo, p.prefix, format, args...)
}

func (p Prefixed) Warnf(format string, args ...interface{}) {
	logMessage(levelWarn, p.prefix, format, args...)
}

func (p Prefixed) Errorf(format string, args ...interface{}) {
	logMessage(levelError, p.prefix, format, args...)
}

// logMessage formats and writes a log message with the specified log level.
func logMessage(level int, tag string, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if disableLogs || (level == levelDebug && !verbose) {
		return
	}

	prefix := plainPrefixes[level]
	if colors {
		prefix = logPrefixes[level]
	}
	message := fmt.Sprintf(format, args...)
	output := prefix + " "
	if tag != "" {
		output += tag + " "
	}
	output += message + "\n"

	// Write the output to the appropriate stream
	if forceStdErr || level == levelError {
		_, _ = io.WriteString(stderr, output)
	} else {
		_, _ = io.WriteString(stdout, output)
	}
}
