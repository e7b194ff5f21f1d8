package log

import (
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/gookit/color"
)

// Global configuration variables
var (
	DEBUG  bool      = false     // Global debug flag
	Output io.Writer = os.Stderr // Default output writer
)

// Log is a namespaced logger. Debug output is gated on either the
// global DEBUG flag or a matching DEBUG environment variable pattern
// (e.g. DEBUG=socket.io:* enables every socket.io component).
type Log struct {
	*log.Logger

	prefix          atomic.Pointer[string]
	namespaceRegexp *regexp.Regexp
}

// NewLog creates a new logger instance with the specified prefix.
func NewLog(prefix string) *Log {
	l := &Log{
		Logger: log.New(Output, "", 0),
	}

	l.prefix.Store(&prefix)

	if debug := os.Getenv("DEBUG"); debug != "" {
		l.namespaceRegexp = regexp.MustCompile("^" + strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(debug)), `\*`, `.*`) + "$")
	}

	return l
}

// Prefix returns the namespace prefix of this logger.
func (d *Log) Prefix() string {
	if p := d.prefix.Load(); p != nil {
		return *p
	}
	return ""
}

func (d *Log) debugEnabled() bool {
	if DEBUG {
		return true
	}
	if d.namespaceRegexp != nil {
		return d.namespaceRegexp.MatchString(d.Prefix())
	}
	return false
}

// Debug prints a formatted message when debugging is enabled for this
// logger's namespace.
func (d *Log) Debug(message string, args ...any) {
	if !d.debugEnabled() {
		return
	}
	d.Logger.Println(color.Debug.Sprint(d.Prefix()+" ") + color.Sprintf(message, args...))
}

// Error prints a formatted error message. Errors are not gated.
func (d *Log) Error(message string, args ...any) {
	d.Logger.Println(color.Error.Sprint(d.Prefix()+" ") + color.Sprintf(message, args...))
}

// Warning prints a formatted warning message. Warnings are not gated.
func (d *Log) Warning(message string, args ...any) {
	d.Logger.Println(color.Warn.Sprint(d.Prefix()+" ") + color.Sprintf(message, args...))
}
