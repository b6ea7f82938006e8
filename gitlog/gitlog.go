// Package gitlog provides the structured logging used across this module:
// a package-level logrus.Logger plus Wrapf, a caller-location error wrapper
// that logs an error before returning it.
package gitlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
)

// std is the package-level logger every subsystem logs through. Tests and
// cmd/gitcored may reconfigure it via SetLevel/SetOutput/SetJSON.
var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel parses level (logrus syntax: "debug", "info", "warn", ...) and
// applies it to the package logger, falling back to Info on a bad value.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	std.SetLevel(lvl)
}

// SetOutput redirects the package logger, e.g. to a log file from config.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// SetJSON switches between the default text formatter and JSON output.
func SetJSON(enabled bool) {
	if enabled {
		std.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warnf(format string, args ...any)  { std.Warnf(format, args...) }
func Errorf(format string, args ...any) { std.Errorf(format, args...) }

// WithFields starts a structured entry, e.g.
// gitlog.WithFields(gitlog.Fields{"ref": name}).Info("fast-forward")
type Fields = logrus.Fields

func WithFields(fields Fields) *logrus.Entry {
	return std.WithFields(fields)
}

func location(skip int) (string, int) {
	pc, _, line, ok := runtime.Caller(skip)
	if !ok {
		return "?", line
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "?", line
	}
	return fn.Name(), line
}

// Wrapf logs format at Error level tagged with the caller's location and
// returns it as a plain error, routing every user-facing error through the
// logger once before propagating it.
func Wrapf(format string, a ...any) error {
	fn, line := location(2)
	msg := fmt.Sprintf(format, a...)
	std.WithFields(Fields{"func": fn, "line": line}).Error(msg)
	return errors.New(msg)
}
