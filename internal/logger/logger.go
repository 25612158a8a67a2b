/**
 * @description
 * Structured logger for the ticker analysis backend.
 * Info messages go to stdout, errors to stderr, so container log collectors don't label
 * routine output as failures.
 *
 * @dependencies
 * - github.com/sirupsen/logrus
 */

package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	// InfoLogger writes to stdout
	InfoLogger *logrus.Logger
	// ErrorLogger writes to stderr (for actual errors)
	ErrorLogger *logrus.Logger
)

func init() {
	InfoLogger = New(os.Stdout)
	ErrorLogger = New(os.Stderr)
}

// SetLevel adjusts both loggers, e.g. "debug" in development
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	InfoLogger.SetLevel(lvl)
	ErrorLogger.SetLevel(lvl)
}

// Debug logs a debug message to stdout
func Debug(format string, v ...interface{}) {
	InfoLogger.Debugf(format, v...)
}

// Info logs an info message to stdout
func Info(format string, v ...interface{}) {
	InfoLogger.Infof(format, v...)
}

// Warn logs a warning to stdout
func Warn(format string, v ...interface{}) {
	InfoLogger.Warnf(format, v...)
}

// Error logs an error message to stderr
func Error(format string, v ...interface{}) {
	ErrorLogger.Errorf(format, v...)
}

// Fatal logs an error and exits
func Fatal(format string, v ...interface{}) {
	ErrorLogger.Fatalf(format, v...)
}

// WithFields returns an entry carrying structured context.
// Entries log to stdout; use ErrorFields for failures.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return InfoLogger.WithFields(fields)
}

// ErrorFields returns an entry carrying structured context that logs to stderr
func ErrorFields(fields logrus.Fields) *logrus.Entry {
	return ErrorLogger.WithFields(fields)
}

// New creates a new logger that writes to the specified writer
func New(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}
