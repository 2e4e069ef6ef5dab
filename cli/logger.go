package cli

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LoggerOption configures a logger.
type LoggerOption func(*logrus.Logger)

// WithOutput sets the logger output.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *logrus.Logger) {
		l.SetOutput(w)
	}
}

// WithLevel sets the log level.
func WithLevel(level logrus.Level) LoggerOption {
	return func(l *logrus.Logger) {
		l.SetLevel(level)
	}
}

// NewLogger creates a standalone logger writing to stderr, for commands
// that must keep stdout clean (--json).
func NewLogger(opts ...LoggerOption) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	for _, opt := range opts {
		opt(logger)
	}
	return logger
}
