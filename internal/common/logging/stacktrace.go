// Package logging attaches pkg/errors stack traces to log entries.
package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const Stacktrace = "stacktrace"

// Unexported but considered part of the stable interface of pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace returns logger with err and, if one was recorded, the deepest stack trace of err
// as fields.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack follows the wrap chain of err and returns the stack trace recorded closest to where
// the error was created, or nil if none was recorded.
func ExtractStack(err error) errors.StackTrace {
	var deepest errors.StackTrace
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			deepest = tracer.StackTrace()
		}
		err = errors.Unwrap(err)
	}
	return deepest
}
