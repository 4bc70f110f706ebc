// Package perfcontext carries a logrus entry alongside a context.Context, so that every blocking
// engine call logs with the fields of the operation that started it.
package perfcontext

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Context is a context.Context with a logger.
type Context struct {
	context.Context
	Log *logrus.Entry
}

// Background returns an empty context that logs through the standard logger.
func Background() *Context {
	return New(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
}

func New(ctx context.Context, log *logrus.Entry) *Context {
	return &Context{
		Context: ctx,
		Log:     log,
	}
}

// WithTimeout derives a context that expires after timeout and keeps the parent's logger.
func WithTimeout(parent *Context, timeout time.Duration) (*Context, context.CancelFunc) {
	c, cancel := context.WithTimeout(parent.Context, timeout)
	return New(c, parent.Log), cancel
}

// WithLogFields returns a copy of parent whose logger carries fields as well.
func WithLogFields(parent *Context, fields logrus.Fields) *Context {
	return New(parent.Context, parent.Log.WithFields(fields))
}
