package util

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// CloseResource closes c and logs, rather than returns, a failure. It is meant for deferred
// cleanup where the caller already has a result to return.
func CloseResource(logger *log.Entry, name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.WithError(err).Warnf("failed to close %s cleanly", name)
	}
}
