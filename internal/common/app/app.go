package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/perfreporter/perfreporter/internal/common/perfcontext"
)

// CreateContextWithShutdown returns a context that will report done when a SIGINT or SIGTERM is received.
// The returned context logs through the standard logrus logger.
func CreateContextWithShutdown() (*perfcontext.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return perfcontext.New(ctx, logrus.NewEntry(logrus.StandardLogger())), cancel
}
