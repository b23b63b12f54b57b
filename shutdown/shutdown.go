// Package shutdown turns interrupt and terminate signals into context
// cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Context is cancelled on the first interrupt. The returned stop releases
// the signal handler.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	Notify(ch)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}
