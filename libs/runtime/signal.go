package runtime

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext is cancelled by SIGINT or SIGTERM. Default signal handling is restored once
// it fires, so a second signal during graceful shutdown kills the process.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
