package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals cancels the returned context on the first SIGINT or SIGTERM.
// A second signal exits the process without waiting for the drain.
func WithSignals(ctx context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	return withSignals(ctx, log, func() { os.Exit(1) }, syscall.SIGINT, syscall.SIGTERM)
}

func withSignals(ctx context.Context, log *slog.Logger, exit func(), sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)

	go func() {
		sig := <-ch
		log.Info("shutdown requested", "signal", sig.String())
		cancel()

		sig = <-ch
		log.Warn("second signal, exiting now", "signal", sig.String())
		exit()
	}()

	return ctx, cancel
}
