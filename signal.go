package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. In-flight work gets a chance to wind down
// after the first signal; the second one is for when that hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	handleSignals(parent, logger,
		func() {
			logger.Info("received signal, initiating graceful shutdown")
			cancel()
		},
		func() {
			logger.Warn("received second signal, forcing exit")
			os.Exit(1)
		},
	)

	return ctx
}

// handleSignals calls first on the first SIGINT/SIGTERM and second on the
// next one. It stops listening when ctx is done or after the second signal.
func handleSignals(ctx context.Context, logger *slog.Logger, first, second func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		for _, fn := range []func(){first, second} {
			select {
			case sig := <-sigCh:
				logger.Debug("signal", slog.String("signal", sig.String()))
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()
}
