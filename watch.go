package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-push/internal/feed"
	"github.com/tonimelisma/onedrive-push/internal/journal"
	isync "github.com/tonimelisma/onedrive-push/internal/sync"
)

const (
	feedReadHeaderTimeout = 10 * time.Second
	feedShutdownTimeout   = 5 * time.Second
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a directory and push every change to OneDrive",
		Long: `Watch a local directory and mirror its changes to OneDrive until
interrupted. The directory defaults to sync.local_dir.

The first SIGINT or SIGTERM stops watching and cancels in-flight uploads;
a second one exits immediately.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{localDirArgAnnotation: "true"},
		RunE:        runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger

	if cfg.Sync.LocalDir == "" {
		return fmt.Errorf("no directory to watch: pass one or set sync.local_dir")
	}

	releasePID, err := writePIDFile(cfg.PIDPath())
	if err != nil {
		return err
	}
	defer releasePID()

	ctx := shutdownContext(cmd.Context(), logger)

	session, err := NewDriveSession(ctx, cfg, cc.Env, logger)
	if err != nil {
		return err
	}

	jr, err := journal.Open(ctx, cfg.JournalPath(), "watch", logger)
	if err != nil {
		return err
	}
	defer jr.Close()

	watcher, err := isync.NewWatcher(isync.WatcherOptions{
		Root:        cfg.Sync.LocalDir,
		InitialScan: cfg.Sync.InitialScan,
		Debounce:    cfg.DebounceDuration(),
		Filter:      isync.NewFilter(cfg.Sync.Ignore, logger),
	}, logger)
	if err != nil {
		return err
	}

	resolver := isync.NewResolver(session.Ops, isync.NewWorkGate(cfg.Transfers.MaxConcurrency), logger)

	sink := &recordSink{
		out:     os.Stdout,
		json:    cc.Flags.JSON,
		quiet:   cc.Flags.Quiet,
		journal: jr,
		logger:  logger,
	}

	// Cancelled once the record stream has drained, so the feed stops even
	// when the watcher ends on its own.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Feed.Listen != "" {
		hub := feed.NewHub(resolver, logger)
		sink.feed = hub

		serveFeed(gctx, g, hub, cfg.Feed.Listen, logger)
	}

	cc.Statusf("Watching %s -> %s\n", watcher.Root(), cfg.Sync.RemoteRoot)

	events := make(chan isync.ChangeEvent)

	g.Go(func() error {
		return watcher.Run(gctx, events)
	})

	records := resolver.Run(gctx, events)

	var stats runStats

	g.Go(func() error {
		stats = sink.consume(gctx, records)
		stop()

		return nil
	})

	runErr := g.Wait()

	if pruned, err := jr.Prune(context.WithoutCancel(ctx), cfg.Journal.Retention); err != nil {
		logger.Warn("pruning journal", slog.String("error", err.Error()))
	} else if pruned > 0 {
		logger.Debug("journal pruned", slog.Int64("records", pruned))
	}

	cc.Statusf("Stopped: %s\n", stats)

	return runErr
}

// serveFeed runs the websocket feed on addr until ctx is done.
func serveFeed(ctx context.Context, g *errgroup.Group, hub *feed.Hub, addr string, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           hub,
		ReadHeaderTimeout: feedReadHeaderTimeout,
	}

	g.Go(func() error {
		logger.Info("feed listening", slog.String("addr", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("feed server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})
}
