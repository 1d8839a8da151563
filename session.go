package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/onedrive-push/internal/config"
	"github.com/tonimelisma/onedrive-push/internal/driveops"
	"github.com/tonimelisma/onedrive-push/internal/graph"
)

// DriveSession holds the authenticated clients for the configured drive and
// the operations built on them.
type DriveSession struct {
	Client   *graph.Client // metadata calls, bounded by network.metadata_timeout
	Transfer *graph.Client // chunk PUTs, bounded only by the caller's context
	Ops      *driveops.Operations
}

// NewDriveSession loads the saved token (seeding it from
// ONEDRIVE_PUSH_REFRESH_TOKEN when no token file exists) and wires the Graph
// clients to a driveops.Operations.
func NewDriveSession(
	ctx context.Context, cfg *config.Config, env config.EnvOverrides, logger *slog.Logger,
) (*DriveSession, error) {
	ts, err := loadTokenSource(ctx, cfg, env, logger)
	if err != nil {
		return nil, err
	}

	connect := cfg.ConnectTimeoutDuration()
	metadata := cfg.MetadataTimeoutDuration()

	client := graph.NewClient(graph.DefaultBaseURL, newHTTPClient(connect, metadata), ts, logger, cfg.Network.UserAgent)
	transfer := graph.NewClient(graph.DefaultBaseURL, newHTTPClient(connect, 0), ts, logger, cfg.Network.UserAgent)

	ops := driveops.NewOperations(&splitClient{Client: client, transfer: transfer}, driveops.Options{
		DriveID:    cfg.Sync.DriveID,
		RemoteRoot: cfg.Sync.RemoteRoot,
		ChunkSize:  cfg.ChunkBytes(),
	}, logger)

	logger.Debug("drive session ready",
		slog.String("drive_id", cfg.Sync.DriveID),
		slog.String("remote_root", cfg.Sync.RemoteRoot),
		slog.Int64("chunk_size", cfg.ChunkBytes()),
	)

	return &DriveSession{Client: client, Transfer: transfer, Ops: ops}, nil
}

func loadTokenSource(
	ctx context.Context, cfg *config.Config, env config.EnvOverrides, logger *slog.Logger,
) (graph.TokenSource, error) {
	tokenPath := cfg.TokenPath()
	if tokenPath == "" {
		return nil, fmt.Errorf("cannot determine token path: set auth.token_file")
	}

	ts, err := graph.TokenSourceFromPath(ctx, tokenPath, cfg.Auth.ClientID, logger)
	if !errors.Is(err, graph.ErrNotLoggedIn) {
		return ts, err
	}

	if env.RefreshToken == "" {
		return nil, fmt.Errorf("not logged in: run 'onedrive-push login' first")
	}

	logger.Info("seeding token file from environment",
		slog.String("env", config.EnvRefreshToken),
		slog.String("path", tokenPath),
	)

	if err := graph.SeedRefreshToken(tokenPath, env.RefreshToken); err != nil {
		return nil, err
	}

	return graph.TokenSourceFromPath(ctx, tokenPath, cfg.Auth.ClientID, logger)
}

// newHTTPClient bounds connection setup by connect. A positive timeout also
// bounds each whole request.
func newHTTPClient(connect, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect

	return &http.Client{Transport: transport, Timeout: timeout}
}

// splitClient sends chunk PUTs through the transfer client so that large
// chunks are not cut off by the metadata timeout.
type splitClient struct {
	*graph.Client
	transfer *graph.Client
}

func (s *splitClient) UploadChunk(
	ctx context.Context, session *graph.UploadSession, chunk io.Reader, start, end, total int64,
) (*graph.Item, error) {
	return s.transfer.UploadChunk(ctx, session, chunk, start, end, total)
}
