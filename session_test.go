package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-push/internal/config"
	"github.com/tonimelisma/onedrive-push/internal/graph"
	"github.com/tonimelisma/onedrive-push/internal/tokenfile"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func countingClient(calls *atomic.Int32) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)

		return &http.Response{
			StatusCode: http.StatusAccepted,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     http.Header{},
			Request:    req,
		}, nil
	})}
}

func TestSplitClient_ChunksUseTransferClient(t *testing.T) {
	var metaCalls, transferCalls atomic.Int32

	meta := graph.NewClient("https://graph.invalid", countingClient(&metaCalls), nil, discardLogger(), "")
	transfer := graph.NewClient("https://graph.invalid", countingClient(&transferCalls), nil, discardLogger(), "")

	sc := &splitClient{Client: meta, transfer: transfer}

	session := &graph.UploadSession{UploadURL: "https://upload.invalid/session"}
	item, err := sc.UploadChunk(context.Background(), session, bytes.NewReader([]byte("abc")), 0, 2, 10)
	require.NoError(t, err)
	assert.Nil(t, item)

	assert.Equal(t, int32(1), transferCalls.Load())
	assert.Zero(t, metaCalls.Load())
}

func TestLoadTokenSource_NotLoggedIn(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.TokenFile = filepath.Join(t.TempDir(), "token.json")

	_, err := loadTokenSource(context.Background(), cfg, config.EnvOverrides{}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestLoadTokenSource_SeedsFromEnvironment(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.TokenFile = filepath.Join(t.TempDir(), "token.json")

	ts, err := loadTokenSource(context.Background(), cfg, config.EnvOverrides{RefreshToken: "seed-rt"}, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, ts)

	tok, err := tokenfile.Load(cfg.Auth.TokenFile)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "seed-rt", tok.RefreshToken)
}

func TestNewHTTPClient(t *testing.T) {
	c := newHTTPClient(config.DefaultConfig().ConnectTimeoutDuration(), 0)
	assert.Zero(t, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, config.DefaultConfig().ConnectTimeoutDuration(), tr.TLSHandshakeTimeout)
}
