package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/onedrive-push/internal/tokenfile"
)

// DefaultClientID is the public Azure AD application used when the
// configuration does not name one.
const DefaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

var defaultScopes = []string{
	"offline_access",
	"Files.ReadWrite.All",
}

// ErrNotLoggedIn is returned when no token file exists at the given path.
var ErrNotLoggedIn = errors.New("graph: not logged in")

// TokenSourceFromPath loads a saved token from tokenPath and returns a
// TokenSource that refreshes silently and writes every refreshed token back
// to tokenPath. Returns ErrNotLoggedIn if no token file exists.
//
// ctx must outlive the TokenSource: it is bound to refresh requests.
func TokenSourceFromPath(ctx context.Context, tokenPath, clientID string, logger *slog.Logger) (TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tok, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	src := oauthConfig(clientID).TokenSource(ctx, tok)

	return &tokenBridge{
		src:        src,
		path:       tokenPath,
		lastAccess: tok.AccessToken,
		logger:     logger,
	}, nil
}

// SeedRefreshToken writes a token file holding only a refresh token. The
// first Token call exchanges it for an access token.
func SeedRefreshToken(tokenPath, refreshToken string) error {
	if refreshToken == "" {
		return fmt.Errorf("graph: empty refresh token")
	}

	return tokenfile.Save(tokenPath, &oauth2.Token{RefreshToken: refreshToken})
}

// DeviceAuth holds what the user needs to complete a device code sign-in.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login runs the OAuth2 device code flow: display is called with the code
// to enter, the call blocks until the user authorizes (or ctx ends), and the
// token is saved to tokenPath.
func Login(
	ctx context.Context, tokenPath, clientID string, display func(DeviceAuth), logger *slog.Logger,
) (TokenSource, error) {
	return doLogin(ctx, tokenPath, oauthConfig(clientID), display, logger)
}

func doLogin(
	ctx context.Context, tokenPath string, cfg *oauth2.Config, display func(DeviceAuth), logger *slog.Logger,
) (TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting device code auth flow", slog.String("path", tokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: device auth request failed: %w", err)
	}

	display(DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("graph: device code authorization failed: %w", err)
	}

	if err := tokenfile.Save(tokenPath, tok); err != nil {
		return nil, fmt.Errorf("graph: saving token: %w", err)
	}

	logger.Info("login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return &tokenBridge{
		src:        cfg.TokenSource(ctx, tok),
		path:       tokenPath,
		lastAccess: tok.AccessToken,
		logger:     logger,
	}, nil
}

// Logout removes the token file. A missing file is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	err := os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))
		return nil
	}

	if err != nil {
		return fmt.Errorf("graph: removing token file: %w", err)
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

func oauthConfig(clientID string) *oauth2.Config {
	if clientID == "" {
		clientID = DefaultClientID
	}

	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   defaultScopes,
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

// tokenBridge adapts oauth2.TokenSource to graph.TokenSource and persists
// the token whenever the access token changes.
type tokenBridge struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu         sync.Mutex
	lastAccess string
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("graph: obtaining token: %w", err)
	}

	b.mu.Lock()
	changed := t.AccessToken != b.lastAccess
	b.lastAccess = t.AccessToken
	b.mu.Unlock()

	if changed {
		b.persist(t)
	}

	return t.AccessToken, nil
}

func (b *tokenBridge) persist(t *oauth2.Token) {
	if err := tokenfile.Save(b.path, t); err != nil {
		b.logger.Warn("failed to persist refreshed token",
			slog.String("path", b.path),
			slog.String("error", err.Error()),
		)

		return
	}

	b.logger.Info("persisted refreshed token",
		slog.String("path", b.path),
		slog.Time("new_expiry", t.Expiry),
	)
}
