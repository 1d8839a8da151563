package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with OneDrive using device code flow",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved authentication token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	tokenPath := cc.Cfg.TokenPath()

	if tokenPath == "" {
		return fmt.Errorf("cannot determine token path: set auth.token_file")
	}

	cc.Logger.Info("login started", slog.String("token_path", tokenPath))

	_, err := graph.Login(cmd.Context(), tokenPath, cc.Cfg.Auth.ClientID, func(da graph.DeviceAuth) {
		// Device code prompts must always be visible, even with --quiet.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
	}, cc.Logger)
	if err != nil {
		return err
	}

	cc.Logger.Info("login successful", slog.String("token_path", tokenPath))
	cc.Statusf("Login successful.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := graph.Logout(cc.Cfg.TokenPath(), cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}
