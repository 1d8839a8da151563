package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-push/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// localDirArgAnnotation marks commands whose first positional argument
// overrides sync.local_dir.
const localDirArgAnnotation = "local-dir-arg"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	LogLevel   string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once by the root pre-run and carried to every
// subcommand through the command context.
type CLIContext struct {
	Cfg    *config.Config
	Env    config.EnvOverrides
	Flags  CLIFlags
	Logger *slog.Logger
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by PersistentPreRunE. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("cli context not initialized: PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "onedrive-push",
		Short: "Push local changes to OneDrive as they happen",
		Long: `Watches a local directory and mirrors every change to OneDrive:
new and changed files are uploaded in resumable chunks, folders are created,
moves and removals are replayed remotely.`,
		Version: version,
		// We print errors ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCLIContext(cmd, args, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadCLIContext resolves configuration through the override chain and
// builds the logger.
func loadCLIContext(cmd *cobra.Command, args []string, flags CLIFlags) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("log-level") {
		cli.LogLevel = &flags.LogLevel
	}

	if cmd.Annotations[localDirArgAnnotation] == "true" && len(args) > 0 {
		dir, err := filepath.Abs(args[0])
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", args[0], err)
		}

		cli.LocalDir = &dir
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(os.Stderr, cfg, flags)
	logger.Debug("config resolved",
		slog.String("local_dir", cfg.Sync.LocalDir),
		slog.String("remote_root", cfg.Sync.RemoteRoot),
		slog.Int("max_concurrency", cfg.Transfers.MaxConcurrency),
	)

	return &CLIContext{Cfg: cfg, Env: env, Flags: flags, Logger: logger}, nil
}

// buildLogger creates a logger on w. The configured level is the baseline;
// --verbose and --quiet override it. Format "auto" picks text on a terminal
// and JSON otherwise.
func buildLogger(w io.Writer, cfg *config.Config, flags CLIFlags) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		level = parseLevel(cfg.Logging.LogLevel)
		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format != "text" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
