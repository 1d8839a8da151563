package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
	"github.com/tonimelisma/onedrive-push/internal/journal"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file> [remote-path]",
		Short: "Upload one file",
		Long: `Upload one file in resumable chunks. The remote path is relative to
sync.remote_root and defaults to the file's name. The upload is skipped when
the remote copy already has the same content or is newer.

The first Ctrl-C stops before the next chunk; a second one aborts the chunk
in flight.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	localPath := args[0]

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	var remote string
	if len(args) > 1 {
		remote = args[1]
	}

	name, err := putName(localPath, remote)
	if err != nil {
		return err
	}

	hashes, err := driveops.ComputeHashes(localPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	session, err := NewDriveSession(ctx, cc.Cfg, cc.Env, logger)
	if err != nil {
		return err
	}

	logger.Debug("put",
		slog.String("local_path", localPath),
		slog.String("name", name),
		slog.Int64("size", fi.Size()),
	)

	task := session.Ops.Uploader().Start(ctx, driveops.UploadRequest{
		Name:     name,
		Hash:     hashes,
		Modified: fi.ModTime(),
		Size:     fi.Size(),
		Content:  driveops.FileRange(localPath),
	})

	handleSignals(ctx, logger,
		func() {
			cc.Statusf("\nCanceling after the current chunk (Ctrl-C again to abort)...\n")
			task.Cancel()
		},
		cancel,
	)

	rep := &putReporter{
		out:   os.Stdout,
		errw:  os.Stderr,
		json:  cc.Flags.JSON,
		quiet: cc.Flags.Quiet,
		tty:   isTerminal(os.Stderr),
		size:  fi.Size(),
	}

	jr := openPutJournal(ctx, cc.Cfg.JournalPath(), logger)
	if jr != nil {
		defer jr.Close()
	}

	storeCtx := context.WithoutCancel(ctx)

	for rec := range task.Records() {
		rep.record(rec)

		if jr != nil {
			if err := jr.Append(storeCtx, rec); err != nil {
				logger.Warn("journal write failed", slog.String("error", err.Error()))
			}
		}
	}

	return putResult(task.State(), name, task.Wait())
}

// putName derives the remote name, relative to the remote root, for a put
// of localPath to remote.
func putName(localPath, remote string) (string, error) {
	base := filepath.Base(localPath)

	if remote == "" {
		return base, nil
	}

	trimmed := strings.Trim(filepath.ToSlash(remote), "/")

	// A trailing slash names a folder to upload into.
	if strings.HasSuffix(remote, "/") && trimmed != "" {
		trimmed = path.Join(trimmed, base)
	}

	if trimmed == "" {
		return base, nil
	}

	clean := path.Clean(trimmed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("remote path %q escapes the remote root", remote)
	}

	return clean, nil
}

// openPutJournal opens the journal for a put run. Failures only cost the
// history entry.
func openPutJournal(ctx context.Context, dbPath string, logger *slog.Logger) *journal.Journal {
	if dbPath == "" {
		return nil
	}

	jr, err := journal.Open(ctx, dbPath, "put", logger)
	if err != nil {
		logger.Warn("journal unavailable", slog.String("error", err.Error()))
		return nil
	}

	return jr
}

// putResult maps the final task state to the command's error.
func putResult(state driveops.UploadState, name string, err error) error {
	switch state {
	case driveops.StateCompleted, driveops.StateSkipped:
		return nil
	case driveops.StateCancelled:
		return fmt.Errorf("upload of %s canceled", name)
	}

	if err == nil {
		err = errors.New("upload did not finish")
	}

	return fmt.Errorf("uploading %s: %w", name, err)
}

// putReporter renders one upload's records: JSON lines on out with --json,
// otherwise a progress line and a summary on errw.
type putReporter struct {
	out   io.Writer
	errw  io.Writer
	json  bool
	quiet bool
	tty   bool
	size  int64

	progressShown bool
}

func (r *putReporter) record(rec driveops.ActionRecord) {
	if r.json {
		data, err := json.Marshal(rec)
		if err == nil {
			fmt.Fprintln(r.out, string(data))
		}

		return
	}

	if rec.Phase == driveops.PhaseProgress {
		r.progress(rec)
		return
	}

	if !rec.Phase.Terminal() {
		return
	}

	if r.progressShown && r.tty {
		fmt.Fprintln(r.errw)
	}

	if r.quiet && rec.Phase != driveops.PhaseError {
		return
	}

	fmt.Fprintln(r.errw, formatRecord(rec))
}

func (r *putReporter) progress(rec driveops.ActionRecord) {
	if r.quiet || len(rec.Extra) != 2 || rec.Step != driveops.StepSent {
		return
	}

	line := formatProgress(rec.Name, rec.Extra[0], rec.Extra[1], r.size)

	if r.tty {
		fmt.Fprintf(r.errw, "\r%s", line)
	} else {
		fmt.Fprintln(r.errw, line)
	}

	r.progressShown = true
}
