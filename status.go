package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
	"github.com/tonimelisma/onedrive-push/internal/journal"
)

const defaultStatusLimit = 20

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a watch is running and the most recent operations",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	cmd.Flags().Int("limit", defaultStatusLimit, "number of records to show")

	return cmd
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Watching bool           `json:"watching"`
	PID      int            `json:"pid,omitempty"`
	Records  []statusRecord `json:"records"`
}

type statusRecord struct {
	Time  time.Time         `json:"time"`
	RunID string            `json:"run_id"`
	Phase driveops.Phase    `json:"phase"`
	Op    driveops.Op       `json:"op"`
	Type  driveops.ItemType `json:"type"`
	Name  string            `json:"name"`
	Step  string            `json:"step,omitempty"`
	From  string            `json:"from,omitempty"`
	Error string            `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	if limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", limit)
	}

	out := statusOutput{Records: []statusRecord{}}
	out.PID, out.Watching = runningPID(cc.Cfg.PIDPath())

	entries, err := recentEntries(cmd.Context(), cc.Cfg.JournalPath(), limit, cc.Logger)
	if err != nil {
		return err
	}

	for i := range entries {
		out.Records = append(out.Records, toStatusRecord(&entries[i]))
	}

	if cc.Flags.JSON {
		return printStatusJSON(os.Stdout, out)
	}

	printStatusText(os.Stdout, out)

	return nil
}

// recentEntries reads the journal. A journal that does not exist yet holds
// no records.
func recentEntries(ctx context.Context, dbPath string, limit int, logger *slog.Logger) ([]journal.Entry, error) {
	if dbPath == "" {
		return nil, nil
	}

	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	jr, err := journal.Open(ctx, dbPath, "status", logger)
	if err != nil {
		return nil, err
	}
	defer jr.Close()

	return jr.Recent(ctx, limit)
}

func toStatusRecord(e *journal.Entry) statusRecord {
	return statusRecord{
		Time:  e.Time,
		RunID: e.RunID,
		Phase: e.Phase,
		Op:    e.Op,
		Type:  e.Type,
		Name:  e.Name,
		Step:  e.Step,
		From:  e.From,
		Error: e.Error,
	}
}

func printStatusJSON(w io.Writer, out statusOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(w io.Writer, out statusOutput) {
	if out.Watching {
		fmt.Fprintf(w, "Watch: running (PID %d)\n", out.PID)
	} else {
		fmt.Fprintln(w, "Watch: not running")
	}

	if len(out.Records) == 0 {
		fmt.Fprintln(w, "No recorded operations.")
		return
	}

	fmt.Fprintln(w)

	rows := make([][]string, 0, len(out.Records))
	for _, r := range out.Records {
		outcome := recordVerb(r.Phase, r.Op, r.Step)
		subject := recordSubject(r.Op, r.Name, r.From)

		if r.Error != "" {
			subject += ": " + r.Error
		}

		rows = append(rows, []string{formatTime(r.Time), outcome, string(r.Type), subject})
	}

	printTable(w, []string{"TIME", "OUTCOME", "TYPE", "ITEM"}, rows)
}
