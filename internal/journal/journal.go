// Package journal persists the terminal and start records of every run in a
// local SQLite database so past activity can be listed after the process
// exits.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

// DefaultRetention is how many records Prune keeps when no limit is set.
const DefaultRetention = 10000

const (
	sqlInsertRun = `INSERT INTO runs (id, command, started_at) VALUES (?, ?, ?)`

	sqlInsertRecord = `INSERT INTO records
		(run_id, phase, op, item_type, name, step, from_name, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecent = `SELECT id, run_id, phase, op, item_type, name, step, from_name, error, recorded_at
		FROM records ORDER BY id DESC LIMIT ?`

	sqlPruneRecords = `DELETE FROM records WHERE id NOT IN
		(SELECT id FROM records ORDER BY id DESC LIMIT ?)`

	sqlPruneRuns = `DELETE FROM runs WHERE id != ? AND id NOT IN
		(SELECT DISTINCT run_id FROM records)`
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("journal: closed")

// Entry is one stored record.
type Entry struct {
	ID    int64
	RunID string
	Phase driveops.Phase
	Op    driveops.Op
	Type  driveops.ItemType
	Name  string
	Step  string
	From  string
	Error string
	Time  time.Time
}

// Journal is the sole writer of the record database. Each Journal is one
// run, identified by a random UUID.
type Journal struct {
	db      *sql.DB
	runID   string
	command string
	logger  *slog.Logger
	nowFunc func() time.Time

	// The run row is written with the first record, so read-only use leaves
	// no trace.
	registered bool
}

// Open opens (creating if needed) the database at dbPath and applies
// migrations. Records appended through it belong to a new run of command.
func Open(ctx context.Context, dbPath, command string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{
		db:      db,
		runID:   uuid.NewString(),
		command: command,
		logger:  logger,
		nowFunc: time.Now,
	}

	logger.Debug("journal opened",
		slog.String("path", dbPath),
		slog.String("run_id", j.runID),
	)

	return j, nil
}

// RunID identifies this run's records.
func (j *Journal) RunID() string {
	return j.runID
}

// Append stores rec. Progress records are not persisted.
func (j *Journal) Append(ctx context.Context, rec driveops.ActionRecord) error {
	if rec.Phase == driveops.PhaseProgress {
		return nil
	}

	if j.db == nil {
		return ErrClosed
	}

	if !j.registered {
		if _, err := j.db.ExecContext(ctx, sqlInsertRun, j.runID, j.command, j.nowFunc().UnixNano()); err != nil {
			return fmt.Errorf("journal: registering run: %w", err)
		}

		j.registered = true
	}

	at := rec.Time
	if at.IsZero() {
		at = j.nowFunc()
	}

	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}

	_, err := j.db.ExecContext(ctx, sqlInsertRecord,
		j.runID, string(rec.Phase), string(rec.Op), string(rec.Type),
		rec.Name, rec.Step, rec.From, errText, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: storing record for %s: %w", rec.Name, err)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, ErrClosed
	}

	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: querying records: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e              Entry
			phase, op, typ string
			nanos          int64
		)

		if err := rows.Scan(&e.ID, &e.RunID, &phase, &op, &typ, &e.Name, &e.Step, &e.From, &e.Error, &nanos); err != nil {
			return nil, fmt.Errorf("journal: scanning record: %w", err)
		}

		e.Phase = driveops.Phase(phase)
		e.Op = driveops.Op(op)
		e.Type = driveops.ItemType(typ)
		e.Time = time.Unix(0, nanos)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating records: %w", err)
	}

	return entries, nil
}

// Prune deletes all but the newest keep records, and runs left without
// records. It returns the number of records deleted.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if j.db == nil {
		return 0, ErrClosed
	}

	if keep < 0 {
		keep = 0
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("journal: beginning prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, sqlPruneRecords, keep)
	if err != nil {
		return 0, fmt.Errorf("journal: pruning records: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlPruneRuns, j.runID); err != nil {
		return 0, fmt.Errorf("journal: pruning runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("journal: committing prune: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: counting pruned records: %w", err)
	}

	if n > 0 {
		j.logger.Info("pruned journal", slog.Int64("deleted", n), slog.Int("kept", keep))
	}

	return n, nil
}

// Close closes the database. Later calls return ErrClosed.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}

	err := j.db.Close()
	j.db = nil

	if err != nil {
		return fmt.Errorf("journal: closing: %w", err)
	}

	return nil
}
