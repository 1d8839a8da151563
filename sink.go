package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

// recordJournal stores records. Satisfied by *journal.Journal.
type recordJournal interface {
	Append(ctx context.Context, rec driveops.ActionRecord) error
}

// recordFeed broadcasts records. Satisfied by *feed.Hub.
type recordFeed interface {
	Publish(rec driveops.ActionRecord)
}

// runStats counts terminal records by outcome.
type runStats struct {
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
	Created  int `json:"created"`
	Moved    int `json:"moved"`
	Removed  int `json:"removed"`
	Ignored  int `json:"ignored"`
	Canceled int `json:"canceled"`
	Failed   int `json:"failed"`
}

func (s *runStats) add(rec driveops.ActionRecord) {
	switch rec.Phase {
	case driveops.PhaseCancel:
		s.Canceled++
		return
	case driveops.PhaseError:
		s.Failed++
		return
	case driveops.PhaseEnd:
	default:
		return
	}

	switch {
	case rec.Step == driveops.StepSkipped:
		s.Skipped++
	case rec.Op == driveops.OpUpload:
		s.Uploaded++
	case rec.Op == driveops.OpCreate:
		s.Created++
	case rec.Op == driveops.OpMove:
		s.Moved++
	case rec.Op == driveops.OpRemove:
		s.Removed++
	case rec.Op == driveops.OpIgnore:
		s.Ignored++
	}
}

func (s runStats) String() string {
	counts := []struct {
		n    int
		verb string
	}{
		{s.Uploaded, "uploaded"},
		{s.Skipped, "skipped"},
		{s.Created, "created"},
		{s.Moved, "moved"},
		{s.Removed, "removed"},
		{s.Ignored, "ignored"},
		{s.Canceled, "canceled"},
		{s.Failed, "failed"},
	}

	var parts []string

	for _, c := range counts {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.verb))
		}
	}

	if len(parts) == 0 {
		return "no changes"
	}

	return strings.Join(parts, ", ")
}

// recordSink fans the resolver's record stream out to the console, the
// journal and the live feed.
type recordSink struct {
	out     io.Writer
	json    bool
	quiet   bool
	journal recordJournal // optional
	feed    recordFeed    // optional
	logger  *slog.Logger

	stats runStats
}

// consume drains records until the stream closes and returns the counts.
// Journal writes outlive ctx so that records produced while shutting down
// are still stored.
func (s *recordSink) consume(ctx context.Context, records <-chan driveops.ActionRecord) runStats {
	storeCtx := context.WithoutCancel(ctx)

	for rec := range records {
		s.handle(storeCtx, rec)
	}

	return s.stats
}

func (s *recordSink) handle(ctx context.Context, rec driveops.ActionRecord) {
	s.stats.add(rec)

	if s.feed != nil {
		s.feed.Publish(rec)
	}

	if s.journal != nil {
		if err := s.journal.Append(ctx, rec); err != nil {
			s.logger.Warn("journal write failed",
				slog.String("name", rec.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	s.print(rec)
}

func (s *recordSink) print(rec driveops.ActionRecord) {
	if rec.Phase == driveops.PhaseProgress {
		return
	}

	if s.json {
		data, err := json.Marshal(rec)
		if err != nil {
			s.logger.Warn("encoding record", slog.String("name", rec.Name), slog.String("error", err.Error()))
			return
		}

		fmt.Fprintln(s.out, string(data))

		return
	}

	if rec.Phase == driveops.PhaseStart {
		return
	}

	if s.quiet && rec.Phase != driveops.PhaseError {
		return
	}

	fmt.Fprintln(s.out, formatRecord(rec))
}
