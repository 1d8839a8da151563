package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

type fakeJournal struct {
	records []driveops.ActionRecord
	err     error
	ctxErrs []error
}

func (f *fakeJournal) Append(ctx context.Context, rec driveops.ActionRecord) error {
	f.records = append(f.records, rec)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())

	return f.err
}

type fakeFeed struct {
	records []driveops.ActionRecord
}

func (f *fakeFeed) Publish(rec driveops.ActionRecord) {
	f.records = append(f.records, rec)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func uploadRun(name string) []driveops.ActionRecord {
	return []driveops.ActionRecord{
		driveops.NewRecord(driveops.PhaseStart, driveops.OpUpload, driveops.TypeFile, name),
		driveops.NewRecord(driveops.PhaseProgress, driveops.OpUpload, driveops.TypeFile, name).
			WithStep(driveops.StepSent).WithChunk(1, 1),
		driveops.NewRecord(driveops.PhaseEnd, driveops.OpUpload, driveops.TypeFile, name).
			WithStep(driveops.StepUploaded),
	}
}

func stream(recs ...driveops.ActionRecord) <-chan driveops.ActionRecord {
	ch := make(chan driveops.ActionRecord, len(recs))
	for _, r := range recs {
		ch <- r
	}

	close(ch)

	return ch
}

func TestRunStats(t *testing.T) {
	var s runStats

	assert.Equal(t, "no changes", s.String())

	for _, rec := range []driveops.ActionRecord{
		driveops.NewRecord(driveops.PhaseEnd, driveops.OpUpload, driveops.TypeFile, "a").WithStep(driveops.StepUploaded),
		driveops.NewRecord(driveops.PhaseEnd, driveops.OpUpload, driveops.TypeFile, "b").WithStep(driveops.StepSkipped),
		driveops.NewRecord(driveops.PhaseEnd, driveops.OpCreate, driveops.TypeFolder, "c").WithStep(driveops.StepCreated),
		driveops.NewRecord(driveops.PhaseEnd, driveops.OpRemove, driveops.TypeFile, "d").WithStep(driveops.StepAbsent),
		driveops.NewRecord(driveops.PhaseCancel, driveops.OpUpload, driveops.TypeFile, "e"),
		driveops.NewRecord(driveops.PhaseError, driveops.OpMove, driveops.TypeFile, "f"),
		driveops.NewRecord(driveops.PhaseStart, driveops.OpUpload, driveops.TypeFile, "g"),
	} {
		s.add(rec)
	}

	assert.Equal(t, runStats{Uploaded: 1, Skipped: 1, Created: 1, Removed: 1, Canceled: 1, Failed: 1}, s)
	assert.Equal(t, "1 uploaded, 1 skipped, 1 created, 1 removed, 1 canceled, 1 failed", s.String())
}

func TestRecordSink_FansOut(t *testing.T) {
	var out bytes.Buffer

	jr := &fakeJournal{}
	fd := &fakeFeed{}
	sink := &recordSink{out: &out, journal: jr, feed: fd, logger: discardLogger()}

	stats := sink.consume(context.Background(), stream(uploadRun("a.txt")...))

	assert.Equal(t, 1, stats.Uploaded)
	assert.Len(t, fd.records, 3, "the feed sees progress too")
	assert.Len(t, jr.records, 3)
	assert.Equal(t, "uploaded  file   a.txt\n", out.String())
}

func TestRecordSink_JSONLines(t *testing.T) {
	var out bytes.Buffer

	sink := &recordSink{out: &out, json: true, logger: discardLogger()}
	sink.consume(context.Background(), stream(uploadRun("a.txt")...))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "start and end, no progress")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, "end", got["phase"])
	assert.Equal(t, "a.txt", got["name"])
	assert.Equal(t, "uploaded", got["step"])
}

func TestRecordSink_QuietPrintsOnlyErrors(t *testing.T) {
	var out bytes.Buffer

	sink := &recordSink{out: &out, quiet: true, logger: discardLogger()}

	recs := append(uploadRun("a.txt"),
		driveops.NewRecord(driveops.PhaseError, driveops.OpUpload, driveops.TypeFile, "b.txt").WithErr(errors.New("denied")))
	sink.consume(context.Background(), stream(recs...))

	assert.Equal(t, "failed    file   b.txt: denied\n", out.String())
}

func TestRecordSink_JournalOutlivesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jr := &fakeJournal{err: errors.New("disk full")}
	sink := &recordSink{out: &bytes.Buffer{}, journal: jr, logger: discardLogger()}

	stats := sink.consume(ctx, stream(uploadRun("a.txt")...))

	assert.Equal(t, 1, stats.Uploaded, "journal failures do not stop the sink")

	for _, err := range jr.ctxErrs {
		assert.NoError(t, err)
	}
}
