package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

func TestPutName(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{remote: "", want: "report.pdf"},
		{remote: "/", want: "report.pdf"},
		{remote: "docs/", want: "docs/report.pdf"},
		{remote: "/docs/q3.pdf", want: "docs/q3.pdf"},
		{remote: "a//b/./c.pdf", want: "a/b/c.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			got, err := putName("/home/me/report.pdf", tt.remote)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPutName_EscapingRoot(t *testing.T) {
	_, err := putName("report.pdf", "../elsewhere.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestPutResult(t *testing.T) {
	assert.NoError(t, putResult(driveops.StateCompleted, "a", nil))
	assert.NoError(t, putResult(driveops.StateSkipped, "a", nil))

	err := putResult(driveops.StateCancelled, "a", driveops.ErrUploadCanceled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")

	boom := errors.New("boom")
	err = putResult(driveops.StateFailed, "a", boom)
	require.ErrorIs(t, err, boom)
}

func progressRec(step string, i, n int) driveops.ActionRecord {
	return driveops.NewRecord(driveops.PhaseProgress, driveops.OpUpload, driveops.TypeFile, "big.bin").
		WithStep(step).WithChunk(i, n)
}

func endRec() driveops.ActionRecord {
	return driveops.NewRecord(driveops.PhaseEnd, driveops.OpUpload, driveops.TypeFile, "big.bin").
		WithStep(driveops.StepUploaded)
}

func TestPutReporter_Terminal(t *testing.T) {
	var errw bytes.Buffer

	r := &putReporter{out: &bytes.Buffer{}, errw: &errw, tty: true, size: 1024}

	r.record(progressRec(driveops.StepSending, 1, 2))
	r.record(progressRec(driveops.StepSent, 1, 2))
	r.record(progressRec(driveops.StepSent, 2, 2))
	r.record(endRec())

	assert.Equal(t,
		"\rbig.bin [==========          ] 1/2 chunks of 1.0 KB"+
			"\rbig.bin [====================] 2/2 chunks of 1.0 KB"+
			"\nuploaded  file   big.bin\n",
		errw.String())
}

func TestPutReporter_Pipe(t *testing.T) {
	var errw bytes.Buffer

	r := &putReporter{out: &bytes.Buffer{}, errw: &errw, size: 1024}

	r.record(progressRec(driveops.StepSent, 1, 1))
	r.record(endRec())

	assert.Equal(t,
		"big.bin [====================] 1/1 chunks of 1.0 KB\n"+
			"uploaded  file   big.bin\n",
		errw.String())
}

func TestPutReporter_JSON(t *testing.T) {
	var out, errw bytes.Buffer

	r := &putReporter{out: &out, errw: &errw, json: true}

	r.record(progressRec(driveops.StepSent, 1, 1))
	r.record(endRec())

	assert.Empty(t, errw.String())
	assert.Equal(t, 2, bytes.Count(out.Bytes(), []byte("\n")))
	assert.Contains(t, out.String(), `"extra":[1,1]`)
}

func TestPutReporter_Quiet(t *testing.T) {
	var errw bytes.Buffer

	r := &putReporter{out: &bytes.Buffer{}, errw: &errw, quiet: true, tty: true}

	r.record(progressRec(driveops.StepSent, 1, 1))
	r.record(endRec())

	assert.Empty(t, errw.String())
}
