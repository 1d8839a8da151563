package driveops

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

func newTestOps(f *fakeDrive) *Operations {
	return NewOperations(f, Options{DriveID: testDriveID, ChunkSize: testChunk}, testLogger())
}

func TestOperations_CreateFolderNested(t *testing.T) {
	f := newFakeDrive()
	recs := collect(newTestOps(f).CreateFolder(context.Background(), "a/b/c"))

	require.Len(t, recs, 1)
	assert.Equal(t, PhaseEnd, recs[0].Phase)
	assert.Equal(t, OpCreate, recs[0].Op)
	assert.Equal(t, TypeFolder, recs[0].Type)
	assert.True(t, f.hasCall("mkdir:a"))
	assert.True(t, f.hasCall("mkdir:a/b"))
	assert.True(t, f.hasCall("mkdir:a/b/c"))
}

func TestOperations_CreateFolderExisting(t *testing.T) {
	f := newFakeDrive()
	f.addFolder("photos")

	recs := collect(newTestOps(f).CreateFolder(context.Background(), "photos"))
	require.Len(t, recs, 1)
	assert.Equal(t, PhaseEnd, recs[0].Phase)
	assert.False(t, f.hasCall("mkdir:photos"))
}

func TestOperations_CreateFolderError(t *testing.T) {
	f := newFakeDrive()
	f.getErr["x"] = &graph.GraphError{StatusCode: http.StatusForbidden, Err: graph.ErrForbidden}

	recs := collect(newTestOps(f).CreateFolder(context.Background(), "x"))
	require.Len(t, recs, 1)
	assert.Equal(t, PhaseError, recs[0].Phase)
	assert.ErrorIs(t, recs[0].Err, graph.ErrForbidden)
}

func TestOperations_MoveExisting(t *testing.T) {
	f := newFakeDrive()
	f.addFile("old.txt", "h", time.Now())

	recs := collect(newTestOps(f).Move(context.Background(), MoveRequest{
		Type:    TypeFile,
		OldName: "old.txt",
		Name:    "sub/new.txt",
	}))

	require.Len(t, recs, 1)
	assert.Equal(t, PhaseEnd, recs[0].Phase)
	assert.Equal(t, OpMove, recs[0].Op)
	assert.Equal(t, StepMoved, recs[0].Step)
	assert.Equal(t, "old.txt", recs[0].From)
	assert.True(t, f.hasCall("move:old.txt->sub/new.txt"))
}

func TestOperations_MoveMissingFileUploads(t *testing.T) {
	f := newFakeDrive()

	recs := collect(newTestOps(f).Move(context.Background(), MoveRequest{
		Type:     TypeFile,
		OldName:  "gone.txt",
		Name:     "new.txt",
		Hash:     Hashes{SHA1: sha1Hex("abc")},
		Modified: time.Now(),
		Size:     3,
		Content:  BytesRange([]byte("abc")),
	}))

	last := recs[len(recs)-1]
	assert.Equal(t, PhaseEnd, last.Phase)
	assert.Equal(t, OpMove, last.Op)
	assert.Equal(t, StepUploaded, last.Step)
	assert.True(t, f.hasCall("session:new.txt"))
}

func TestOperations_MoveMissingFolderCreates(t *testing.T) {
	f := newFakeDrive()

	recs := collect(newTestOps(f).Move(context.Background(), MoveRequest{
		Type:    TypeFolder,
		OldName: "gone",
		Name:    "fresh",
	}))

	require.Len(t, recs, 1)
	assert.Equal(t, PhaseEnd, recs[0].Phase)
	assert.Equal(t, "gone", recs[0].From)
	assert.True(t, f.hasCall("mkdir:fresh"))
}

func TestOperations_Remove(t *testing.T) {
	f := newFakeDrive()
	f.addFile("a.txt", "h", time.Now())

	recs := collect(newTestOps(f).Remove(context.Background(), TypeFile, "a.txt"))
	require.Len(t, recs, 1)
	assert.Equal(t, PhaseEnd, recs[0].Phase)
	assert.Equal(t, StepRemoved, recs[0].Step)
	assert.True(t, f.hasCall("delete:a.txt"))
}

func TestOperations_RemoveAbsent(t *testing.T) {
	f := newFakeDrive()

	recs := collect(newTestOps(f).Remove(context.Background(), TypeFolder, "nothing"))
	require.Len(t, recs, 1)
	assert.Equal(t, PhaseEnd, recs[0].Phase)
	assert.Equal(t, StepAbsent, recs[0].Step)
}

func TestOperations_RemoveDeleteFailure(t *testing.T) {
	f := newFakeDrive()
	f.addFile("a.txt", "h", time.Now())
	f.deleteErr = &graph.GraphError{StatusCode: http.StatusLocked, Err: graph.ErrLocked}

	recs := collect(newTestOps(f).Remove(context.Background(), TypeFile, "a.txt"))
	require.Len(t, recs, 1)
	assert.Equal(t, PhaseError, recs[0].Phase)
	assert.ErrorIs(t, recs[0].Err, graph.ErrLocked)
}

func TestOperations_CanceledContextReportsCancel(t *testing.T) {
	f := newFakeDrive()
	f.getErr["a.txt"] = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs := collect(newTestOps(f).Remove(ctx, TypeFile, "a.txt"))
	require.Len(t, recs, 1)
	assert.Equal(t, PhaseCancel, recs[0].Phase)
}

func TestOperations_UploadReturnsCancel(t *testing.T) {
	f := newFakeDrive()
	records, cancel := newTestOps(f).Upload(context.Background(), uploadReq("a.txt", "abc"))
	require.NotNil(t, cancel)

	recs := collect(records)
	assert.Equal(t, PhaseEnd, recs[len(recs)-1].Phase)

	cancel()
}
