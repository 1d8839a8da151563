package driveops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

// UploadState is the position of an UploadTask in its state machine.
type UploadState int32

const (
	StatePending UploadState = iota
	StateDeciding
	StateSkipped
	StateSessionOpen
	StateUploading
	StateCompleted
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StatePending:     "pending",
	StateDeciding:    "deciding",
	StateSkipped:     "skipped",
	StateSessionOpen: "session-open",
	StateUploading:   "uploading",
	StateCompleted:   "completed",
	StateCancelled:   "cancelled",
	StateFailed:      "failed",
}

func (s UploadState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("UploadState(%d)", int32(s))
}

// Terminal reports whether the task has finished.
func (s UploadState) Terminal() bool {
	switch s {
	case StateSkipped, StateCompleted, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// recordBuffer lets the task run a few records ahead of a slow consumer.
const recordBuffer = 8

// UploadRequest describes one file to upload. Name is relative to the
// uploader's remote root.
type UploadRequest struct {
	Name     string
	Hash     Hashes
	Modified time.Time
	Size     int64
	Content  RangeFunc

	// From is the source path of a copy; reported on records only.
	From string

	// Op overrides the record op (OpUpload when empty).
	Op Op
}

// Uploader runs chunked uploads against one drive.
type Uploader struct {
	client     UploadClient
	folders    *folderResolver
	driveID    string
	remoteRoot string
	chunkSize  int64
	logger     *slog.Logger
}

// NewUploader creates an Uploader. An empty driveID addresses the user's
// default drive; chunkSize <= 0 uses DefaultChunkSize. chunkSize must be a
// multiple of graph.ChunkAlignment.
func NewUploader(client UploadClient, driveID, remoteRoot string, chunkSize int64, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Uploader{
		client:     client,
		folders:    &folderResolver{client: client, driveID: driveID, logger: logger},
		driveID:    driveID,
		remoteRoot: CleanRemotePath(remoteRoot),
		chunkSize:  chunkSize,
		logger:     logger,
	}
}

// UploadTask is one running upload. Records must be drained until closed.
type UploadTask struct {
	records    chan ActionRecord
	cancelCh   chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
	state      atomic.Int32

	// Written before done is closed.
	err  error
	item *graph.Item
}

// Start spawns the upload and returns its handle immediately.
func (u *Uploader) Start(ctx context.Context, req UploadRequest) *UploadTask {
	t := &UploadTask{
		records:  make(chan ActionRecord, recordBuffer),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go u.run(ctx, t, req)

	return t
}

// Records returns the task's ordered record stream. It ends with exactly
// one end, cancel or error record and is then closed.
func (t *UploadTask) Records() <-chan ActionRecord {
	return t.records
}

// Cancel requests cooperative cancellation. Chunks already sent stay sent
// and a final chunk in flight still completes. Safe to call repeatedly and
// after the task finished.
func (t *UploadTask) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancelCh) })
}

// Done is closed when the task has reached a terminal state.
func (t *UploadTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes. It returns nil for completed and
// skipped uploads, ErrUploadCanceled for cancelled ones.
func (t *UploadTask) Wait() error {
	<-t.done
	return t.err
}

// State returns the current state.
func (t *UploadTask) State() UploadState {
	return UploadState(t.state.Load())
}

// Item returns the uploaded item once the task completed, nil otherwise.
func (t *UploadTask) Item() *graph.Item {
	select {
	case <-t.done:
		return t.item
	default:
		return nil
	}
}

func (t *UploadTask) cancelRequested() bool {
	select {
	case <-t.cancelCh:
		return true
	default:
		return false
	}
}

func (t *UploadTask) setState(s UploadState) {
	t.state.Store(int32(s))
}

func (u *Uploader) run(ctx context.Context, t *UploadTask, req UploadRequest) {
	defer close(t.done)
	defer close(t.records)

	op := req.Op
	if op == "" {
		op = OpUpload
	}

	base := NewRecord(PhaseProgress, op, TypeFile, req.Name).WithFrom(req.From)
	remotePath := JoinRemote(u.remoteRoot, req.Name)

	finish := func(state UploadState, rec ActionRecord, err error) {
		t.err = err
		t.setState(state)
		rec.Time = nowFunc()
		t.records <- rec
	}

	fail := func(err error) {
		if errors.Is(err, ErrUploadCanceled) || ctx.Err() != nil {
			u.logger.Info("upload canceled", slog.String("path", remotePath))
			finish(StateCancelled, withPhase(base, PhaseCancel), ErrUploadCanceled)

			return
		}

		u.logger.Warn("upload failed",
			slog.String("path", remotePath),
			slog.String("error", err.Error()),
		)
		finish(StateFailed, withPhase(base, PhaseError).WithErr(err), err)
	}

	t.setState(StateDeciding)

	needed, err := ShouldUpload(ctx, u.client, u.driveID, remotePath, req.Hash, req.Modified, req.Size)
	if err != nil {
		fail(err)
		return
	}

	if !needed {
		u.logger.Debug("upload not needed", slog.String("path", remotePath))
		finish(StateSkipped, withPhase(base, PhaseEnd).WithStep(StepSkipped), nil)

		return
	}

	if req.Content == nil {
		fail(fmt.Errorf("driveops: no content for %s", req.Name))
		return
	}

	if t.cancelRequested() {
		fail(ErrUploadCanceled)
		return
	}

	session, err := u.folders.OpenSession(ctx, u.client, remotePath)
	if err != nil {
		fail(err)
		return
	}

	t.setState(StateSessionOpen)

	chunks := PlanChunks(req.Size, u.chunkSize)

	u.logger.Info("uploading",
		slog.String("path", remotePath),
		slog.Int64("size", req.Size),
		slog.Int("chunks", len(chunks)),
	)

	sender := &chunkSender{
		putter:   u.client,
		session:  session,
		content:  req.Content,
		size:     req.Size,
		canceled: t.cancelRequested,
		progress: func(i int, step string) {
			rec := base.WithChunk(i+1, len(chunks)).WithStep(step)
			rec.Time = nowFunc()

			select {
			case t.records <- rec:
			case <-ctx.Done():
			}
		},
	}

	t.setState(StateUploading)

	item, err := sender.send(ctx, chunks)
	if err != nil {
		fail(err)
		return
	}

	t.item = item

	u.logger.Info("upload complete",
		slog.String("path", remotePath),
		slog.String("item_id", item.ID),
	)
	finish(StateCompleted, withPhase(base, PhaseEnd).WithStep(StepUploaded), nil)
}

func withPhase(r ActionRecord, p Phase) ActionRecord {
	r.Phase = p
	return r
}
