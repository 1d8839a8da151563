package driveops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

// Options configures Operations.
type Options struct {
	DriveID    string // empty = the user's default drive
	RemoteRoot string // remote folder that local names are relative to
	ChunkSize  int64  // 0 = DefaultChunkSize
}

// Operations performs every remote mutation the dispatcher routes to. Each
// method returns immediately; the outcome arrives on the returned stream,
// which ends with one terminal record and is then closed.
type Operations struct {
	client   ItemClient
	uploader *Uploader
	folders  *folderResolver
	opts     Options
	logger   *slog.Logger
}

// NewOperations wires an Uploader and the single-shot collaborators to one
// drive.
func NewOperations(client ItemClient, opts Options, logger *slog.Logger) *Operations {
	if logger == nil {
		logger = slog.Default()
	}

	u := NewUploader(client, opts.DriveID, opts.RemoteRoot, opts.ChunkSize, logger)

	return &Operations{
		client:   client,
		uploader: u,
		folders:  u.folders,
		opts:     opts,
		logger:   logger,
	}
}

// Uploader returns the chunked uploader.
func (o *Operations) Uploader() *Uploader {
	return o.uploader
}

// Upload begins a file upload and returns its record stream together with
// the task's cooperative cancel function.
func (o *Operations) Upload(ctx context.Context, req UploadRequest) (<-chan ActionRecord, func()) {
	task := o.uploader.Start(ctx, req)
	return task.Records(), task.Cancel
}

// CreateFolder ensures the folder name (and any missing ancestor) exists.
func (o *Operations) CreateFolder(ctx context.Context, name string) <-chan ActionRecord {
	out := make(chan ActionRecord, 1)

	go func() {
		defer close(out)

		out <- o.createFolder(ctx, OpCreate, name)
	}()

	return out
}

func (o *Operations) createFolder(ctx context.Context, op Op, name string) ActionRecord {
	rec := NewRecord(PhaseEnd, op, TypeFolder, name)

	if _, err := o.folders.Ensure(ctx, o.remote(name)); err != nil {
		return o.failed(ctx, rec, err)
	}

	return rec.WithStep(StepCreated)
}

// MoveRequest describes a rename or move. The new-path fields are used when
// the old path is gone remotely and the move degrades into an add.
type MoveRequest struct {
	Type     ItemType
	OldName  string
	Name     string
	Hash     Hashes
	Modified time.Time
	Size     int64
	Content  RangeFunc
}

// Move relocates OldName to Name. When OldName does not exist remotely the
// new path is created (folders) or uploaded (files) instead.
func (o *Operations) Move(ctx context.Context, req MoveRequest) <-chan ActionRecord {
	out := make(chan ActionRecord, recordBuffer)

	go func() {
		defer close(out)

		o.move(ctx, req, out)
	}()

	return out
}

func (o *Operations) move(ctx context.Context, req MoveRequest, out chan<- ActionRecord) {
	rec := NewRecord(PhaseEnd, OpMove, req.Type, req.Name).WithFrom(req.OldName)

	item, err := o.client.GetItemByPath(ctx, o.opts.DriveID, o.remote(req.OldName))
	if errors.Is(err, graph.ErrNotFound) {
		o.logger.Debug("move source missing remotely, adding instead",
			slog.String("old", req.OldName),
			slog.String("new", req.Name),
		)

		o.addInstead(ctx, req, out)

		return
	}

	if err != nil {
		out <- o.failed(ctx, rec, fmt.Errorf("driveops: resolving %q: %w", req.OldName, err))
		return
	}

	parentPath, leaf := splitRemote(o.remote(req.Name))

	parent, err := o.folders.Ensure(ctx, parentPath)
	if err != nil {
		out <- o.failed(ctx, rec, err)
		return
	}

	if _, err := o.client.MoveItem(ctx, o.folders.driveOf(item), item.ID, parent.ID, leaf); err != nil {
		out <- o.failed(ctx, rec, fmt.Errorf("driveops: moving %q: %w", req.OldName, err))
		return
	}

	o.logger.Info("moved",
		slog.String("old", req.OldName),
		slog.String("new", req.Name),
	)

	out <- rec.WithStep(StepMoved)
}

func (o *Operations) addInstead(ctx context.Context, req MoveRequest, out chan<- ActionRecord) {
	if req.Type == TypeFolder {
		out <- o.createFolder(ctx, OpMove, req.Name).WithFrom(req.OldName)
		return
	}

	task := o.uploader.Start(ctx, UploadRequest{
		Name:     req.Name,
		Hash:     req.Hash,
		Modified: req.Modified,
		Size:     req.Size,
		Content:  req.Content,
		From:     req.OldName,
		Op:       OpMove,
	})

	for rec := range task.Records() {
		out <- rec
	}
}

// Remove deletes name. A path already absent remotely ends with step
// "absent" rather than an error.
func (o *Operations) Remove(ctx context.Context, typ ItemType, name string) <-chan ActionRecord {
	out := make(chan ActionRecord, 1)

	go func() {
		defer close(out)

		out <- o.remove(ctx, typ, name)
	}()

	return out
}

func (o *Operations) remove(ctx context.Context, typ ItemType, name string) ActionRecord {
	rec := NewRecord(PhaseEnd, OpRemove, typ, name)
	remotePath := o.remote(name)

	if remotePath == "" {
		return rec.WithStep(StepAbsent)
	}

	item, err := o.client.GetItemByPath(ctx, o.opts.DriveID, remotePath)
	if errors.Is(err, graph.ErrNotFound) {
		return rec.WithStep(StepAbsent)
	}

	if err != nil {
		return o.failed(ctx, rec, fmt.Errorf("driveops: resolving %q: %w", name, err))
	}

	err = o.client.DeleteItem(ctx, o.folders.driveOf(item), item.ID)
	if errors.Is(err, graph.ErrNotFound) {
		return rec.WithStep(StepAbsent)
	}

	if err != nil {
		return o.failed(ctx, rec, fmt.Errorf("driveops: deleting %q: %w", name, err))
	}

	o.logger.Info("removed", slog.String("path", remotePath))

	return rec.WithStep(StepRemoved)
}

// failed converts rec into its terminal failure form: cancel when ctx was
// canceled, error otherwise.
func (o *Operations) failed(ctx context.Context, rec ActionRecord, err error) ActionRecord {
	rec.Time = nowFunc()

	if ctx.Err() != nil {
		return withPhase(rec, PhaseCancel)
	}

	o.logger.Warn("operation failed",
		slog.String("op", string(rec.Op)),
		slog.String("name", rec.Name),
		slog.String("error", err.Error()),
	)

	return withPhase(rec, PhaseError).WithErr(err)
}

func (o *Operations) remote(name string) string {
	return JoinRemote(o.opts.RemoteRoot, name)
}
