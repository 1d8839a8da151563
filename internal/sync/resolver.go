package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

// errNoTerminal marks an operation stream that closed without a terminal
// record.
var errNoTerminal = errors.New("sync: operation ended without a terminal record")

// outBuffer lets in-flight operations run ahead of a slow record consumer.
const outBuffer = 64

// Operator performs the remote side of each routed event. Every returned
// stream ends with one terminal record and is then closed. Satisfied by
// *driveops.Operations.
type Operator interface {
	CreateFolder(ctx context.Context, name string) <-chan driveops.ActionRecord
	Upload(ctx context.Context, req driveops.UploadRequest) (<-chan driveops.ActionRecord, func())
	Move(ctx context.Context, req driveops.MoveRequest) <-chan driveops.ActionRecord
	Remove(ctx context.Context, typ driveops.ItemType, name string) <-chan driveops.ActionRecord
}

// Route maps an event to the operation that handles it. Folder copies are
// ignored: every contained file produces its own event.
func Route(ev ChangeEvent) driveops.Op {
	if ev.Type != driveops.TypeFile && ev.Type != driveops.TypeFolder {
		return driveops.OpIgnore
	}

	switch ev.Action {
	case ActionAdd:
		if ev.Type == driveops.TypeFolder {
			return driveops.OpCreate
		}

		return driveops.OpUpload
	case ActionChange:
		if ev.Type == driveops.TypeFile {
			return driveops.OpUpload
		}
	case ActionCopy:
		if ev.Type == driveops.TypeFile {
			return driveops.OpUpload
		}
	case ActionMove:
		return driveops.OpMove
	case ActionRemove:
		return driveops.OpRemove
	}

	return driveops.OpIgnore
}

type cancelEntry struct {
	cancel func()
}

// Resolver pairs each incoming event with a WorkGate token, routes it and
// forwards the operation's records. A token is returned to the gate only
// after its operation's terminal record has been forwarded.
type Resolver struct {
	ops    Operator
	gate   *WorkGate
	logger *slog.Logger

	mu      stdsync.Mutex
	cancels map[string]*cancelEntry
}

// NewResolver creates a Resolver.
func NewResolver(ops Operator, gate *WorkGate, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		ops:     ops,
		gate:    gate,
		logger:  logger,
		cancels: make(map[string]*cancelEntry),
	}
}

// Run consumes events until the channel closes or ctx is done and returns
// the merged record stream. The stream closes once every started operation
// has reported its terminal record; callers must drain it.
func (r *Resolver) Run(ctx context.Context, events <-chan ChangeEvent) <-chan driveops.ActionRecord {
	out := make(chan driveops.ActionRecord, outBuffer)

	go func() {
		var wg stdsync.WaitGroup

		defer close(out)
		defer wg.Wait()

		for {
			var (
				ev ChangeEvent
				ok bool
			)

			select {
			case <-ctx.Done():
				return
			case ev, ok = <-events:
				if !ok {
					return
				}
			}

			tok, err := r.gate.Acquire(ctx)
			if err != nil {
				r.logger.Info("change dropped on shutdown",
					slog.String("action", string(ev.Action)),
					slog.String("type", string(ev.Type)),
					slog.String("name", ev.Name),
					slog.String("error", err.Error()),
				)

				return
			}

			wg.Add(1)

			go func() {
				defer wg.Done()
				defer r.gate.Release(tok)

				r.dispatch(ctx, ev, out)
			}()
		}
	}()

	return out
}

// Cancel requests cooperative cancellation of the in-flight upload of name.
// It reports whether such an upload was found.
func (r *Resolver) Cancel(name string) bool {
	r.mu.Lock()
	entry, ok := r.cancels[name]
	r.mu.Unlock()

	if !ok {
		return false
	}

	entry.cancel()

	return true
}

func (r *Resolver) dispatch(ctx context.Context, ev ChangeEvent, out chan<- driveops.ActionRecord) {
	op := Route(ev)

	r.logger.Debug("dispatching",
		slog.String("action", string(ev.Action)),
		slog.String("type", string(ev.Type)),
		slog.String("name", ev.Name),
		slog.String("op", string(op)),
	)

	start := driveops.NewRecord(driveops.PhaseStart, op, ev.Type, ev.Name).WithFrom(sourceOf(ev))

	var stream <-chan driveops.ActionRecord

	switch op {
	case driveops.OpCreate:
		stream = r.ops.CreateFolder(ctx, ev.Name)

	case driveops.OpUpload:
		var cancel func()

		stream, cancel = r.ops.Upload(ctx, driveops.UploadRequest{
			Name:     ev.Name,
			Hash:     ev.Hash,
			Modified: ev.Modified,
			Size:     ev.Size,
			Content:  ev.Content,
			From:     ev.From,
		})
		start.Cancel = cancel

		entry := &cancelEntry{cancel: cancel}
		r.track(ev.Name, entry)
		defer r.untrack(ev.Name, entry)

	case driveops.OpMove:
		stream = r.ops.Move(ctx, driveops.MoveRequest{
			Type:     ev.Type,
			OldName:  sourceOf(ev),
			Name:     ev.Name,
			Hash:     ev.Hash,
			Modified: ev.Modified,
			Size:     ev.Size,
			Content:  ev.Content,
		})

	case driveops.OpRemove:
		stream = r.ops.Remove(ctx, ev.Type, ev.Name)

	default:
		out <- start
		out <- driveops.NewRecord(driveops.PhaseEnd, driveops.OpIgnore, ev.Type, ev.Name)

		return
	}

	out <- start

	terminal := false

	for rec := range stream {
		if terminal {
			continue
		}

		out <- rec
		terminal = rec.Phase.Terminal()
	}

	if !terminal {
		out <- driveops.NewRecord(driveops.PhaseError, op, ev.Type, ev.Name).WithErr(errNoTerminal)
	}
}

func (r *Resolver) track(name string, entry *cancelEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancels[name] = entry
}

func (r *Resolver) untrack(name string, entry *cancelEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancels[name] == entry {
		delete(r.cancels, name)
	}
}

// sourceOf returns the move or copy source of ev.
func sourceOf(ev ChangeEvent) string {
	if ev.OldName != "" {
		return ev.OldName
	}

	return ev.From
}
