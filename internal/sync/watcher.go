package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

const (
	// DefaultDebounce is how long a file must stay quiet before it is hashed
	// and reported.
	DefaultDebounce = 300 * time.Millisecond

	// renameWindow is how long a Rename waits for its matching Create before
	// it is reported as a removal.
	renameWindow = 200 * time.Millisecond

	timerBuffer = 64
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Root        string
	InitialScan bool // report every existing entry as added on start
	Debounce    time.Duration
	Filter      *Filter
}

type timerKind int

const (
	timerDebounce timerKind = iota
	timerRename
)

type timerFire struct {
	kind timerKind
	path string
	seq  uint64
}

type knownEntry struct {
	typ  driveops.ItemType
	hash string
}

type pendingRename struct {
	path string
	typ  driveops.ItemType
	seq  uint64
}

// Watcher turns fsnotify events under a root directory into ChangeEvents.
// It watches directories recursively, debounces writes, pairs Rename with
// the following Create into a move, and reports a new file whose content
// matches a live file as a copy of it.
type Watcher struct {
	root     string
	debounce time.Duration
	initial  bool
	fsw      FsWatcher
	filter   *Filter
	logger   *slog.Logger

	// Owned by the Run goroutine.
	known   map[string]*knownEntry
	onDisk  map[string]string // NFC name -> on-disk spelling, where they differ
	byHash  map[string]map[string]struct{}
	timers  map[string]*time.Timer
	pending *pendingRename
	seq     uint64

	fire chan timerFire
	stop chan struct{}
}

// NewWatcher creates a Watcher backed by fsnotify.
func NewWatcher(opts WatcherOptions, logger *slog.Logger) (*Watcher, error) {
	fsw, err := newFsnotifyWatcher()
	if err != nil {
		return nil, fmt.Errorf("sync: creating filesystem watcher: %w", err)
	}

	return newWatcher(fsw, opts, logger)
}

func newWatcher(fsw FsWatcher, opts WatcherOptions, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("sync: resolving %s: %w", opts.Root, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("sync: watch root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("sync: watch root %s is not a directory", root)
	}

	filter := opts.Filter
	if filter == nil {
		filter = NewFilter(nil, logger)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		root:     root,
		debounce: debounce,
		initial:  opts.InitialScan,
		fsw:      fsw,
		filter:   filter,
		logger:   logger,
		known:    make(map[string]*knownEntry),
		onDisk:   make(map[string]string),
		byHash:   make(map[string]map[string]struct{}),
		timers:   make(map[string]*time.Timer),
		fire:     make(chan timerFire, timerBuffer),
		stop:     make(chan struct{}),
	}, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Run watches until ctx is done, sending events to out. It closes out and
// the underlying fsnotify watcher on return.
func (w *Watcher) Run(ctx context.Context, out chan<- ChangeEvent) error {
	defer close(out)
	defer w.fsw.Close()
	defer w.stopTimers()

	w.logger.Info("watcher starting",
		slog.String("root", w.root),
		slog.Bool("initial_scan", w.initial),
	)

	if err := w.addTree(ctx, w.root, w.initial, out); err != nil {
		return err
	}

	w.logger.Info("watcher ready", slog.Int("known", len(w.known)))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events():
			if !ok {
				return nil
			}

			w.handle(ctx, ev, out)

		case err, ok := <-w.fsw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error", slog.String("error", err.Error()))

		case f := <-w.fire:
			w.onTimer(ctx, f, out)
		}
	}
}

func (w *Watcher) stopTimers() {
	close(w.stop)

	for _, t := range w.timers {
		t.Stop()
	}
}

// addTree registers watches on dir and everything below it. With emit set,
// every entry is reported as added, parents before children.
func (w *Watcher) addTree(ctx context.Context, absDir string, emit bool, out chan<- ChangeEvent) error {
	walkErr := filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("walk error", slog.String("path", p), slog.String("error", err.Error()))
			return skipEntry(d)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if p == absDir {
			w.watch(p)
			return nil
		}

		rel, ok := w.rel(p)
		if !ok || d.Type()&fs.ModeSymlink != 0 || w.filter.Excluded(rel, d.IsDir()) {
			return skipEntry(d)
		}

		if d.IsDir() {
			w.watch(p)
		}

		if _, seen := w.known[rel]; seen {
			return nil
		}

		if d.IsDir() {
			w.remember(rel, driveops.TypeFolder, "")

			if emit {
				w.emit(ctx, out, ChangeEvent{Action: ActionAdd, Type: driveops.TypeFolder, Name: rel})
			}

			return nil
		}

		if !emit {
			w.remember(rel, driveops.TypeFile, "")
			return nil
		}

		ev, ok := w.fileEvent(ActionAdd, p, rel)
		if !ok {
			return nil
		}

		w.remember(rel, driveops.TypeFile, ev.Hash.SHA1)
		w.emit(ctx, out, ev)

		return nil
	})

	if walkErr != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("sync: scanning %s: %w", absDir, walkErr)
	}

	return nil
}

func (w *Watcher) watch(absDir string) {
	if err := w.fsw.Add(absDir); err != nil {
		w.logger.Warn("failed to add watch", slog.String("path", absDir), slog.String("error", err.Error()))
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, out chan<- ChangeEvent) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}

	rel, ok := w.rel(ev.Name)
	if !ok || rel == "" {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		w.onCreate(ctx, ev.Name, rel, out)
	case ev.Has(fsnotify.Write):
		if e, known := w.known[rel]; !known || e.typ == driveops.TypeFile {
			w.schedule(rel)
		}
	case ev.Has(fsnotify.Remove):
		w.onRemove(ctx, rel, out)
	case ev.Has(fsnotify.Rename):
		w.onRename(ctx, rel, out)
	}
}

func (w *Watcher) onCreate(ctx context.Context, abs, rel string, out chan<- ChangeEvent) {
	info, err := os.Lstat(abs)
	if err != nil {
		w.logger.Debug("stat failed for created path", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	if info.Mode()&fs.ModeSymlink != 0 || w.filter.Excluded(rel, info.IsDir()) {
		return
	}

	typ := driveops.TypeFile
	if info.IsDir() {
		typ = driveops.TypeFolder
	}

	if p := w.takePending(ctx, typ, out); p != nil && p.path != rel {
		w.onMove(ctx, p, abs, rel, out)
		return
	}

	if typ == driveops.TypeFile {
		w.schedule(rel)
		return
	}

	if _, seen := w.known[rel]; seen {
		return
	}

	w.remember(rel, driveops.TypeFolder, "")
	w.emit(ctx, out, ChangeEvent{Action: ActionAdd, Type: driveops.TypeFolder, Name: rel, Modified: info.ModTime()})

	// Entries created before the watch was registered.
	if err := w.addTree(ctx, abs, true, out); err != nil {
		w.logger.Warn("scan of new directory failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

// takePending returns the unpaired Rename if it matches typ. A pending
// rename of the other type is reported as a removal.
func (w *Watcher) takePending(ctx context.Context, typ driveops.ItemType, out chan<- ChangeEvent) *pendingRename {
	p := w.pending
	if p == nil {
		return nil
	}

	w.pending = nil

	if p.typ == typ {
		return p
	}

	w.removed(ctx, p.path, p.typ, out)

	return nil
}

func (w *Watcher) onMove(ctx context.Context, p *pendingRename, abs, rel string, out chan<- ChangeEvent) {
	ev := ChangeEvent{Action: ActionMove, Type: p.typ, Name: rel, OldName: p.path}

	if p.typ == driveops.TypeFolder {
		_ = w.fsw.Remove(w.abs(p.path))

		w.renameIndex(p.path, rel)

		w.emit(ctx, out, ev)

		if err := w.addTree(ctx, abs, false, out); err != nil {
			w.logger.Warn("rewatch of moved directory failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

		return
	}

	fileEv, ok := w.fileEvent(ActionMove, abs, rel)
	if ok {
		ev = fileEv
		ev.OldName = p.path
	}

	w.forget(p.path)
	w.remember(rel, driveops.TypeFile, ev.Hash.SHA1)
	w.emit(ctx, out, ev)
}

func (w *Watcher) onRename(ctx context.Context, rel string, out chan<- ChangeEvent) {
	e, ok := w.known[rel]
	if !ok {
		return
	}

	w.cancelTimer(rel)

	if w.pending != nil {
		prev := w.pending
		w.pending = nil
		w.removed(ctx, prev.path, prev.typ, out)
	}

	w.seq++
	w.pending = &pendingRename{path: rel, typ: e.typ, seq: w.seq}
	w.after(renameWindow, timerFire{kind: timerRename, path: rel, seq: w.seq})
}

func (w *Watcher) onRemove(ctx context.Context, rel string, out chan<- ChangeEvent) {
	e, ok := w.known[rel]
	if !ok {
		return
	}

	w.cancelTimer(rel)
	w.removed(ctx, rel, e.typ, out)
}

func (w *Watcher) removed(ctx context.Context, rel string, typ driveops.ItemType, out chan<- ChangeEvent) {
	w.forget(rel)
	w.emit(ctx, out, ChangeEvent{Action: ActionRemove, Type: typ, Name: rel})
}

func (w *Watcher) onTimer(ctx context.Context, f timerFire, out chan<- ChangeEvent) {
	switch f.kind {
	case timerRename:
		if w.pending != nil && w.pending.seq == f.seq {
			p := w.pending
			w.pending = nil
			w.removed(ctx, p.path, p.typ, out)
		}

	case timerDebounce:
		delete(w.timers, f.path)
		w.flush(ctx, f.path, out)
	}
}

// flush reports a file whose writes have settled.
func (w *Watcher) flush(ctx context.Context, rel string, out chan<- ChangeEvent) {
	abs := w.abs(rel)

	info, err := os.Lstat(abs)
	if err != nil || !info.Mode().IsRegular() || w.filter.Excluded(rel, false) {
		return
	}

	prev, known := w.known[rel]

	action := ActionAdd
	if known {
		action = ActionChange
	}

	ev, ok := w.fileEvent(action, abs, rel)
	if !ok {
		return
	}

	if known && prev.hash != "" && prev.hash == ev.Hash.SHA1 {
		w.logger.Debug("content unchanged", slog.String("path", rel))
		return
	}

	if !known {
		if src := w.copySource(ev.Hash.SHA1, rel); src != "" {
			ev.Action = ActionCopy
			ev.From = src
		}
	}

	w.remember(rel, driveops.TypeFile, ev.Hash.SHA1)
	w.emit(ctx, out, ev)
}

// fileEvent stats and hashes a file. Files that vanish or cannot be read are
// skipped.
func (w *Watcher) fileEvent(action Action, abs, rel string) (ChangeEvent, bool) {
	info, err := os.Stat(abs)
	if err != nil {
		w.logger.Debug("stat failed", slog.String("path", rel), slog.String("error", err.Error()))
		return ChangeEvent{}, false
	}

	hashes, err := driveops.ComputeHashes(abs)
	if err != nil {
		w.logger.Warn("hash failed, skipping file", slog.String("path", rel), slog.String("error", err.Error()))
		return ChangeEvent{}, false
	}

	return ChangeEvent{
		Action:   action,
		Type:     driveops.TypeFile,
		Name:     rel,
		Hash:     hashes,
		Modified: info.ModTime(),
		Size:     info.Size(),
		Content:  driveops.FileRange(abs),
	}, true
}

func (w *Watcher) copySource(hash, rel string) string {
	if hash == "" {
		return ""
	}

	var candidates []string

	for p := range w.byHash[hash] {
		if p != rel {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return ""
	}

	return slices.Min(candidates)
}

func (w *Watcher) schedule(rel string) {
	w.cancelTimer(rel)
	w.timers[rel] = w.after(w.debounce, timerFire{kind: timerDebounce, path: rel})
}

func (w *Watcher) cancelTimer(rel string) {
	if t, ok := w.timers[rel]; ok {
		t.Stop()
		delete(w.timers, rel)
	}
}

func (w *Watcher) after(d time.Duration, f timerFire) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case w.fire <- f:
		case <-w.stop:
		}
	})
}

func (w *Watcher) emit(ctx context.Context, out chan<- ChangeEvent, ev ChangeEvent) {
	w.logger.Debug("local change",
		slog.String("action", string(ev.Action)),
		slog.String("type", string(ev.Type)),
		slog.String("name", ev.Name),
	)

	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// remember records rel in the known-path and content indexes.
func (w *Watcher) remember(rel string, typ driveops.ItemType, hash string) {
	w.dropHash(rel)
	w.known[rel] = &knownEntry{typ: typ, hash: hash}

	if hash == "" {
		return
	}

	if w.byHash[hash] == nil {
		w.byHash[hash] = make(map[string]struct{})
	}

	w.byHash[hash][rel] = struct{}{}
}

// forget drops rel and everything below it from the indexes.
func (w *Watcher) forget(rel string) {
	for p := range w.known {
		if within(p, rel) {
			w.dropHash(p)
			delete(w.known, p)
			w.cancelTimer(p)
		}
	}

	for p := range w.onDisk {
		if within(p, rel) {
			delete(w.onDisk, p)
		}
	}
}

// renameIndex moves oldRel and everything below it to newRel, keeping the
// on-disk spelling of each entry under the new parent.
func (w *Watcher) renameIndex(oldRel, newRel string) {
	type movedEntry struct {
		e    *knownEntry
		disk string
	}

	oldDisk, newDisk := w.diskRel(oldRel), w.diskRel(newRel)
	moved := make(map[string]movedEntry)

	for p, e := range w.known {
		if !within(p, oldRel) {
			continue
		}

		np := newRel + strings.TrimPrefix(p, oldRel)

		disk := np
		if d := w.diskRel(p); within(d, oldDisk) {
			disk = newDisk + strings.TrimPrefix(d, oldDisk)
		}

		moved[np] = movedEntry{e: e, disk: disk}

		w.dropHash(p)
		w.cancelTimer(p)
		delete(w.known, p)
		delete(w.onDisk, p)
	}

	for p, m := range moved {
		w.remember(p, m.e.typ, m.e.hash)

		if m.disk != p {
			w.onDisk[p] = m.disk
		}
	}
}

func within(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+"/")
}

func (w *Watcher) dropHash(rel string) {
	e, ok := w.known[rel]
	if !ok || e.hash == "" {
		return
	}

	delete(w.byHash[e.hash], rel)

	if len(w.byHash[e.hash]) == 0 {
		delete(w.byHash, e.hash)
	}
}

// rel converts an absolute path to a slash-separated, NFC-normalized path
// relative to the root. The on-disk spelling is remembered when it differs,
// so that abs can find the file again.
func (w *Watcher) rel(abs string) (string, bool) {
	r, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", false
	}

	r = filepath.ToSlash(r)
	if r == "." {
		return "", true
	}

	if r == ".." || strings.HasPrefix(r, "../") {
		return "", false
	}

	n := norm.NFC.String(r)
	if n != r {
		w.onDisk[n] = r
	} else {
		delete(w.onDisk, n)
	}

	return n, true
}

// diskRel returns the on-disk spelling of the NFC path rel.
func (w *Watcher) diskRel(rel string) string {
	if d, ok := w.onDisk[rel]; ok {
		return d
	}

	return rel
}

func (w *Watcher) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(w.diskRel(rel)))
}

// skipEntry returns filepath.SkipDir for directories (to skip the subtree)
// or nil for files.
func skipEntry(d fs.DirEntry) error {
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}

	return nil
}
