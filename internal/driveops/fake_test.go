package driveops

import (
	"context"
	"crypto/sha1" //nolint:gosec // test digest
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/onedrive-push/internal/graph"
)

const testDriveID = "d1"

type putCall struct {
	start, end, total int64
	body              string
}

// fakeDrive is an in-memory ItemClient keyed by remote path.
type fakeDrive struct {
	mu       sync.Mutex
	items    map[string]*graph.Item
	nextID   int
	calls    []string
	puts     []putCall
	sessions map[string]string // upload URL -> remote path
	received map[string][]byte // upload URL -> bytes so far

	getErr     map[string]error
	sessionErr error
	putErr     error
	deleteErr  error

	// onPut runs inside UploadChunk, after the body is read and before the
	// response; index is 0-based.
	onPut func(index int)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		items:    map[string]*graph.Item{"": {ID: "root", Name: "root", DriveID: testDriveID, IsFolder: true}},
		sessions: map[string]string{},
		received: map[string][]byte{},
		getErr:   map[string]error{},
	}
}

func notFound() error {
	return &graph.GraphError{StatusCode: http.StatusNotFound, Message: "itemNotFound", Err: graph.ErrNotFound}
}

func (f *fakeDrive) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDrive) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

func (f *fakeDrive) putCalls() []putCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]putCall(nil), f.puts...)
}

func (f *fakeDrive) hasCall(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.calls {
		if c == call {
			return true
		}
	}

	return false
}

// addFile seeds a remote file.
func (f *fakeDrive) addFile(p, sha1Hex string, modified time.Time) *graph.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.put(p, &graph.Item{SHA1Hash: sha1Hex, ModifiedAt: modified})
}

// addFolder seeds a remote folder.
func (f *fakeDrive) addFolder(p string) *graph.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.put(p, &graph.Item{IsFolder: true})
}

func (f *fakeDrive) put(p string, item *graph.Item) *graph.Item {
	f.nextID++
	item.ID = fmt.Sprintf("id-%d", f.nextID)
	item.Name = path.Base(p)
	item.DriveID = testDriveID
	f.items[p] = item

	return item
}

func (f *fakeDrive) pathOf(id string) (string, bool) {
	for p, it := range f.items {
		if it.ID == id {
			return p, true
		}
	}

	return "", false
}

func (f *fakeDrive) GetItemByPath(_ context.Context, _, remotePath string) (*graph.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("get:" + remotePath)

	if err, ok := f.getErr[remotePath]; ok {
		return nil, err
	}

	it, ok := f.items[remotePath]
	if !ok {
		return nil, notFound()
	}

	cp := *it

	return &cp, nil
}

func (f *fakeDrive) CreateFolder(_ context.Context, _, parentID, name string) (*graph.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, ok := f.pathOf(parentID)
	if !ok {
		return nil, notFound()
	}

	p := CleanRemotePath(path.Join(parent, name))
	f.record("mkdir:" + p)

	if _, exists := f.items[p]; exists {
		return nil, &graph.GraphError{StatusCode: http.StatusConflict, Err: graph.ErrConflict}
	}

	cp := *f.put(p, &graph.Item{IsFolder: true})

	return &cp, nil
}

func (f *fakeDrive) CreateUploadSession(_ context.Context, _, parentID, name string) (*graph.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, _ := f.pathOf(parentID)
	p := CleanRemotePath(path.Join(parent, name))
	f.record("session:" + p)

	if f.sessionErr != nil {
		return nil, f.sessionErr
	}

	url := fmt.Sprintf("https://upload.test/%d", len(f.sessions))
	f.sessions[url] = p

	return &graph.UploadSession{UploadURL: url, ParentDriveID: testDriveID, ParentItemID: parentID}, nil
}

func (f *fakeDrive) UploadChunk(
	_ context.Context, session *graph.UploadSession, chunk io.Reader, start, end, total int64,
) (*graph.Item, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		prev := f.maxInFlight.Load()
		if n <= prev || f.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}

	body, err := io.ReadAll(chunk)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	index := len(f.puts)
	f.puts = append(f.puts, putCall{start: start, end: end, total: total, body: string(body)})
	f.record(fmt.Sprintf("put:%d-%d/%d", start, end, total))
	hook := f.onPut
	putErr := f.putErr
	f.mu.Unlock()

	if hook != nil {
		hook(index)
	}

	if putErr != nil {
		return nil, putErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.received[session.UploadURL] = append(f.received[session.UploadURL], body...)

	if end != total-1 {
		return nil, nil
	}

	sum := sha1.Sum(f.received[session.UploadURL]) //nolint:gosec // test digest
	item := f.put(f.sessions[session.UploadURL], &graph.Item{
		Size:       total,
		SHA1Hash:   hex.EncodeToString(sum[:]),
		ModifiedAt: time.Now(),
	})
	cp := *item

	return &cp, nil
}

func (f *fakeDrive) MoveItem(_ context.Context, _, itemID, newParentID, newName string) (*graph.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	old, ok := f.pathOf(itemID)
	if !ok {
		return nil, notFound()
	}

	parent, _ := f.pathOf(newParentID)
	p := CleanRemotePath(path.Join(parent, newName))
	f.record("move:" + old + "->" + p)

	it := f.items[old]
	delete(f.items, old)
	it.Name = newName
	f.items[p] = it
	cp := *it

	return &cp, nil
}

func (f *fakeDrive) DeleteItem(_ context.Context, _, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.pathOf(itemID)
	f.record("delete:" + p)

	if f.deleteErr != nil {
		return f.deleteErr
	}

	if !ok {
		return notFound()
	}

	delete(f.items, p)

	return nil
}

func sha1Hex(data string) string {
	sum := sha1.Sum([]byte(data)) //nolint:gosec // test digest
	return hex.EncodeToString(sum[:])
}

func testLogger() *slog.Logger {
	return slog.Default()
}

// collect drains a record stream.
func collect(ch <-chan ActionRecord) []ActionRecord {
	var out []ActionRecord
	for rec := range ch {
		out = append(out, rec)
	}

	return out
}
