// Package feed broadcasts ActionRecords to websocket clients and accepts
// cancellation requests from them.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/onedrive-push/internal/driveops"
)

const (
	// clientBuffer is how many encoded records a client may lag behind
	// before records are dropped for it.
	clientBuffer = 256

	writeTimeout = 10 * time.Second
)

// Canceler requests cancellation of an in-flight upload by name.
type Canceler interface {
	Cancel(name string) bool
}

// ControlMessage is sent by clients. Cancel names the upload to stop.
type ControlMessage struct {
	Cancel string `json:"cancel"`
}

// CancelReply answers a ControlMessage.
type CancelReply struct {
	Cancel string `json:"cancel"`
	Found  bool   `json:"found"`
}

type client struct {
	send   chan []byte
	closed bool
}

// Hub is an http.Handler that upgrades each request to a websocket and
// streams every published record to it as JSON.
type Hub struct {
	canceler Canceler
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Int64
}

// NewHub creates a Hub. A nil canceler rejects every cancel request.
func NewHub(canceler Canceler, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		canceler: canceler,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
}

// Publish sends rec to every connected client without blocking. Clients
// whose buffer is full miss the record.
func (h *Hub) Publish(rec driveops.ActionRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		h.logger.Warn("encoding record for feed", slog.String("name", rec.Name), slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for cl := range h.clients {
		h.deliverLocked(cl, data)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Dropped returns how many per-client deliveries were skipped.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for cl := range h.clients {
		h.removeLocked(cl)
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", slog.String("remote", r.RemoteAddr), slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	cl := &client{send: make(chan []byte, clientBuffer)}
	if !h.add(cl) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.remove(cl)

	h.logger.Debug("feed client connected", slog.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.readLoop(ctx, cancel, conn, cl)

	for {
		select {
		case <-ctx.Done():
			return

		case data, ok := <-cl.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}

			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()

			if err != nil {
				h.logger.Debug("feed client write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, cl *client) {
	defer cancel()

	for {
		var msg ControlMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("feed client read failed", slog.String("error", err.Error()))
			}

			return
		}

		if msg.Cancel == "" {
			continue
		}

		found := h.canceler != nil && h.canceler.Cancel(msg.Cancel)

		h.logger.Info("cancel requested over feed",
			slog.String("name", msg.Cancel),
			slog.Bool("found", found),
		)

		data, err := json.Marshal(CancelReply{Cancel: msg.Cancel, Found: found})
		if err != nil {
			continue
		}

		h.mu.Lock()
		h.deliverLocked(cl, data)
		h.mu.Unlock()
	}
}

func (h *Hub) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[cl] = struct{}{}

	return true
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(cl)
}

func (h *Hub) removeLocked(cl *client) {
	if cl.closed {
		return
	}

	cl.closed = true
	close(cl.send)
	delete(h.clients, cl)
}

func (h *Hub) deliverLocked(cl *client, data []byte) {
	if cl.closed {
		return
	}

	select {
	case cl.send <- data:
	default:
		h.dropped.Add(1)
	}
}
