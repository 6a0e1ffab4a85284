package ws

import (
	"errors"
	"sync/atomic"

	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/buzzer/internal/game"
)

var ErrConnClosed = errors.New("connection closed")

// handle is the game.Conn of one socket. It remembers the newest epoch it
// delivered so buzzes without an explicit epoch can be stamped.
type handle struct {
	conn   socketio.Conn
	epoch  atomic.Uint64
	closed atomic.Bool
}

func newHandle(conn socketio.Conn) *handle {
	return &handle{conn: conn}
}

func (h *handle) ID() string { return h.conn.ID() }

func (h *handle) Send(ev game.Event) error {
	if h.closed.Load() {
		return ErrConnClosed
	}
	h.conn.Emit(ev.Name, ev.Payload)
	h.observe(ev.Epoch)
	return nil
}

func (h *handle) observe(epoch uint64) {
	for {
		cur := h.epoch.Load()
		if epoch <= cur || h.epoch.CompareAndSwap(cur, epoch) {
			return
		}
	}
}

func (h *handle) lastEpoch() uint64 { return h.epoch.Load() }

func (h *handle) close() { h.closed.Store(true) }
