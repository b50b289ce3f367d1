package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/penumbralworks/narvox/pkg/audio"
)

// ErrNoListener is returned by [Hub.Play] when no audio client is connected.
var ErrNoListener = errors.New("server: no audio listener connected")

// Hub is the audio sink the narration player writes to. It forwards clips
// to the currently attached listener sink; at most one listener is live at
// a time and a new attachment replaces the old one. All methods are safe
// for concurrent use.
type Hub struct {
	mu       sync.Mutex
	sink     audio.Sink
	replaced chan struct{}
	closed   bool
}

var _ audio.Sink = (*Hub)(nil)

// NewHub returns a [Hub] with no listener attached.
func NewHub() *Hub {
	return &Hub{}
}

// Attach makes s the active listener sink, closing any previous one. The
// returned channel is closed when a later Attach displaces s or the hub
// shuts down, so the caller can unblock its connection handler.
func (h *Hub) Attach(s audio.Sink) <-chan struct{} {
	ch := make(chan struct{})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		_ = s.Close()
		return ch
	}
	prev, prevCh := h.sink, h.replaced
	h.sink, h.replaced = s, ch
	h.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			slog.Debug("closing displaced audio listener", "err", err)
		}
		close(prevCh)
	}
	return ch
}

// Detach removes s if it is still the active listener. Called by the
// connection handler when the client goes away on its own.
func (h *Hub) Detach(s audio.Sink) {
	h.mu.Lock()
	var ch chan struct{}
	if h.sink == s {
		ch = h.replaced
		h.sink, h.replaced = nil, nil
	}
	h.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Listening reports whether a listener is currently attached.
func (h *Hub) Listening() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink != nil
}

// Play forwards the clip to the attached listener. Returns [ErrNoListener]
// when nobody is connected; the narration loop records that as a segment
// failure and advances.
func (h *Hub) Play(ctx context.Context, clip audio.Clip) (audio.Playback, error) {
	h.mu.Lock()
	s := h.sink
	h.mu.Unlock()
	if s == nil {
		return nil, ErrNoListener
	}
	return s.Play(ctx, clip)
}

// Close shuts the hub down, closing the attached listener. Further Attach
// calls close the offered sink immediately.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	s, ch := h.sink, h.replaced
	h.sink, h.replaced = nil, nil
	h.mu.Unlock()

	var err error
	if s != nil {
		err = s.Close()
		close(ch)
	}
	return err
}
