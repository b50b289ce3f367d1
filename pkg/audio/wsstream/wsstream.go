// Package wsstream delivers narration audio to a browser client over a
// WebSocket connection.
//
// The sink speaks a small two-channel protocol: text messages carry JSON
// control events (clip start/end, pause, resume) and binary messages carry
// raw PCM frames. Frames are paced to real time so the client can feed them
// straight into its audio output without buffering the whole clip.
package wsstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/penumbralworks/narvox/pkg/audio"
)

// frameDuration is the wall-clock length of one binary PCM frame.
const frameDuration = 20 * time.Millisecond

// Compile-time interface assertions.
var (
	_ audio.Sink     = (*Sink)(nil)
	_ audio.Playback = (*playback)(nil)
)

// controlEvent is the JSON payload of a text message on the stream.
type controlEvent struct {
	Type       string `json:"type"` // "clip.start", "clip.end", "clip.pause", "clip.resume"
	Speaker    string `json:"speaker,omitempty"`
	Text       string `json:"text,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// Sink streams clips to a single connected WebSocket client.
type Sink struct {
	conn *websocket.Conn

	// writeMu serialises all writes to the connection: control events and
	// PCM frames must not interleave mid-message.
	writeMu sync.Mutex

	mu      sync.Mutex
	current *playback
	closed  bool
}

// NewSink wraps an accepted WebSocket connection. The caller keeps ownership
// of reads on the connection; the sink only writes.
func NewSink(conn *websocket.Conn) *Sink {
	return &Sink{conn: conn}
}

// Play implements [audio.Sink]. Any clip still in flight is stopped first.
func (s *Sink) Play(ctx context.Context, clip audio.Clip) (audio.Playback, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("wsstream: sink is closed")
	}
	prev := s.current
	s.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	rate := clip.SampleRate
	if rate == 0 {
		rate = audio.DefaultSampleRate
	}

	pb := &playback{
		sink:   s,
		clip:   clip,
		rate:   rate,
		done:   make(chan struct{}),
		resume: make(chan struct{}, 1),
	}
	pb.ctx, pb.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	s.current = pb
	s.mu.Unlock()

	if err := s.writeControl(pb.ctx, controlEvent{
		Type:       "clip.start",
		Speaker:    clip.Speaker,
		Text:       clip.Text,
		SampleRate: rate,
	}); err != nil {
		pb.cancel()
		return nil, fmt.Errorf("wsstream: send clip.start: %w", err)
	}

	go pb.run()
	return pb, nil
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.mu.Unlock()

	if current != nil {
		current.Stop()
	}
	return s.conn.Close(websocket.StatusNormalClosure, "sink closed")
}

func (s *Sink) writeControl(ctx context.Context, ev controlEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("wsstream: marshal control event: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *Sink) writeFrame(ctx context.Context, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageBinary, frame)
}

// playback streams one clip's PCM in paced frames.
type playback struct {
	sink   *Sink
	clip   audio.Clip
	rate   int
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	resume chan struct{}

	mu       sync.Mutex
	paused   bool
	finished bool
	err      error
}

// run is the frame pump. It owns done: it closes it when it exits.
func (p *playback) run() {
	frameBytes := p.rate * 2 * int(frameDuration.Milliseconds()) / 1000
	pcm := p.clip.PCM

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for off := 0; off < len(pcm); {
		if p.waitWhilePaused() {
			return
		}

		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := p.sink.writeFrame(p.ctx, pcm[off:end]); err != nil {
			if p.ctx.Err() != nil {
				p.finish(audio.ErrStopped)
			} else {
				p.finish(fmt.Errorf("wsstream: send frame: %w", err))
			}
			return
		}
		off = end

		select {
		case <-ticker.C:
		case <-p.ctx.Done():
			p.finish(audio.ErrStopped)
			return
		}
	}

	// Best effort: the client already has every frame.
	p.sink.writeControl(p.ctx, controlEvent{Type: "clip.end"})
	p.finish(nil)
}

// waitWhilePaused blocks while the playback is paused. It reports true when
// the playback was cancelled while waiting.
func (p *playback) waitWhilePaused() bool {
	for {
		p.mu.Lock()
		paused := p.paused
		p.mu.Unlock()
		if !paused {
			return false
		}
		select {
		case <-p.resume:
		case <-p.ctx.Done():
			p.finish(audio.ErrStopped)
			return true
		}
	}
}

// Done implements [audio.Playback].
func (p *playback) Done() <-chan struct{} { return p.done }

// Err implements [audio.Playback].
func (p *playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Pause implements [audio.Playback].
func (p *playback) Pause() {
	p.mu.Lock()
	if p.paused || p.finished {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.mu.Unlock()
	p.sink.writeControl(p.ctx, controlEvent{Type: "clip.pause"})
}

// Resume implements [audio.Playback].
func (p *playback) Resume() {
	p.mu.Lock()
	if !p.paused || p.finished {
		p.mu.Unlock()
		return
	}
	p.paused = false
	p.mu.Unlock()

	select {
	case p.resume <- struct{}{}:
	default:
	}
	p.sink.writeControl(p.ctx, controlEvent{Type: "clip.resume"})
}

// Stop implements [audio.Playback].
func (p *playback) Stop() {
	p.cancel()
	p.finish(audio.ErrStopped)
}

func (p *playback) finish(err error) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	p.err = err
	p.mu.Unlock()

	p.cancel()
	close(p.done)

	p.sink.mu.Lock()
	if p.sink.current == p {
		p.sink.current = nil
	}
	p.sink.mu.Unlock()
}
