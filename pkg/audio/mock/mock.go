// Package mock provides in-memory mock implementations of [audio.Sink] and
// [audio.Playback] for use in unit tests.
//
// All mocks are safe for concurrent use. The sink records every Play call so
// tests can assert on clip order, and each returned [Playback] stays open
// until the test completes it:
//
//	sink := mock.NewSink()
//	pb, _ := sink.Play(ctx, clip)
//	sink.CompleteNext(nil) // closes pb.Done with a nil error
package mock

import (
	"context"
	"sync"

	"github.com/penumbralworks/narvox/pkg/audio"
)

// Playback is a mock implementation of [audio.Playback].
type Playback struct {
	mu       sync.Mutex
	done     chan struct{}
	err      error
	paused   bool
	finished bool

	// Clip is the clip this playback was started with.
	Clip audio.Clip

	// CallCountPause records how many times Pause was called.
	CallCountPause int

	// CallCountResume records how many times Resume was called.
	CallCountResume int
}

var _ audio.Playback = (*Playback)(nil)

// Done implements [audio.Playback].
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err implements [audio.Playback].
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Pause implements [audio.Playback].
func (p *Playback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountPause++
	p.paused = true
}

// Resume implements [audio.Playback].
func (p *Playback) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountResume++
	p.paused = false
}

// Stop implements [audio.Playback].
func (p *Playback) Stop() {
	p.finish(audio.ErrStopped)
}

// Paused reports whether the playback is currently paused.
func (p *Playback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Complete finishes the playback with the given error (nil for natural
// completion). Completing an already-finished playback is a no-op.
func (p *Playback) Complete(err error) {
	p.finish(err)
}

func (p *Playback) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.err = err
	close(p.done)
}

// Sink is a mock implementation of [audio.Sink].
// Inspect Playbacks after use to assert on what was played and in what order.
type Sink struct {
	mu sync.Mutex

	// PlayError, when non-nil, is returned by the next Play call and then
	// cleared.
	PlayError error

	// Playbacks holds the playbacks created by Play, in creation order.
	Playbacks []*Playback

	// CallCountClose records how many times Close was called.
	CallCountClose int

	completed int
}

var _ audio.Sink = (*Sink)(nil)

// NewSink returns an empty mock sink.
func NewSink() *Sink { return &Sink{} }

// Play implements [audio.Sink]. The returned playback stays open until the
// test calls Complete (or CompleteNext on the sink). Cancelling ctx stops it.
func (s *Sink) Play(ctx context.Context, clip audio.Clip) (audio.Playback, error) {
	s.mu.Lock()
	if s.PlayError != nil {
		err := s.PlayError
		s.PlayError = nil
		s.mu.Unlock()
		return nil, err
	}
	pb := &Playback{done: make(chan struct{}), Clip: clip}
	s.Playbacks = append(s.Playbacks, pb)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { pb.Stop() })
	go func() {
		<-pb.done
		stop()
	}()
	return pb, nil
}

// Close implements [audio.Sink]. Stops every playback still in flight.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	pbs := make([]*Playback, len(s.Playbacks))
	copy(pbs, s.Playbacks)
	s.mu.Unlock()
	for _, pb := range pbs {
		pb.Stop()
	}
	return nil
}

// CompleteNext finishes the oldest playback that has not yet been completed
// through this method. It returns false when every playback created so far
// has already been handed out.
func (s *Sink) CompleteNext(err error) bool {
	s.mu.Lock()
	if s.completed >= len(s.Playbacks) {
		s.mu.Unlock()
		return false
	}
	pb := s.Playbacks[s.completed]
	s.completed++
	s.mu.Unlock()
	pb.Complete(err)
	return true
}

// PlayedTexts returns the Text of every clip played so far, in order.
func (s *Sink) PlayedTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, len(s.Playbacks))
	for i, pb := range s.Playbacks {
		texts[i] = pb.Clip.Text
	}
	return texts
}
