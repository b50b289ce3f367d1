// Package audio defines the interfaces and types for delivering synthesised
// narration audio to a listening client.
//
// The two primary abstractions are:
//
//   - [Sink] — accepts a [Clip] for playback and returns a [Playback].
//   - [Playback] — represents one clip in flight, giving callers pause/resume,
//     early stop, and a completion signal.
//
// Implementations are provided by transport-specific adapter packages
// (e.g. audio/wsstream for browser clients over WebSocket). The interfaces
// are intentionally narrow so the narration player stays decoupled from how
// audio actually reaches the listener.
//
// This package lives under pkg/ because external code (alternative delivery
// adapters) is expected to implement [Sink] and [Playback].
package audio

import (
	"context"
	"errors"
)

// ErrStopped is reported by [Playback.Err] when playback ended through an
// explicit Stop (or context cancellation) rather than finishing naturally.
var ErrStopped = errors.New("audio: playback stopped")

// DefaultSampleRate is the pipeline-wide PCM sample rate in Hz. Synthesis
// providers emit audio at this rate and sinks may assume it when Clip
// carries a zero SampleRate.
const DefaultSampleRate = 16000

// Clip is a single unit of playable narration audio.
type Clip struct {
	// PCM holds signed 16-bit little-endian mono samples.
	PCM []byte

	// SampleRate in Hz. Zero means [DefaultSampleRate].
	SampleRate int

	// Speaker is a display label for who is talking ("GM", an NPC name, ...).
	// Sinks may surface it to the client alongside the audio.
	Speaker string

	// Text is the sentence being spoken, usable as a caption.
	Text string
}

// Duration returns the wall-clock playing time of the clip.
func (c Clip) Duration() (seconds float64) {
	rate := c.SampleRate
	if rate == 0 {
		rate = DefaultSampleRate
	}
	return float64(len(c.PCM)/2) / float64(rate)
}

// Playback represents one clip in flight on a [Sink].
//
// A Playback is obtained from [Sink.Play] and remains valid until its Done
// channel closes. Done closes exactly once, whether the clip finished
// naturally, was stopped, or failed; Err reports which of those it was.
//
// Implementations must be safe for concurrent use.
type Playback interface {
	// Done returns a channel that closes when the clip is no longer playing.
	Done() <-chan struct{}

	// Err reports why playback ended. It returns nil for natural completion,
	// [ErrStopped] for an explicit Stop, and the transport error otherwise.
	// The result is only meaningful after Done is closed.
	Err() error

	// Pause suspends delivery. Pausing an already-paused or finished
	// playback is a no-op.
	Pause()

	// Resume continues delivery after a Pause. Resuming a playback that is
	// not paused is a no-op.
	Resume()

	// Stop ends the playback immediately. Done closes and Err reports
	// [ErrStopped]. Safe to call more than once.
	Stop()
}

// Sink accepts clips for playback toward a single listener.
//
// Implementations must be safe for concurrent use. A Sink plays one clip at
// a time; callers are expected to wait for the previous Playback's Done
// before submitting the next clip.
type Sink interface {
	// Play begins delivering the clip and returns immediately with a
	// [Playback] handle. The supplied ctx governs the delivery: cancelling
	// it has the same effect as calling Stop on the returned Playback.
	Play(ctx context.Context, clip Clip) (Playback, error)

	// Close tears down the sink. Any clip still in flight is stopped.
	// Safe to call more than once.
	Close() error
}
