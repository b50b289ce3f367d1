// Package synth defines the Provider interface for speech synthesis
// backends.
//
// A synth provider wraps a text-to-speech service (a hosted API such as
// ElevenLabs or OpenAI, or a local Piper-style server) behind a uniform
// batch interface: one call synthesises one narration segment. Segments
// are sentence-sized, so batch round-trips keep latency acceptable while
// staying far simpler than a streaming socket.
//
// Implementations must be safe for concurrent use.
package synth

import (
	"context"
	"errors"
)

// ErrUseLocalFallback signals that the provider declined the request and
// explicitly instructed the caller to synthesise the text locally instead.
// Hosted providers return it when they proxy a structured
// {"fallback": true} response. Callers must treat it exactly like any
// other provider failure: switch to the local synthesizer for that
// segment and keep going.
var ErrUseLocalFallback = errors.New("synth: provider requested local fallback")

// VoiceProfile describes a synthesis voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which backend this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default, 0 treated
	// as default).
	SpeedFactor float64

	// PitchShift adjusts pitch (-10 to +10, 0 = default). Not every
	// backend honours it.
	PitchShift float64
}

// Provider is the abstraction over any speech synthesis backend.
//
// Implementations must be safe for concurrent use; multiple segments may
// be synthesised in parallel by different playback sessions.
type Provider interface {
	// Synthesize renders text with the given voice and returns raw mono
	// 16-bit little-endian PCM at 16 kHz.
	//
	// It returns [ErrUseLocalFallback] when the backend explicitly defers
	// to local synthesis, and any other error for network failures,
	// non-2xx responses, or malformed payloads. Synthesize respects ctx
	// cancellation.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ListVoices returns the voice profiles available from this backend.
	// The list reflects the backend's current catalogue and may change
	// between calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
