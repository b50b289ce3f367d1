package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/penumbralworks/narvox/pkg/synth"
)

// ErrAllBackendsFailed is returned when every backend in a [Chain] fails or
// has an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all speech backends failed")

// ChainConfig configures the per-backend breaker created for each entry in a
// [Chain].
type ChainConfig struct {
	Breaker BreakerConfig
}

// chainEntry pairs a speech backend with its dedicated breaker.
type chainEntry struct {
	name    string
	backend synth.Provider
	breaker *Breaker
}

// Chain implements [synth.Provider] with automatic failover across multiple
// speech backends. Backends are tried in registration order; each has its
// own breaker so a dead remote service is bypassed without probing it on
// every sentence.
//
// A backend returning [synth.ErrUseLocalFallback] asked for the hand-off on
// purpose, so the chain moves on without counting it as a breaker failure.
//
// Chain is safe for concurrent use after the last AddBackend call.
type Chain struct {
	entries []chainEntry
	cfg     ChainConfig
}

// Compile-time interface assertion.
var _ synth.Provider = (*Chain)(nil)

// NewChain creates a [Chain] with primary as the preferred backend.
// Additional backends are registered via [Chain.AddBackend].
func NewChain(primary synth.Provider, primaryName string, cfg ChainConfig) *Chain {
	c := &Chain{cfg: cfg}
	c.AddBackend(primaryName, primary)
	return c
}

// AddBackend appends a fallback backend. Backends are tried in the order
// they are added.
func (c *Chain) AddBackend(name string, backend synth.Provider) {
	bcfg := c.cfg.Breaker
	bcfg.Name = name
	c.entries = append(c.entries, chainEntry{
		name:    name,
		backend: backend,
		breaker: NewBreaker(bcfg),
	})
}

// Synthesize implements [synth.Provider.Synthesize], trying each backend in
// order until one produces audio. Returns [ErrAllBackendsFailed] wrapped
// with the last error when none does.
func (c *Chain) Synthesize(ctx context.Context, text string, voice synth.VoiceProfile) ([]byte, error) {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]

		var audio []byte
		err := entry.breaker.Do(func() error {
			var innerErr error
			audio, innerErr = entry.backend.Synthesize(ctx, text, voice)
			if errors.Is(innerErr, synth.ErrUseLocalFallback) {
				// Deliberate hand-off, not a fault. Report success to the
				// breaker and carry the signal out-of-band.
				audio = nil
				return nil
			}
			return innerErr
		})
		if err == nil && audio != nil {
			return audio, nil
		}
		if err == nil {
			lastErr = synth.ErrUseLocalFallback
			slog.Debug("backend requested local fallback", "backend", entry.name)
			continue
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// ListVoices returns the voice catalogue of the first healthy backend.
func (c *Chain) ListVoices(ctx context.Context) ([]synth.VoiceProfile, error) {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]

		var voices []synth.VoiceProfile
		err := entry.breaker.Do(func() error {
			var innerErr error
			voices, innerErr = entry.backend.ListVoices(ctx)
			return innerErr
		})
		if err == nil {
			return voices, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// BackendStates reports each backend's breaker state, keyed by backend name.
// Exposed for readiness checks.
func (c *Chain) BackendStates() map[string]BreakerState {
	states := make(map[string]BreakerState, len(c.entries))
	for i := range c.entries {
		states[c.entries[i].name] = c.entries[i].breaker.State()
	}
	return states
}
