// Package mock provides a test double for the synth.Provider interface.
//
// Use Provider to script per-call results and to verify the text and
// voices passed to the backend:
//
//	p := &mock.Provider{
//	    Results: []mock.Result{
//	        {Audio: []byte("pcm-1")},
//	        {Err: errors.New("boom")},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/penumbralworks/narvox/pkg/synth"
)

// Result scripts the outcome of one Synthesize call.
type Result struct {
	Audio []byte
	Err   error
}

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice synth.VoiceProfile
}

// Provider is a mock implementation of synth.Provider. Calls beyond the
// scripted Results reuse the last entry (or succeed with DefaultAudio when
// Results is empty). Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Results scripts successive Synthesize outcomes in order.
	Results []Result

	// DefaultAudio is returned when Results is exhausted or empty.
	DefaultAudio []byte

	// Voices is returned by ListVoices.
	Voices []synth.VoiceProfile

	// Calls records every Synthesize invocation in order.
	Calls []SynthesizeCall

	// next indexes the Results slice.
	next int
}

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// Synthesize implements [synth.Provider.Synthesize] from the script.
func (p *Provider) Synthesize(ctx context.Context, text string, voice synth.VoiceProfile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})

	if p.next < len(p.Results) {
		r := p.Results[p.next]
		p.next++
		return r.Audio, r.Err
	}
	if len(p.Results) > 0 {
		r := p.Results[len(p.Results)-1]
		return r.Audio, r.Err
	}
	audio := p.DefaultAudio
	if audio == nil {
		audio = []byte("mock-audio")
	}
	return audio, nil
}

// ListVoices implements [synth.Provider.ListVoices].
func (p *Provider) ListVoices(context.Context) ([]synth.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, nil
}

// CallCount returns the number of Synthesize invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
