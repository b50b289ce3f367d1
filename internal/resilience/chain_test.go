package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/penumbralworks/narvox/pkg/synth"
	synthmock "github.com/penumbralworks/narvox/pkg/synth/mock"
)

func TestChain_PrimaryServes(t *testing.T) {
	t.Parallel()

	primary := &synthmock.Provider{DefaultAudio: []byte("remote")}
	local := &synthmock.Provider{DefaultAudio: []byte("local")}

	chain := NewChain(primary, "gateway", ChainConfig{})
	chain.AddBackend("piper", local)

	audio, err := chain.Synthesize(context.Background(), "Hello.", synth.VoiceProfile{ID: "josh"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "remote" {
		t.Errorf("audio = %q, want remote", audio)
	}
	if local.CallCount() != 0 {
		t.Error("fallback was called although the primary succeeded")
	}
}

func TestChain_FallbackSignalHandsOff(t *testing.T) {
	t.Parallel()

	primary := &synthmock.Provider{
		Results: []synthmock.Result{{Err: synth.ErrUseLocalFallback}},
	}
	local := &synthmock.Provider{DefaultAudio: []byte("local")}

	chain := NewChain(primary, "gateway", ChainConfig{Breaker: BreakerConfig{Trip: 1}})
	chain.AddBackend("piper", local)

	audio, err := chain.Synthesize(context.Background(), "Hello.", synth.VoiceProfile{ID: "josh"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "local" {
		t.Errorf("audio = %q, want local", audio)
	}

	// A deliberate hand-off must not trip the primary's breaker even with
	// Trip set to 1.
	if got := chain.BackendStates()["gateway"]; got != BreakerClosed {
		t.Errorf("gateway breaker = %v, want closed", got)
	}
}

func TestChain_FailureFallsThrough(t *testing.T) {
	t.Parallel()

	primary := &synthmock.Provider{
		Results: []synthmock.Result{{Err: errors.New("gateway: POST returned status 502")}},
	}
	local := &synthmock.Provider{DefaultAudio: []byte("local")}

	chain := NewChain(primary, "gateway", ChainConfig{})
	chain.AddBackend("piper", local)

	audio, err := chain.Synthesize(context.Background(), "Hello.", synth.VoiceProfile{ID: "josh"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "local" {
		t.Errorf("audio = %q, want local", audio)
	}
}

func TestChain_OpenBreakerSkipsBackend(t *testing.T) {
	t.Parallel()

	primary := &synthmock.Provider{
		Results: []synthmock.Result{{Err: errBoom}},
	}
	local := &synthmock.Provider{DefaultAudio: []byte("local")}

	chain := NewChain(primary, "gateway", ChainConfig{Breaker: BreakerConfig{Trip: 1}})
	chain.AddBackend("piper", local)

	chain.Synthesize(context.Background(), "one", synth.VoiceProfile{ID: "v"})
	chain.Synthesize(context.Background(), "two", synth.VoiceProfile{ID: "v"})

	// The primary failed once with Trip=1, so the second request must not
	// reach it.
	if got := primary.CallCount(); got != 1 {
		t.Errorf("primary calls = %d, want 1", got)
	}
	if got := local.CallCount(); got != 2 {
		t.Errorf("fallback calls = %d, want 2", got)
	}
}

func TestChain_AllFailed(t *testing.T) {
	t.Parallel()

	primary := &synthmock.Provider{Results: []synthmock.Result{{Err: errBoom}}}
	local := &synthmock.Provider{Results: []synthmock.Result{{Err: errBoom}}}

	chain := NewChain(primary, "gateway", ChainConfig{})
	chain.AddBackend("piper", local)

	_, err := chain.Synthesize(context.Background(), "x", synth.VoiceProfile{ID: "v"})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Errorf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestChain_ListVoices(t *testing.T) {
	t.Parallel()

	primary := &synthmock.Provider{
		Voices: []synth.VoiceProfile{{ID: "josh"}, {ID: "elli"}},
	}
	chain := NewChain(primary, "gateway", ChainConfig{})

	voices, err := chain.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Errorf("voices = %+v", voices)
	}
}
