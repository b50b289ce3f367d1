// Package narrator drives multi-voice playback of a narrative text.
//
// The central type is [Player], an explicit state machine
// (idle, loading, playing, stopped) that walks the segments of a narrative
// strictly in order: synthesize one segment, play it to the audio sink,
// await completion, advance. Starting a new narrative supersedes the live
// session through a monotonic generation counter; every asynchronous
// continuation re-checks the counter and becomes a no-op once stale, so no
// audio from an old session can start after a new one begins.
//
// All exported methods are safe for concurrent use.
package narrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/penumbralworks/narvox/internal/observe"
	"github.com/penumbralworks/narvox/internal/roster"
	"github.com/penumbralworks/narvox/internal/segment"
	"github.com/penumbralworks/narvox/internal/voice"
	"github.com/penumbralworks/narvox/pkg/audio"
	"github.com/penumbralworks/narvox/pkg/synth"
)

// ErrClosed is returned by [Player.PlayNarrative] after [Player.Close].
var ErrClosed = errors.New("narrator: player is closed")

// Phase is the operating mode of a [Player].
type Phase int

const (
	// PhaseIdle means no narration session is active.
	PhaseIdle Phase = iota

	// PhaseLoading means audio for the current segment is being fetched.
	PhaseLoading

	// PhasePlaying means the current segment's audio is on the sink.
	PhasePlaying

	// PhaseStopped means the player was closed and accepts no new sessions.
	PhaseStopped
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// State is the observable playback state consumed by UI layers.
type State struct {
	IsPlaying           bool   `json:"isPlaying"`
	IsLoading           bool   `json:"isLoading"`
	CurrentSegmentIndex int    `json:"currentSegmentIndex"`
	TotalSegments       int    `json:"totalSegments"`
	CurrentSpeaker      string `json:"currentSpeaker,omitempty"`
	Err                 string `json:"error,omitempty"`
}

// Options holds the dependencies and voice configuration for a [Player].
type Options struct {
	// Synth produces segment audio. Wire a resilience chain here so remote
	// failures degrade to the local synthesizer.
	Synth synth.Provider

	// Local, when set, is tried once more for a segment whose playback
	// failed after a successful fetch. Optional.
	Local synth.Provider

	// Sink receives the synthesized clips.
	Sink audio.Sink

	// Roster resolves speaker names during segmentation. Optional.
	Roster *roster.Index

	// Voices maps NPC ids and lowercase names/nicknames to voice ids,
	// as built by [voice.Assigner.VoiceMap].
	Voices map[string]string

	// GMVoice narrates plain prose and unresolved speech. Defaults to
	// [voice.DefaultVoice].
	GMVoice string

	// PlayerVoice, when set, speaks the player's own lines. When empty the
	// gender defaults below apply.
	PlayerVoice string

	// PlayerGender selects between PlayerMaleVoice and PlayerFemaleVoice
	// when PlayerVoice is empty.
	PlayerGender voice.Gender

	// PlayerMaleVoice and PlayerFemaleVoice are the gender-based player
	// defaults. Empty values fall back to the GM voice.
	PlayerMaleVoice   string
	PlayerFemaleVoice string

	// Metrics records session and segment telemetry. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Player plays the segments of one narrative at a time.
type Player struct {
	opts Options

	mu      sync.Mutex
	gen     uint64
	phase   Phase
	index   int
	total   int
	speaker string
	lastErr string
	current audio.Playback
	cancel  context.CancelFunc
	closed  bool

	subMu sync.Mutex
	subs  []func(State)
}

// NewPlayer creates a [Player] in the idle phase.
func NewPlayer(opts Options) *Player {
	if opts.GMVoice == "" {
		opts.GMVoice = voice.DefaultVoice
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	return &Player{opts: opts}
}

// Subscribe registers cb to be invoked after every state change. Callbacks
// run on the player's goroutines and must not block.
func (p *Player) Subscribe(cb func(State)) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	p.subs = append(p.subs, cb)
}

// Snapshot returns the current observable state.
func (p *Player) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// stateLocked must be called with p.mu held.
func (p *Player) stateLocked() State {
	return State{
		IsPlaying:           p.phase == PhasePlaying,
		IsLoading:           p.phase == PhaseLoading,
		CurrentSegmentIndex: p.index,
		TotalSegments:       p.total,
		CurrentSpeaker:      p.speaker,
		Err:                 p.lastErr,
	}
}

// notify fans the current state out to all subscribers.
func (p *Player) notify() {
	st := p.Snapshot()
	p.subMu.Lock()
	subs := make([]func(State), len(p.subs))
	copy(subs, p.subs)
	p.subMu.Unlock()
	for _, cb := range subs {
		cb(st)
	}
}

// PlayNarrative starts a new narration session, superseding any live one.
// When preSegments is non-empty it is played as-is; otherwise the narrative
// text is segmented first. The returned segments are what the session will
// play; an empty narrative yields no segments and leaves the player idle.
func (p *Player) PlayNarrative(ctx context.Context, narrative string, preSegments []segment.Segment) ([]segment.Segment, error) {
	segs := segment.Segments(narrative, preSegments, p.opts.Roster)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	// Supersede the previous session: stale continuations see the bumped
	// generation and drop themselves.
	p.gen++
	gen := p.gen
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	prev := p.current
	p.current = nil

	if len(segs) == 0 {
		p.phase = PhaseIdle
		p.index = 0
		p.total = 0
		p.speaker = ""
		p.lastErr = ""
		p.mu.Unlock()
		if prev != nil {
			prev.Stop()
		}
		p.notify()
		return segs, nil
	}

	// The session outlives the originating HTTP request; only Stop or a
	// newer PlayNarrative may cancel it.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.phase = PhaseLoading
	p.index = 0
	p.total = len(segs)
	p.speaker = speakerLabel(segs[0])
	p.lastErr = ""
	p.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	p.notify()

	go p.run(sessCtx, gen, segs)
	return segs, nil
}

// Pause suspends the current segment's audio without losing position.
// Only meaningful while playing.
func (p *Player) Pause() {
	p.mu.Lock()
	var pb audio.Playback
	if p.phase == PhasePlaying {
		pb = p.current
	}
	p.mu.Unlock()
	if pb != nil {
		pb.Pause()
	}
}

// Resume continues a paused segment. A resume that the sink cannot honour
// surfaces as a playback error, which the sequential loop treats as a
// failed segment and advances past.
func (p *Player) Resume() {
	p.mu.Lock()
	var pb audio.Playback
	if p.phase == PhasePlaying {
		pb = p.current
	}
	p.mu.Unlock()
	if pb != nil {
		pb.Resume()
	}
}

// SkipToNext stops the current segment's audio immediately. The sequential
// loop treats the forced stop like natural completion, so the session
// always makes forward progress onto the next segment.
func (p *Player) SkipToNext() {
	p.mu.Lock()
	pb := p.current
	p.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
}

// Stop invalidates the live session, aborts any pending fetch, stops the
// current audio and resets the player to idle.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	pb := p.current
	p.current = nil
	p.phase = PhaseIdle
	p.index = 0
	p.total = 0
	p.speaker = ""
	p.lastErr = ""
	p.mu.Unlock()

	if pb != nil {
		pb.Stop()
	}
	p.notify()
}

// Close stops the live session and puts the player in the terminal stopped
// phase. Further PlayNarrative calls return [ErrClosed].
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	pb := p.current
	p.current = nil
	p.phase = PhaseStopped
	p.speaker = ""
	p.mu.Unlock()

	if pb != nil {
		pb.Stop()
	}
	p.notify()
}

// run is the sequential loop of one session: it owns the walk over segs and
// exits as soon as its generation goes stale.
func (p *Player) run(ctx context.Context, gen uint64, segs []segment.Segment) {
	p.opts.Metrics.ActiveSessions.Add(ctx, 1)
	defer p.opts.Metrics.ActiveSessions.Add(context.Background(), -1)

	for i, seg := range segs {
		if !p.beginLoading(gen, i, seg) {
			return
		}

		voiceID := p.resolveVoice(seg)
		start := time.Now()
		pcm, err := p.opts.Synth.Synthesize(ctx, seg.Text, synth.VoiceProfile{ID: voiceID})
		status := "ok"
		if err != nil {
			status = "error"
		}
		p.opts.Metrics.RecordSynthesis(ctx, "narration", status, time.Since(start))

		// Post-fetch suspension point.
		if !p.live(gen) {
			return
		}
		if err != nil {
			slog.Warn("segment synthesis failed, skipping",
				"index", i, "voice", voiceID, "error", err)
			p.opts.Metrics.RecordSegment(ctx, string(seg.Speaker), "failed")
			p.recordError(gen, err)
			continue
		}

		if ok, done := p.playSegment(ctx, gen, i, seg, pcm); !ok {
			return
		} else if !done {
			// Playback failed; one more try through the local synthesizer.
			p.retryLocal(ctx, gen, i, seg)
			if !p.live(gen) {
				return
			}
		}
	}
	p.finish(gen)
}

// playSegment puts pcm on the sink and awaits completion. ok is false when
// the session went stale; done is false when playback failed and the
// segment deserves a local retry.
func (p *Player) playSegment(ctx context.Context, gen uint64, i int, seg segment.Segment, pcm []byte) (ok, done bool) {
	pb, err := p.opts.Sink.Play(ctx, audio.Clip{
		PCM:     pcm,
		Speaker: speakerLabel(seg),
		Text:    seg.Text,
	})
	if err != nil {
		if !p.live(gen) {
			return false, false
		}
		slog.Warn("sink rejected segment", "index", i, "error", err)
		p.opts.Metrics.RecordSegment(ctx, string(seg.Speaker), "failed")
		p.recordError(gen, err)
		return true, true // failed terminally, no retry target
	}

	// Pre-play suspension point.
	if !p.beginPlaying(gen, i, seg, pb) {
		pb.Stop()
		return false, false
	}

	<-pb.Done()

	if !p.live(gen) {
		return false, false
	}
	p.clearCurrent(gen, pb)

	perr := pb.Err()
	switch {
	case perr == nil:
		p.opts.Metrics.RecordSegment(ctx, string(seg.Speaker), "completed")
		return true, true
	case errors.Is(perr, audio.ErrStopped):
		// A skip advances like natural completion.
		p.opts.Metrics.RecordSegment(ctx, string(seg.Speaker), "skipped")
		return true, true
	}
	slog.Warn("segment playback failed", "index", i, "error", perr)
	p.recordError(gen, perr)
	return true, false
}

// retryLocal synthesizes the segment once more through the local backend
// and plays the result. Failures only log; the loop advances regardless.
func (p *Player) retryLocal(ctx context.Context, gen uint64, i int, seg segment.Segment) {
	if p.opts.Local == nil {
		p.opts.Metrics.RecordSegment(ctx, string(seg.Speaker), "failed")
		return
	}
	pcm, err := p.opts.Local.Synthesize(ctx, seg.Text, synth.VoiceProfile{ID: p.opts.GMVoice})
	if !p.live(gen) {
		return
	}
	if err != nil {
		slog.Warn("local retry synthesis failed", "index", i, "error", err)
		p.opts.Metrics.RecordSegment(ctx, string(seg.Speaker), "failed")
		p.recordError(gen, err)
		return
	}
	p.playSegment(ctx, gen, i, seg, pcm)
}

// live reports whether gen is still the current generation.
func (p *Player) live(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen
}

// beginLoading publishes loading(i). Returns false when gen is stale.
func (p *Player) beginLoading(gen uint64, i int, seg segment.Segment) bool {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return false
	}
	p.phase = PhaseLoading
	p.index = i
	p.speaker = speakerLabel(seg)
	p.mu.Unlock()
	p.notify()
	return true
}

// beginPlaying publishes playing(i) and records the live playback.
// Returns false when gen is stale.
func (p *Player) beginPlaying(gen uint64, i int, seg segment.Segment, pb audio.Playback) bool {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return false
	}
	p.phase = PhasePlaying
	p.index = i
	p.speaker = speakerLabel(seg)
	p.current = pb
	p.mu.Unlock()
	p.notify()
	return true
}

// clearCurrent drops the finished playback handle if it is still current.
func (p *Player) clearCurrent(gen uint64, pb audio.Playback) {
	p.mu.Lock()
	if p.gen == gen && p.current == pb {
		p.current = nil
	}
	p.mu.Unlock()
}

// recordError exposes err in the observable state without halting the loop.
func (p *Player) recordError(gen uint64, err error) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.lastErr = err.Error()
	p.mu.Unlock()
	p.notify()
}

// finish returns a completed session to idle, keeping lastErr for display.
func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.phase = PhaseIdle
	p.index = 0
	p.total = 0
	p.speaker = ""
	p.cancel = nil
	p.mu.Unlock()
	p.notify()
}

// resolveVoice picks a voice id for the segment's speaker.
func (p *Player) resolveVoice(seg segment.Segment) string {
	switch seg.Speaker {
	case segment.SpeakerPlayer:
		if p.opts.PlayerVoice != "" {
			return p.opts.PlayerVoice
		}
		if p.opts.PlayerGender == voice.GenderFemale && p.opts.PlayerFemaleVoice != "" {
			return p.opts.PlayerFemaleVoice
		}
		if p.opts.PlayerGender != voice.GenderFemale && p.opts.PlayerMaleVoice != "" {
			return p.opts.PlayerMaleVoice
		}
		return p.opts.GMVoice

	case segment.SpeakerNPC:
		if seg.SpeakerID != "" {
			if v, ok := p.opts.Voices[seg.SpeakerID]; ok {
				return v
			}
		}
		if seg.SpeakerName != "" {
			if v, ok := p.opts.Voices[strings.ToLower(seg.SpeakerName)]; ok {
				return v
			}
		}
		return p.opts.GMVoice

	default:
		return p.opts.GMVoice
	}
}

// speakerLabel is the display name surfaced in the observable state and on
// clips.
func speakerLabel(seg segment.Segment) string {
	switch seg.Speaker {
	case segment.SpeakerPlayer:
		return "You"
	case segment.SpeakerNPC:
		if seg.SpeakerName != "" {
			return seg.SpeakerName
		}
		return "NPC"
	default:
		return "GM"
	}
}
