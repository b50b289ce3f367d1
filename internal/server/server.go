// Package server exposes the narration player over HTTP.
//
// The JSON API under /v1 drives one narration player: start a narrative,
// pause, resume, skip and stop it, and read its state. Two websocket
// endpoints stream live data to the browser client: /v1/narration/events
// pushes state changes, /v1/narration/audio carries the synthesized PCM.
// A direct synthesis endpoint and roster introspection round out the
// surface. Health and Prometheus metrics endpoints are mounted alongside.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/penumbralworks/narvox/internal/health"
	"github.com/penumbralworks/narvox/internal/narrator"
	"github.com/penumbralworks/narvox/internal/observe"
	"github.com/penumbralworks/narvox/internal/ratelimit"
	"github.com/penumbralworks/narvox/internal/roster"
	"github.com/penumbralworks/narvox/internal/segment"
	"github.com/penumbralworks/narvox/pkg/audio/wsstream"
	"github.com/penumbralworks/narvox/pkg/synth"
)

// synthesisTimeout bounds one direct synthesis request.
const synthesisTimeout = 30 * time.Second

// Options holds the dependencies for a [Server].
type Options struct {
	// Player is the narration player all /v1/narration routes drive.
	Player *narrator.Player

	// Hub is the audio sink the player writes to; /v1/narration/audio
	// attaches listeners to it.
	Hub *Hub

	// Synth serves direct /v1/speech requests and the voice catalogue.
	Synth synth.Provider

	// Roster backs /v1/roster. Optional; nil serves an empty list.
	Roster roster.Store

	// Index resolves names for /v1/roster/suggest. Optional.
	Index *roster.Index

	// Metrics records request and synthesis telemetry. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Limiter applies the sliding window limits below. Optional; nil
	// disables rate limiting.
	Limiter *ratelimit.Limiter

	// Narration and Speech are the per-route limits. A zero MaxRequests
	// leaves that route unlimited.
	Narration ratelimit.Config
	Speech    ratelimit.Config

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler
}

// Server routes HTTP traffic to the narration player.
type Server struct {
	opts Options

	events *broadcaster
}

// New creates a [Server] and subscribes it to the player's state changes.
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	s := &Server{
		opts:   opts,
		events: newBroadcaster(),
	}
	opts.Player.Subscribe(s.events.publish)
	return s
}

// Handler returns the fully wired HTTP handler, with tracing and request
// metrics applied to every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/narration", s.limited(s.opts.Narration, "narration", http.HandlerFunc(s.handleNarrate)))
	mux.HandleFunc("POST /v1/narration/pause", s.handleControl((*narrator.Player).Pause))
	mux.HandleFunc("POST /v1/narration/resume", s.handleControl((*narrator.Player).Resume))
	mux.HandleFunc("POST /v1/narration/skip", s.handleControl((*narrator.Player).SkipToNext))
	mux.HandleFunc("POST /v1/narration/stop", s.handleControl((*narrator.Player).Stop))
	mux.HandleFunc("GET /v1/narration/state", s.handleState)
	mux.HandleFunc("GET /v1/narration/events", s.handleEvents)
	mux.HandleFunc("GET /v1/narration/audio", s.handleAudio)

	mux.Handle("POST /v1/speech", s.limited(s.opts.Speech, "speech", http.HandlerFunc(s.handleSpeech)))
	mux.HandleFunc("GET /v1/voices", s.handleVoices)

	mux.HandleFunc("GET /v1/roster", s.handleRoster)
	mux.HandleFunc("GET /v1/roster/suggest", s.handleSuggest)

	if s.opts.Health != nil {
		s.opts.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.opts.Metrics)(mux)
}

// limited wraps next in the rate limit middleware for one route. A nil
// limiter or zero limit passes through.
func (s *Server) limited(cfg ratelimit.Config, route string, next http.Handler) http.Handler {
	if s.opts.Limiter == nil || cfg.MaxRequests <= 0 {
		return next
	}
	onReject := func(string) {
		s.opts.Metrics.RecordRateLimitRejection(context.Background(), route)
	}
	return ratelimit.Middleware(s.opts.Limiter, cfg, onReject)(next)
}

// ── Narration ────────────────────────────────────────────────────────────────

type narrateRequest struct {
	// Narrative is the raw story text to segment and narrate.
	Narrative string `json:"narrative"`

	// Segments, when non-empty, bypasses segmentation and is played as-is.
	Segments []segment.Segment `json:"segments,omitempty"`
}

type narrateResponse struct {
	Segments []segment.Segment `json:"segments"`
	State    narrator.State    `json:"state"`
}

func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	var req narrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Narrative == "" && len(req.Segments) == 0 {
		writeError(w, http.StatusBadRequest, "narrative or segments is required")
		return
	}

	start := time.Now()
	segs, err := s.opts.Player.PlayNarrative(r.Context(), req.Narrative, req.Segments)
	s.opts.Metrics.SegmentationDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, narrator.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, "narration player is shut down")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if segs == nil {
		segs = []segment.Segment{}
	}

	writeJSON(w, http.StatusOK, narrateResponse{
		Segments: segs,
		State:    s.opts.Player.Snapshot(),
	})
}

// handleControl builds a handler that invokes one player control method and
// returns the resulting state.
func (s *Server) handleControl(op func(*narrator.Player)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op(s.opts.Player)
		writeJSON(w, http.StatusOK, s.opts.Player.Snapshot())
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Player.Snapshot())
}

// ── Websocket feeds ──────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("events websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.opts.Metrics.ActiveListeners.Add(r.Context(), 1)
	defer s.opts.Metrics.ActiveListeners.Add(context.Background(), -1)

	ch, unsubscribe := s.events.subscribe()
	defer unsubscribe()

	ctx := r.Context()

	// The first event is always the current state so a reconnecting client
	// can render immediately.
	if err := wsjson.Write(ctx, conn, s.opts.Player.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-ch:
			if err := wsjson.Write(ctx, conn, st); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("audio websocket accept failed", "err", err)
		return
	}

	// The audio feed is write-only; CloseRead surfaces the client hanging
	// up as context cancellation.
	readCtx := conn.CloseRead(r.Context())

	sink := wsstream.NewSink(conn)
	displaced := s.opts.Hub.Attach(sink)
	slog.Info("audio listener attached", "remote", r.RemoteAddr)

	select {
	case <-readCtx.Done():
		s.opts.Hub.Detach(sink)
		_ = sink.Close()
	case <-displaced:
		// A newer listener took over or the hub shut down; Attach already
		// closed this sink.
	}
	slog.Info("audio listener detached", "remote", r.RemoteAddr)
}

// broadcaster fans player state changes out to the event websockets. The
// player's single Subscribe callback publishes here; each connection holds
// its own buffered channel and slow consumers drop intermediate states
// rather than block playback.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan narrator.State]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan narrator.State]struct{})}
}

func (b *broadcaster) publish(st narrator.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- st:
		default:
			// Drop one stale state so the latest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (b *broadcaster) subscribe() (<-chan narrator.State, func()) {
	ch := make(chan narrator.State, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// ── Direct synthesis ─────────────────────────────────────────────────────────

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), synthesisTimeout)
	defer cancel()

	start := time.Now()
	pcm, err := s.opts.Synth.Synthesize(ctx, req.Text, synth.VoiceProfile{ID: req.Voice})
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.opts.Metrics.RecordSynthesis(ctx, "speech", status, time.Since(start))

	if err != nil {
		slog.Warn("direct synthesis failed", "err", err, "voice", req.Voice)
		writeError(w, http.StatusBadGateway, "synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/L16; rate=16000; channels=1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pcm)
}

type voiceJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.opts.Synth.ListVoices(r.Context())
	if err != nil {
		slog.Warn("listing voices failed", "err", err)
		writeError(w, http.StatusBadGateway, "voice catalogue unavailable")
		return
	}
	out := make([]voiceJSON, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceJSON{ID: v.ID, Name: v.Name, Provider: v.Provider})
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": out})
}

// ── Roster ───────────────────────────────────────────────────────────────────

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	members := []roster.Member{}
	if s.opts.Roster != nil {
		ms, err := s.opts.Roster.List(r.Context())
		if err != nil {
			slog.Warn("listing roster failed", "err", err)
			writeError(w, http.StatusInternalServerError, "roster unavailable")
			return
		}
		members = ms
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name query parameter is required")
		return
	}
	suggestions := []roster.Suggestion{}
	if s.opts.Index != nil {
		if got := roster.Suggest(s.opts.Index, name); got != nil {
			suggestions = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
