package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/penumbralworks/narvox/internal/narrator"
	"github.com/penumbralworks/narvox/internal/ratelimit"
	"github.com/penumbralworks/narvox/internal/roster"
	"github.com/penumbralworks/narvox/internal/segment"
	"github.com/penumbralworks/narvox/internal/server"
	audiomock "github.com/penumbralworks/narvox/pkg/audio/mock"
	"github.com/penumbralworks/narvox/pkg/synth"
	synthmock "github.com/penumbralworks/narvox/pkg/synth/mock"
)

// testDeps bundles the doubles behind a test server.
type testDeps struct {
	srv    *httptest.Server
	player *narrator.Player
	hub    *server.Hub
	sink   *audiomock.Sink
	synth  *synthmock.Provider
}

func newTestServer(t *testing.T, opts func(*server.Options)) *testDeps {
	t.Helper()

	provider := &synthmock.Provider{DefaultAudio: []byte("pcm")}
	hub := server.NewHub()
	sink := audiomock.NewSink()
	hub.Attach(sink)

	members := []roster.Member{
		{ID: "npc-1", Name: "Marcus", Role: "soldier"},
		{ID: "npc-2", Name: "Elena", Role: "field medic"},
	}
	player := narrator.NewPlayer(narrator.Options{
		Synth:  provider,
		Sink:   hub,
		Roster: roster.NewIndex(members),
	})
	t.Cleanup(player.Close)

	o := server.Options{
		Player: player,
		Hub:    hub,
		Synth:  provider,
		Roster: roster.NewMemStore(members...),
		Index:  roster.NewIndex(members),
	}
	if opts != nil {
		opts(&o)
	}
	srv := httptest.NewServer(server.New(o).Handler())
	t.Cleanup(srv.Close)

	return &testDeps{srv: srv, player: player, hub: hub, sink: sink, synth: provider}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

// ── Narration ────────────────────────────────────────────────────────────────

func TestNarrate_StartsSession(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp := postJSON(t, d.srv.URL+"/v1/narration", `{"narrative":"The corridor was dark."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var out struct {
		Segments []segment.Segment `json:"segments"`
		State    narrator.State    `json:"state"`
	}
	decodeJSON(t, resp, &out)

	if len(out.Segments) != 1 {
		t.Fatalf("segments: got %d, want 1", len(out.Segments))
	}
	if out.Segments[0].Speaker != segment.SpeakerGM {
		t.Errorf("speaker: got %q, want gm", out.Segments[0].Speaker)
	}

	waitFor(t, func() bool { return len(d.sink.Playbacks) == 1 },
		"segment audio never reached the sink")
	if got := d.sink.PlayedTexts()[0]; got != "The corridor was dark." {
		t.Errorf("played text: got %q", got)
	}
}

func TestNarrate_PreSegmentsBypassParsing(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	body := `{"segments":[{"speaker":"npc","speakerId":"npc-1","text":"Move out.","isQuoted":true}]}`
	resp := postJSON(t, d.srv.URL+"/v1/narration", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var out struct {
		Segments []segment.Segment `json:"segments"`
	}
	decodeJSON(t, resp, &out)
	if len(out.Segments) != 1 || out.Segments[0].SpeakerID != "npc-1" {
		t.Fatalf("unexpected segments: %+v", out.Segments)
	}
}

func TestNarrate_EmptyBodyRejected(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp := postJSON(t, d.srv.URL+"/v1/narration", `{}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestControl_StopResetsToIdle(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	postJSON(t, d.srv.URL+"/v1/narration", `{"narrative":"One. Two. Three."}`).Body.Close()
	waitFor(t, func() bool { return len(d.sink.Playbacks) >= 1 },
		"first segment never started")

	resp := postJSON(t, d.srv.URL+"/v1/narration/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var st narrator.State
	decodeJSON(t, resp, &st)
	if st.IsPlaying || st.IsLoading {
		t.Errorf("expected idle state after stop, got %+v", st)
	}
}

func TestControl_PauseForwardsToPlayback(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	postJSON(t, d.srv.URL+"/v1/narration", `{"narrative":"Hold position."}`).Body.Close()
	waitFor(t, func() bool { return len(d.sink.Playbacks) == 1 },
		"segment never started")

	postJSON(t, d.srv.URL+"/v1/narration/pause", "").Body.Close()
	waitFor(t, func() bool { return d.sink.Playbacks[0].Paused() },
		"pause never reached the playback")

	postJSON(t, d.srv.URL+"/v1/narration/resume", "").Body.Close()
	waitFor(t, func() bool { return !d.sink.Playbacks[0].Paused() },
		"resume never reached the playback")
}

func TestState_ReflectsSnapshot(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp, err := http.Get(d.srv.URL + "/v1/narration/state")
	if err != nil {
		t.Fatal(err)
	}
	var st narrator.State
	decodeJSON(t, resp, &st)
	if st.IsPlaying || st.IsLoading || st.TotalSegments != 0 {
		t.Errorf("expected idle zero state, got %+v", st)
	}
}

// ── Websocket feeds ──────────────────────────────────────────────────────────

func TestEvents_SendsInitialState(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(d.srv.URL, "/v1/narration/events"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var st narrator.State
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("reading initial state: %v", err)
	}
	if st.IsPlaying || st.IsLoading {
		t.Errorf("expected idle initial state, got %+v", st)
	}
}

func TestEvents_SeesNarrationStart(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(d.srv.URL, "/v1/narration/events"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var st narrator.State
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("reading initial state: %v", err)
	}

	postJSON(t, d.srv.URL+"/v1/narration", `{"narrative":"Something moved."}`).Body.Close()

	// Read until a non-idle state arrives.
	for {
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			t.Fatalf("reading state event: %v", err)
		}
		if st.IsLoading || st.IsPlaying {
			break
		}
	}
	if st.TotalSegments != 1 {
		t.Errorf("totalSegments: got %d, want 1", st.TotalSegments)
	}
}

func TestAudio_AttachesListener(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	// Replace the test sink with a real websocket listener.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(d.srv.URL, "/v1/narration/audio"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitFor(t, d.hub.Listening, "hub never saw the listener")
	if len(d.sink.Playbacks) != 0 {
		t.Error("test sink should have been displaced without receiving clips")
	}
	if d.sink.CallCountClose != 1 {
		t.Errorf("displaced sink Close calls: got %d, want 1", d.sink.CallCountClose)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return !d.hub.Listening() },
		"hub never noticed the listener leaving")
}

// ── Direct synthesis ─────────────────────────────────────────────────────────

func TestSpeech_ReturnsAudio(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp := postJSON(t, d.srv.URL+"/v1/speech", `{"text":"hello","voice":"adam"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "audio/L16") {
		t.Errorf("content type: got %q", ct)
	}

	buf := make([]byte, 16)
	n, _ := resp.Body.Read(buf)
	if string(buf[:n]) != "pcm" {
		t.Errorf("body: got %q, want %q", buf[:n], "pcm")
	}
	if d.synth.CallCount() != 1 || d.synth.Calls[0].Voice.ID != "adam" {
		t.Errorf("unexpected synth calls: %+v", d.synth.Calls)
	}
}

func TestSpeech_MissingTextRejected(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp := postJSON(t, d.srv.URL+"/v1/speech", `{"voice":"adam"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestSpeech_RateLimited(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, func(o *server.Options) {
		o.Limiter = ratelimit.New()
		o.Speech = ratelimit.Config{MaxRequests: 1, Window: time.Minute}
	})

	first := postJSON(t, d.srv.URL+"/v1/speech", `{"text":"one"}`)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request status: got %d, want 200", first.StatusCode)
	}

	second := postJSON(t, d.srv.URL+"/v1/speech", `{"text":"two"}`)
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status: got %d, want 429", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
}

func TestVoices_ListsCatalogue(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, func(o *server.Options) {
		o.Synth = &synthmock.Provider{Voices: []synth.VoiceProfile{
			{ID: "adam", Name: "Adam", Provider: "gateway"},
		}}
	})

	resp, err := http.Get(d.srv.URL + "/v1/voices")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Voices []struct {
			ID       string `json:"id"`
			Provider string `json:"provider"`
		} `json:"voices"`
	}
	decodeJSON(t, resp, &out)
	if len(out.Voices) != 1 || out.Voices[0].ID != "adam" || out.Voices[0].Provider != "gateway" {
		t.Errorf("unexpected voices: %+v", out.Voices)
	}
}

// ── Roster ───────────────────────────────────────────────────────────────────

func TestRoster_ListsMembers(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp, err := http.Get(d.srv.URL + "/v1/roster")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Members []roster.Member `json:"members"`
	}
	decodeJSON(t, resp, &out)
	if len(out.Members) != 2 {
		t.Fatalf("members: got %d, want 2", len(out.Members))
	}
	if out.Members[0].Name != "Marcus" {
		t.Errorf("first member: got %q, want Marcus", out.Members[0].Name)
	}
}

func TestRosterSuggest_FindsCloseName(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp, err := http.Get(d.srv.URL + "/v1/roster/suggest?name=Markus")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Suggestions []roster.Suggestion `json:"suggestions"`
	}
	decodeJSON(t, resp, &out)
	if len(out.Suggestions) == 0 || out.Suggestions[0].Name != "Marcus" {
		t.Errorf("unexpected suggestions: %+v", out.Suggestions)
	}
}

func TestRosterSuggest_RequiresName(t *testing.T) {
	t.Parallel()
	d := newTestServer(t, nil)

	resp, err := http.Get(d.srv.URL + "/v1/roster/suggest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}
