// Package gateway provides a synth.Provider backed by the game's hosted
// speech proxy.
//
// The proxy fronts whichever commercial voice service the deployment pays
// for and keeps its request shape out of this codebase: narvox sends
// (text, voiceId) and receives either binary audio or a structured
// fallback instruction telling the client to synthesise locally (the proxy
// does this when its upstream quota is exhausted). Both the fallback
// instruction and any transport failure surface the same way to callers,
// per [synth.ErrUseLocalFallback].
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/penumbralworks/narvox/pkg/synth"
)

const defaultTimeout = 30 * time.Second

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// Option is a functional option for configuring the gateway Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// Provider implements [synth.Provider] against the speech proxy's REST API.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a gateway Provider targeting baseURL (e.g.
// "https://game.example.com/api/speech").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// speechRequest is the JSON body sent to the proxy.
type speechRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voiceId"`
	Speed   float64 `json:"speed,omitempty"`
}

// fallbackResponse is the structured JSON the proxy returns instead of
// audio when it wants the client to synthesise locally.
type fallbackResponse struct {
	Fallback bool   `json:"fallback"`
	Text     string `json:"text"`
	Reason   string `json:"reason,omitempty"`
}

// voicesResponse is the JSON body of the proxy's voice catalogue endpoint.
type voicesResponse struct {
	Voices []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"voices"`
}

// Synthesize implements [synth.Provider.Synthesize].
func (p *Provider) Synthesize(ctx context.Context, text string, voice synth.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("gateway: voice.ID must not be empty")
	}

	body, err := json.Marshal(speechRequest{
		Text:    text,
		VoiceID: voice.ID,
		Speed:   voice.SpeedFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm, application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: POST returned status %d", resp.StatusCode)
	}

	// A JSON content type means the proxy answered with a control message
	// rather than audio.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var fb fallbackResponse
		if err := json.NewDecoder(resp.Body).Decode(&fb); err != nil {
			return nil, fmt.Errorf("gateway: decode control response: %w", err)
		}
		if fb.Fallback {
			return nil, synth.ErrUseLocalFallback
		}
		return nil, errors.New("gateway: unexpected JSON response without fallback flag")
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("gateway: empty audio response")
	}
	return audio, nil
}

// ListVoices implements [synth.Provider.ListVoices].
func (p *Provider) ListVoices(ctx context.Context) ([]synth.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: create voices request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: GET /voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: GET /voices returned status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("gateway: decode voices: %w", err)
	}

	voices := make([]synth.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		voices = append(voices, synth.VoiceProfile{
			ID:       v.ID,
			Name:     v.Name,
			Provider: "gateway",
		})
	}
	return voices, nil
}
