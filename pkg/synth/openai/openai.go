// Package openai provides a speech synthesis provider backed by the
// OpenAI audio API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/penumbralworks/narvox/pkg/audio"
	"github.com/penumbralworks/narvox/pkg/synth"
)

// pcmSampleRate is the fixed rate of the endpoint's raw PCM response format.
const pcmSampleRate = 24000

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// builtinVoices is the fixed voice catalogue the OpenAI speech endpoint
// exposes; there is no listing API.
var builtinVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo",
	"fable", "onyx", "nova", "sage", "shimmer",
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	model   oai.SpeechModel
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithModel selects the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = oai.SpeechModel(model)
	}
}

// Provider implements synth.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  oai.SpeechModel
}

// New constructs a new OpenAI speech Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: oai.SpeechModelTTS1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// Synthesize implements [synth.Provider.Synthesize]. The endpoint is asked
// for raw PCM output (24 kHz mono), which is resampled down to the pipeline
// rate before it is returned.
func (p *Provider) Synthesize(ctx context.Context, text string, voice synth.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("openai: voice.ID must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.SpeedFactor > 0 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech request: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("openai: empty audio response")
	}
	return audio.Normalize(pcm, pcmSampleRate), nil
}

// ListVoices implements [synth.Provider.ListVoices] from the fixed
// built-in catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]synth.VoiceProfile, error) {
	voices := make([]synth.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		voices = append(voices, synth.VoiceProfile{
			ID:       v,
			Name:     v,
			Provider: "openai",
		})
	}
	return voices, nil
}
