// Package piper provides the local speech synthesizer: a synth.Provider
// that talks to a Piper HTTP server running alongside narvox.
//
// Piper is the last line of defence — when the hosted speech gateway is
// down or explicitly defers, narration still gets a voice from this box.
// The server returns WAV; the provider strips the container, converting to
// the 16 kHz mono PCM the rest of the pipeline expects.
package piper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/penumbralworks/narvox/pkg/audio"
	"github.com/penumbralworks/narvox/pkg/synth"
)

const defaultTimeout = 20 * time.Second

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// Option is a functional option for configuring the piper Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Default: 20s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithDefaultVoice sets the voice used when a request carries no voice ID.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		p.defaultVoice = voice
	}
}

// Provider implements synth.Provider against a local Piper server.
type Provider struct {
	serverURL    string
	defaultVoice string
	httpClient   *http.Client
}

// New creates a Provider targeting serverURL (e.g. "http://localhost:5000").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements [synth.Provider.Synthesize].
func (p *Provider) Synthesize(ctx context.Context, text string, voice synth.VoiceProfile) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	switch {
	case voice.ID != "":
		params.Set("voice", voice.ID)
	case p.defaultVoice != "":
		params.Set("voice", p.defaultVoice)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.serverURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper: GET returned status %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}

	pcm := wav[info.DataOffset:]
	if info.Channels == 1 {
		pcm = audio.Normalize(pcm, info.SampleRate)
	}
	if len(pcm) == 0 {
		return nil, errors.New("piper: empty audio after decode")
	}
	return pcm, nil
}

// ListVoices implements [synth.Provider.ListVoices] via the server's
// /voices endpoint. Older Piper builds lack it; a 404 yields an empty
// catalogue rather than an error.
func (p *Provider) ListVoices(ctx context.Context) ([]synth.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("piper: create voices request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: GET /voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper: GET /voices returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read voices: %w", err)
	}

	var voices []synth.VoiceProfile
	for _, name := range strings.Fields(string(body)) {
		voices = append(voices, synth.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "piper",
		})
	}
	return voices, nil
}

// wavInfo describes the PCM layout of a parsed WAV container.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV walks the RIFF chunk list and locates the fmt and data chunks.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("piper: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("piper: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("piper: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt should appear before data; assume Piper defaults.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("piper: WAV response missing data chunk")
}
