package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/penumbralworks/narvox/internal/voice"
	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists the speech backend names shipped with Narvox.
// Used by [Validate] to warn about unrecognised backend names.
var ValidBackendNames = []string{"gateway", "openai", "piper"}

// validArchetypes is the set of pool override keys accepted in voices.pools.
var validArchetypes = []voice.Archetype{
	voice.VeteranMale, voice.VeteranFemale,
	voice.YoungMale, voice.YoungFemale,
	voice.AuthorityMale, voice.AuthorityFemale,
	voice.MysteriousMale, voice.MysteriousFemale,
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Speech backends
	backendsSeen := make(map[string]int, len(cfg.Speech.Backends))
	for i, b := range cfg.Speech.Backends {
		prefix := fmt.Sprintf("speech.backends[%d]", i)
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := backendsSeen[b.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of speech.backends[%d]", prefix, b.Name, prev))
		}
		backendsSeen[b.Name] = i
		errs = append(errs, validateBackend(prefix, b)...)
	}
	if cfg.Speech.Local.Name != "" {
		errs = append(errs, validateBackend("speech.local", cfg.Speech.Local)...)
	}
	if len(cfg.Speech.Backends) == 0 && cfg.Speech.Local.Name == "" {
		slog.Warn("no speech backends configured; narration requests will fail until one is added")
	}

	// Breaker
	if cfg.Speech.Breaker.Trip < 0 {
		errs = append(errs, fmt.Errorf("speech.breaker.trip %d must not be negative", cfg.Speech.Breaker.Trip))
	}
	if cfg.Speech.Breaker.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("speech.breaker.cooldown_seconds %d must not be negative", cfg.Speech.Breaker.CooldownSeconds))
	}
	if cfg.Speech.Breaker.Probes < 0 {
		errs = append(errs, fmt.Errorf("speech.breaker.probes %d must not be negative", cfg.Speech.Breaker.Probes))
	}

	// Voices
	switch cfg.Voices.PlayerGender {
	case "", "male", "female":
	default:
		errs = append(errs, fmt.Errorf("voices.player_gender %q is invalid; valid values: male, female", cfg.Voices.PlayerGender))
	}
	if cfg.Voices.Player != "" && cfg.Voices.PlayerGender != "" {
		slog.Warn("voices.player is set; voices.player_gender will be ignored")
	}
	for name, pool := range cfg.Voices.Pools {
		if !slices.Contains(validArchetypes, voice.Archetype(name)) {
			errs = append(errs, fmt.Errorf("voices.pools key %q is not a known archetype", name))
		}
		if len(pool) != 3 {
			errs = append(errs, fmt.Errorf("voices.pools[%q] has %d voices; pools must list exactly 3", name, len(pool)))
		}
	}

	// Roster
	if cfg.Roster.Source != "" && !cfg.Roster.Source.IsValid() {
		errs = append(errs, fmt.Errorf("roster.source %q is invalid; valid values: yaml, postgres, none", cfg.Roster.Source))
	}
	if cfg.Roster.Source == RosterYAML && cfg.Roster.File == "" {
		errs = append(errs, fmt.Errorf("roster.file is required when roster.source is yaml"))
	}
	if cfg.Roster.Source == RosterPostgres && cfg.Roster.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("roster.postgres_dsn is required when roster.source is postgres"))
	}
	if cfg.Roster.Source == RosterPostgres && cfg.Roster.GameID == "" {
		slog.Warn("roster.game_id is empty; postgres roster will load every game's members")
	}

	// Rate limits
	errs = append(errs, validateRouteLimit("rate_limit.narration", cfg.RateLimit.Narration)...)
	errs = append(errs, validateRouteLimit("rate_limit.speech", cfg.RateLimit.Speech)...)

	return errors.Join(errs...)
}

// validateBackend checks one speech backend entry and returns any hard
// errors; unknown names only produce a warning since third-party backends
// can be registered at startup.
func validateBackend(prefix string, b SpeechEntry) []error {
	var errs []error

	if !slices.Contains(ValidBackendNames, b.Name) {
		slog.Warn("unknown speech backend name — may be a typo or third-party backend",
			"entry", prefix,
			"name", b.Name,
			"known", ValidBackendNames,
		)
	}

	switch b.Name {
	case "gateway", "piper":
		if b.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the %q backend", prefix, b.Name))
		}
	case "openai":
		if b.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for the %q backend", prefix, b.Name))
		}
	}
	return errs
}

// validateRouteLimit checks one sliding window limit for coherence.
func validateRouteLimit(prefix string, rl RouteLimit) []error {
	var errs []error
	if rl.MaxRequests < 0 {
		errs = append(errs, fmt.Errorf("%s.max_requests %d must not be negative", prefix, rl.MaxRequests))
	}
	if rl.WindowSeconds < 0 {
		errs = append(errs, fmt.Errorf("%s.window_seconds %d must not be negative", prefix, rl.WindowSeconds))
	}
	if rl.MaxRequests > 0 && rl.WindowSeconds == 0 {
		errs = append(errs, fmt.Errorf("%s.window_seconds is required when max_requests is set", prefix))
	}
	return errs
}
