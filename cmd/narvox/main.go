// Command narvox is the narration server for the INFECTED story client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/penumbralworks/narvox/internal/config"
	"github.com/penumbralworks/narvox/internal/health"
	"github.com/penumbralworks/narvox/internal/narrator"
	"github.com/penumbralworks/narvox/internal/observe"
	"github.com/penumbralworks/narvox/internal/ratelimit"
	"github.com/penumbralworks/narvox/internal/resilience"
	"github.com/penumbralworks/narvox/internal/roster"
	"github.com/penumbralworks/narvox/internal/server"
	"github.com/penumbralworks/narvox/internal/voice"
	"github.com/penumbralworks/narvox/pkg/synth"
	"github.com/penumbralworks/narvox/pkg/synth/gateway"
	openaisynth "github.com/penumbralworks/narvox/pkg/synth/openai"
	"github.com/penumbralworks/narvox/pkg/synth/piper"
)

// version is stamped by the release build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it live.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Configuration (with hot reload) ──────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.VoicesChanged {
			slog.Warn("voice configuration changed; restart to apply", "pools", d.PoolChanges)
		}
		if d.RateLimitChanged {
			slog.Warn("rate limit configuration changed; restart to apply")
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "narvox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "narvox: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("narvox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Speech backends ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	chain, local, err := buildSpeechChain(cfg, reg)
	if err != nil {
		slog.Error("failed to build speech backends", "err", err)
		return 1
	}

	// ── Roster ────────────────────────────────────────────────────────────────
	store, members, pool, err := loadRoster(ctx, cfg)
	if err != nil {
		slog.Error("failed to load roster", "err", err)
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}
	slog.Info("roster loaded", "source", rosterSource(cfg), "members", len(members))

	// ── Voice assignment ──────────────────────────────────────────────────────
	assigner := voice.NewAssigner(cfg.Voices.PoolOverrides())
	voiceMap := assigner.VoiceMap(members)
	index := roster.NewIndex(members)

	// ── Narration player ──────────────────────────────────────────────────────
	hub := server.NewHub()
	player := narrator.NewPlayer(narrator.Options{
		Synth:             chain,
		Local:             local,
		Sink:              hub,
		Roster:            index,
		Voices:            voiceMap,
		GMVoice:           cfg.Voices.GM,
		PlayerVoice:       cfg.Voices.Player,
		PlayerGender:      playerGender(cfg.Voices.PlayerGender),
		PlayerMaleVoice:   cfg.Voices.PlayerMale,
		PlayerFemaleVoice: cfg.Voices.PlayerFemale,
	})

	// ── Health checks ─────────────────────────────────────────────────────────
	checkers := []health.Checker{{
		Name: "speech-backends",
		Check: func(context.Context) error {
			for _, st := range chain.BackendStates() {
				if st != resilience.BreakerOpen {
					return nil
				}
			}
			return errors.New("every speech backend breaker is open")
		},
	}}
	if pool != nil {
		checkers = append(checkers, health.Checker{
			Name:  "roster-db",
			Check: pool.Ping,
		})
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(server.Options{
		Player:    player,
		Hub:       hub,
		Synth:     chain,
		Roster:    store,
		Index:     index,
		Metrics:   observe.DefaultMetrics(),
		Limiter:   ratelimit.New(),
		Narration: routeLimit(cfg.RateLimit.Narration),
		Speech:    routeLimit(cfg.RateLimit.Speech),
		Health:    health.New(checkers...),
	})

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		player.Close()
		if err := hub.Close(); err != nil {
			slog.Warn("audio hub close error", "err", err)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the speech backend factories that ship with
// Narvox into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.Register("gateway", func(entry config.SpeechEntry) (synth.Provider, error) {
		var opts []gateway.Option
		if entry.APIKey != "" {
			opts = append(opts, gateway.WithAPIKey(entry.APIKey))
		}
		return gateway.New(entry.BaseURL, opts...)
	})

	reg.Register("openai", func(entry config.SpeechEntry) (synth.Provider, error) {
		var opts []openaisynth.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaisynth.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, openaisynth.WithModel(entry.Model))
		}
		return openaisynth.New(entry.APIKey, opts...)
	})

	reg.Register("piper", func(entry config.SpeechEntry) (synth.Provider, error) {
		var opts []piper.Option
		if entry.Voice != "" {
			opts = append(opts, piper.WithDefaultVoice(entry.Voice))
		}
		return piper.New(entry.BaseURL, opts...)
	})
}

// buildSpeechChain instantiates every configured backend and strings them
// into a failover chain, remote backends first and the local synthesizer
// last. The local provider is also returned on its own for the playback
// retry path.
func buildSpeechChain(cfg *config.Config, reg *config.Registry) (*resilience.Chain, synth.Provider, error) {
	chainCfg := resilience.ChainConfig{Breaker: resilience.BreakerConfig{
		Trip:     cfg.Speech.Breaker.Trip,
		Cooldown: time.Duration(cfg.Speech.Breaker.CooldownSeconds) * time.Second,
		Probes:   cfg.Speech.Breaker.Probes,
	}}

	var local synth.Provider
	if cfg.Speech.Local.Name != "" {
		p, err := reg.Create(cfg.Speech.Local)
		if err != nil {
			return nil, nil, fmt.Errorf("create local backend %q: %w", cfg.Speech.Local.Name, err)
		}
		local = p
	}

	var chain *resilience.Chain
	for _, entry := range cfg.Speech.Backends {
		p, err := reg.Create(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("create backend %q: %w", entry.Name, err)
		}
		if chain == nil {
			chain = resilience.NewChain(p, entry.Name, chainCfg)
		} else {
			chain.AddBackend(entry.Name, p)
		}
		slog.Info("speech backend registered", "name", entry.Name)
	}

	switch {
	case chain == nil && local == nil:
		return nil, nil, errors.New("no speech backends configured")
	case chain == nil:
		chain = resilience.NewChain(local, cfg.Speech.Local.Name, chainCfg)
	default:
		if local != nil {
			chain.AddBackend(cfg.Speech.Local.Name, local)
		}
	}
	return chain, local, nil
}

// ── Roster loading ────────────────────────────────────────────────────────────

// loadRoster builds the roster store selected by the config. The returned
// pool is non-nil only for the postgres source; the caller owns closing it.
func loadRoster(ctx context.Context, cfg *config.Config) (roster.Store, []roster.Member, *pgxpool.Pool, error) {
	switch cfg.Roster.Source {
	case config.RosterYAML:
		pf, err := roster.LoadPartyFile(cfg.Roster.File)
		if err != nil {
			return nil, nil, nil, err
		}
		return roster.NewMemStore(pf.Members...), pf.Members, nil, nil

	case config.RosterPostgres:
		pool, err := pgxpool.New(ctx, cfg.Roster.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect roster database: %w", err)
		}
		store := roster.NewPostgresStore(pool, cfg.Roster.GameID)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		members, err := store.List(ctx)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return store, members, pool, nil

	default:
		return roster.NewMemStore(), nil, nil, nil
	}
}

func rosterSource(cfg *config.Config) string {
	if cfg.Roster.Source == "" {
		return string(config.RosterNone)
	}
	return string(cfg.Roster.Source)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func playerGender(g string) voice.Gender {
	switch g {
	case "female":
		return voice.GenderFemale
	case "male":
		return voice.GenderMale
	default:
		return voice.GenderUnknown
	}
}

func routeLimit(rl config.RouteLimit) ratelimit.Config {
	return ratelimit.Config{
		MaxRequests: rl.MaxRequests,
		Window:      time.Duration(rl.WindowSeconds) * time.Second,
	}
}
