// Command chalkvoice is the main entry point for the chalkvoice classroom
// record server.
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

	"github.com/chalkvoice/chalkvoice/internal/command"
	"github.com/chalkvoice/chalkvoice/internal/config"
	"github.com/chalkvoice/chalkvoice/internal/health"
	"github.com/chalkvoice/chalkvoice/internal/observe"
	"github.com/chalkvoice/chalkvoice/internal/resilience"
	"github.com/chalkvoice/chalkvoice/internal/roster"
	"github.com/chalkvoice/chalkvoice/internal/server"
	"github.com/chalkvoice/chalkvoice/pkg/provider/asr"
	asrmock "github.com/chalkvoice/chalkvoice/pkg/provider/asr/mock"
	asropenai "github.com/chalkvoice/chalkvoice/pkg/provider/asr/openai"
	"github.com/chalkvoice/chalkvoice/pkg/provider/asr/whispercpp"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	rosterPath := flag.String("roster", "", "optional CSV roster to import and watch for edits (columns: USN, Name)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chalkvoice: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chalkvoice: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("chalkvoice starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so every later component records into the global
	// providers.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
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

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	speech, asrCheckers, closeSpeech, err := buildASR(cfg, reg)
	if err != nil {
		slog.Error("failed to build transcription backends", "err", err)
		return 1
	}
	defer closeSpeech()

	store, checkers, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open record store", "err", err)
		return 1
	}
	defer closeStore()
	checkers = append(checkers, asrCheckers...)

	if *rosterPath != "" {
		watcher, err := roster.NewWatcher(ctx, *rosterPath, store)
		if err != nil {
			slog.Error("roster import failed", "path", *rosterPath, "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	resolver := buildResolver(cfg)

	procOpts := []command.ProcessorOption{command.WithLogger(logger)}
	if speech != nil {
		procOpts = append(procOpts, command.WithASR(speech))
	}
	if cfg.ASR.TranscribeTimeout > 0 {
		procOpts = append(procOpts, command.WithTranscribeTimeout(cfg.ASR.TranscribeTimeout.Std()))
	}
	processor := command.NewProcessor(store, resolver, procOpts...)

	srv := server.New(processor, store,
		server.WithHealth(health.New(checkers...)),
		server.WithLogger(logger),
	)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)
		var serveErr error
		if tls := cfg.Server.TLS; tls != nil {
			serveErr = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			serveErr = httpSrv.ListenAndServe()
		}
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("live feed shutdown error", "err", err)
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

// registerBuiltinProviders wires all built-in transcription backend factories
// into reg. Each factory receives a config.ProviderEntry and constructs the
// backend from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterASR("whispercpp", func(entry config.ProviderEntry) (asr.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whispercpp.Option
		if entry.Language != "" {
			opts = append(opts, whispercpp.WithLanguage(entry.Language))
		}
		return whispercpp.New(modelPath, opts...)
	})

	reg.RegisterASR("openai", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []asropenai.Option
		if entry.Model != "" {
			opts = append(opts, asropenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, asropenai.WithBaseURL(entry.BaseURL))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, asropenai.WithPrompt(prompt))
		}
		return asropenai.New(entry.APIKey, opts...)
	})

	reg.RegisterASR("mock", func(entry config.ProviderEntry) (asr.Provider, error) {
		return &asrmock.Provider{Transcript: optString(entry.Options, "transcript")}, nil
	})
}

// buildASR instantiates the configured transcription backends, wraps them in
// a failover chain, and registers a readiness checker reporting whether any
// backend can currently serve. Returns a nil provider when no primary is
// configured, leaving the server in typed-commands-only mode.
func buildASR(cfg *config.Config, reg *config.Registry) (asr.Provider, []health.Checker, func(), error) {
	noop := func() {}
	if cfg.ASR.Primary.Name == "" {
		return nil, nil, noop, nil
	}

	var closers []func()
	newBackend := func(entry config.ProviderEntry) (asr.Provider, error) {
		p, err := reg.CreateASR(entry)
		if err != nil {
			return nil, fmt.Errorf("create asr backend %q: %w", entry.Name, err)
		}
		if c, ok := p.(interface{ Close() error }); ok {
			closers = append(closers, func() {
				if err := c.Close(); err != nil {
					slog.Warn("asr backend close error", "err", err)
				}
			})
		}
		slog.Info("transcription backend created", "name", entry.Name)
		return p, nil
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	primary, err := newBackend(cfg.ASR.Primary)
	if err != nil {
		closeAll()
		return nil, nil, noop, err
	}

	chain := resilience.NewASRChain(primary, resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.ASR.CircuitBreaker.MaxFailures,
		ResetTimeout: cfg.ASR.CircuitBreaker.ResetTimeout.Std(),
		HalfOpenMax:  cfg.ASR.CircuitBreaker.HalfOpenMax,
	})
	for _, entry := range cfg.ASR.Fallbacks {
		fb, err := newBackend(entry)
		if err != nil {
			closeAll()
			return nil, nil, noop, err
		}
		chain.AddFallback(fb)
	}

	checkers := []health.Checker{{
		Name:  "asr",
		Check: func(context.Context) error { return chain.Ready() },
	}}
	return chain, checkers, closeAll, nil
}

// buildStore opens the configured record store. With a Postgres DSN it
// connects, runs the schema migration, and registers a readiness checker;
// otherwise records live in memory.
func buildStore(ctx context.Context, cfg *config.Config) (roster.Store, []health.Checker, func(), error) {
	noop := func() {}
	if cfg.Store.PostgresDSN == "" {
		slog.Info("using in-memory record store")
		return roster.NewMemStore(), nil, noop, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return nil, nil, noop, fmt.Errorf("connect to postgres: %w", err)
	}
	store := roster.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, noop, fmt.Errorf("migrate schema: %w", err)
	}
	slog.Info("postgres record store ready")

	checkers := []health.Checker{{
		Name:  "store",
		Check: store.Ping,
	}}
	return store, checkers, pool.Close, nil
}

func buildResolver(cfg *config.Config) *roster.Resolver {
	var opts []roster.ResolverOption
	if cfg.Roster.USNPrefix != "" {
		opts = append(opts, roster.WithUSNPrefix(cfg.Roster.USNPrefix))
	}
	if cfg.Roster.MatchThreshold > 0 {
		opts = append(opts, roster.WithMatchThreshold(cfg.Roster.MatchThreshold))
	}
	if cfg.Roster.AmbiguityMargin > 0 {
		opts = append(opts, roster.WithAmbiguityMargin(cfg.Roster.AmbiguityMargin))
	}
	return roster.NewResolver(opts...)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// optString extracts a string value from a backend Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
