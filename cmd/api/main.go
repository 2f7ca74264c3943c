package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/joho/godotenv"

	"github.com/mandalnilabja/streamgate/internal/app"
	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/config"
	"github.com/mandalnilabja/streamgate/internal/gateway"
	"github.com/mandalnilabja/streamgate/internal/provider"
	"github.com/mandalnilabja/streamgate/internal/provider/anthropic"
	"github.com/mandalnilabja/streamgate/internal/provider/google"
	"github.com/mandalnilabja/streamgate/internal/provider/lorem"
	"github.com/mandalnilabja/streamgate/internal/provider/openaiwire"
	"github.com/mandalnilabja/streamgate/internal/tokenizer"
	"github.com/mandalnilabja/streamgate/internal/transport/http/handler"
	"github.com/mandalnilabja/streamgate/internal/transport/stream"
	"github.com/mandalnilabja/streamgate/internal/usage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional; system environment always wins.
	_ = godotenv.Load()

	logger := setupLogger()
	slog.SetDefault(logger)

	if err := config.EnsureConfigFile(); err != nil {
		logger.Warn("could not create default config file", "error", err)
	}
	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	registry, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	adapters, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}

	limiter := gateway.NewLimiter(cfg.ProviderConcurrency,
		catalog.ProviderOpenAI,
		catalog.ProviderAnthropic,
		catalog.ProviderGoogle,
		catalog.ProviderXAI,
		catalog.ProviderGroq,
		catalog.ProviderLorem,
	)

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e7,
		MaxCost:     1 << 30,
		BufferItems: 64,
	})
	if err != nil {
		return err
	}
	defer cache.Close()

	sink, err := openUsageSink(cfg, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	estimator := tokenizer.New()
	muxCfg := gateway.MuxConfig{
		MaxSessions: cfg.MaxSessions,
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      logger,
		Estimate:    estimator.Estimate,
		OnTerminal:  recordUsage(sink, logger),
	}

	repo := handler.NewRepo(registry, adapters, limiter, cache, muxCfg)
	router := app.NewRouter(repo, &app.RouterOptions{Logger: logger})
	httpServer := app.NewServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printStartupBanner(cfg, registry, adapters)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http transport listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.Start()
	}()

	if cfg.StreamAddr != "" {
		streamServer := stream.NewServer(registry, adapters, limiter, muxCfg)
		go func() {
			errCh <- streamServer.ListenAndServe(ctx, cfg.StreamAddr)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildAdapters registers one adapter per provider with a configured key.
// The lorem mock needs no credential and is always available.
func buildAdapters(cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	adapters := []provider.Adapter{lorem.New()}

	add := func(name string, a provider.Adapter, err error) error {
		if err != nil {
			return err
		}
		adapters = append(adapters, a)
		logger.Info("provider registered", "provider", name)
		return nil
	}

	if cfg.Keys.OpenAI != "" {
		a, err := openaiwire.NewOpenAI(cfg.Keys.OpenAI)
		if err := add("openai", a, err); err != nil {
			return nil, err
		}
	}
	if cfg.Keys.XAI != "" {
		a, err := openaiwire.NewXAI(cfg.Keys.XAI)
		if err := add("xai", a, err); err != nil {
			return nil, err
		}
	}
	if cfg.Keys.Groq != "" {
		a, err := openaiwire.NewGroq(cfg.Keys.Groq)
		if err := add("groq", a, err); err != nil {
			return nil, err
		}
	}
	if cfg.Keys.Anthropic != "" {
		a, err := anthropic.New(cfg.Keys.Anthropic)
		if err := add("anthropic", a, err); err != nil {
			return nil, err
		}
	}
	if cfg.Keys.Google != "" {
		a, err := google.New(google.Config{APIKey: cfg.Keys.Google})
		if err := add("google", a, err); err != nil {
			return nil, err
		}
	}

	return provider.NewRegistry(adapters...)
}

// openUsageSink opens the SQLite accounting sink, degrading to a no-op sink
// when the database cannot be opened. Accounting must never stop streaming.
func openUsageSink(cfg *config.Config, logger *slog.Logger) (usage.Sink, error) {
	if cfg.UsageDBPath == "" {
		return usage.NopSink{}, nil
	}
	if err := config.EnsureDataDir(); err != nil {
		logger.Warn("usage accounting disabled", "error", err)
		return usage.NopSink{}, nil
	}
	sink, err := usage.NewSQLiteSink(cfg.UsageDBPath)
	if err != nil {
		logger.Warn("usage accounting disabled", "error", err)
		return usage.NopSink{}, nil
	}
	return sink, nil
}

// recordUsage builds the terminal-session hook that writes one accounting
// record per finished stream.
func recordUsage(sink usage.Sink, logger *slog.Logger) func(*gateway.Session) {
	return func(sess *gateway.Session) {
		rec := &usage.Record{
			RequestID:            sess.ID,
			Model:                sess.Descriptor.ID,
			Provider:             sess.Descriptor.Provider.String(),
			EstimatedInputTokens: sess.EstimatedInputTokens,
			DurationMs:           sess.Duration().Milliseconds(),
		}

		switch sess.State() {
		case gateway.StateCompleted:
			rec.Outcome = usage.OutcomeCompleted
		case gateway.StateCancelled:
			rec.Outcome = usage.OutcomeCancelled
		default:
			rec.Outcome = usage.OutcomeFailed
		}

		if u := sess.Usage(); u != nil {
			rec.InputTokens = u.InputTokens
			rec.OutputTokens = u.OutputTokens
		} else {
			rec.InputTokens = sess.EstimatedInputTokens
		}
		if f := sess.Failure(); f != nil {
			rec.ErrorKind = string(f.Kind)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sink.Record(ctx, rec); err != nil {
			logger.Warn("usage record failed", "request_id", sess.ID, "error", err)
		}
	}
}
