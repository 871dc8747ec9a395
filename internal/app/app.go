// Package app provides the application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// the operational modes:
//
//   - Sweep mode: the periodic announcement sweep loop
//   - Serve mode: HTTP server for health probes, metrics, sweep triggers and
//     deep-link views
//   - All mode: both in one process, the default deployment shape
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/karanvats/scripalert/internal/core/llm"
	"github.com/karanvats/scripalert/internal/core/quotes"
	"github.com/karanvats/scripalert/internal/deeplink"
	"github.com/karanvats/scripalert/internal/ingest/bse"
	"github.com/karanvats/scripalert/internal/output/notify"
	"github.com/karanvats/scripalert/internal/platform/config"
	"github.com/karanvats/scripalert/internal/platform/observability"
	"github.com/karanvats/scripalert/internal/platform/resource"
	"github.com/karanvats/scripalert/internal/process/dedup"
	"github.com/karanvats/scripalert/internal/process/enrich"
	"github.com/karanvats/scripalert/internal/sweep"
	db "github.com/karanvats/scripalert/internal/storage"
)

// App holds the application dependencies and provides methods to run the
// operational modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger

	loc *time.Location
}

// New creates an App. The source timezone must resolve; announcement dates
// are meaningless without it.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.SourceTimezone)
	if err != nil {
		return nil, fmt.Errorf("load source timezone %q: %w", cfg.SourceTimezone, err)
	}

	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
		loc:      loc,
	}, nil
}

// RunAll runs the sweep loop and the HTTP server in one process.
func (a *App) RunAll(ctx context.Context) error {
	a.logger.Info().Msg("starting combined mode")

	orchestrator, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}

	go func() {
		if err := a.serve(ctx, orchestrator); err != nil {
			a.logger.Error().Err(err).Msg("http server error")
		}
	}()

	return orchestrator.Run(ctx)
}

// RunSweep runs the sweep loop, or a single sweep when once is set.
func (a *App) RunSweep(ctx context.Context, once bool) error {
	a.logger.Info().Bool("once", once).Msg("starting sweep mode")

	orchestrator, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}

	if once {
		return orchestrator.RunOnce(ctx)
	}

	return orchestrator.Run(ctx)
}

// RunServe runs the HTTP-only mode. Sweeps happen only via the trigger
// endpoints, matching cron-driven deployments.
func (a *App) RunServe(ctx context.Context) error {
	a.logger.Info().Msg("starting serve mode")

	orchestrator, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}

	return a.serve(ctx, orchestrator)
}

func (a *App) serve(ctx context.Context, orchestrator *sweep.Orchestrator) error {
	trigger := sweep.NewTriggerHandler(orchestrator, a.database, a.cfg.TriggerSecret, a.logger)

	var view http.Handler

	if a.cfg.AppBaseURL != "" {
		tokens := deeplink.NewTokenService(a.cfg.TriggerSecret, a.cfg.DeepLinkTTL)

		handler, err := deeplink.NewHandler(tokens, a.database, a.logger)
		if err != nil {
			return fmt.Errorf("deep-link handler init: %w", err)
		}

		view = handler

		a.logger.Info().Str("base_url", a.cfg.AppBaseURL).Msg("deep-link views enabled")
	}

	srv := observability.NewServerWithHandlers(a.database, a.cfg.HealthPort, trigger, view, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

func (a *App) newOrchestrator(ctx context.Context) (*sweep.Orchestrator, error) {
	sender, err := notify.NewTelegramSender(notify.SenderConfig{
		BotToken:     a.cfg.BotToken,
		SendTimeout:  a.cfg.SendTimeout,
		RateLimitRPS: a.cfg.SendRateLimitRPS,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("telegram sender init: %w", err)
	}

	fetcher := bse.NewClient(bse.Config{
		APIURL:          a.cfg.BSEAPIURL,
		PDFBaseURL:      a.cfg.PDFBaseURL,
		FetchTimeout:    a.cfg.FetchTimeout,
		DownloadTimeout: a.cfg.DownloadTimeout,
		Location:        a.loc,
	}, a.logger)

	var tokens *deeplink.TokenService
	if a.cfg.AppBaseURL != "" {
		tokens = deeplink.NewTokenService(a.cfg.TriggerSecret, a.cfg.DeepLinkTTL)
	}

	dispatcher := notify.NewDispatcher(sender, a.database, tokenIssuer(tokens), notify.DispatcherConfig{
		AppBaseURL:   a.cfg.AppBaseURL,
		CaptionLimit: a.cfg.CaptionLimit,
	}, a.logger)

	enricher := enrich.New(
		fetcher,
		a.newAnalyzer(),
		a.newQuoteProvider(),
		a.startMemoryMonitor(ctx),
		a.loc,
		a.logger,
	)

	orchestrator := sweep.New(
		a.database,
		fetcher,
		dedup.NewFilter(a.database, a.logger),
		enricher,
		dispatcher,
		sender,
		sweep.Config{
			Interval:        a.cfg.SweepInterval,
			FetchWindowDays: a.cfg.FetchWindowDays,
			CutoffWindow:    a.cfg.CutoffWindow,
			Location:        a.loc,
		},
		a.logger,
	)

	return orchestrator, nil
}

// newAnalyzer returns nil when no API key is configured; enrichment then
// runs template-only.
func (a *App) newAnalyzer() llm.Analyzer {
	if a.cfg.LLMAPIKey == "" {
		a.logger.Warn().Msg("no LLM api key configured, AI analysis disabled")

		return nil
	}

	return llm.NewOpenAIAnalyzer(llm.Config{
		APIKey:       a.cfg.LLMAPIKey,
		Model:        a.cfg.LLMModel,
		Timeout:      a.cfg.LLMTimeout,
		RateLimitRPS: a.cfg.LLMRateLimitRPS,
	}, a.logger)
}

func (a *App) newQuoteProvider() quotes.Provider {
	if !a.cfg.QuotesEnabled {
		return nil
	}

	return quotes.NewYahooProvider(quotes.Config{Timeout: a.cfg.QuoteTimeout}, a.logger)
}

// startMemoryMonitor launches RSS sampling in the background and returns
// the monitor as the AI gate. A monitor that fails to start degrades to an
// always-open gate rather than blocking startup.
func (a *App) startMemoryMonitor(ctx context.Context) enrich.Gate {
	monitor, err := resource.NewMonitor(a.cfg.MemorySoftLimitMB, a.cfg.MemoryPollInterval, a.cfg.DisableAIOnLowMem, a.logger)
	if err != nil {
		a.logger.Warn().Err(err).Msg("memory monitor unavailable, AI gating disabled")

		return nil
	}

	go func() {
		if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("memory monitor stopped")
		}
	}()

	return monitor
}

// tokenIssuer keeps a typed-nil *TokenService from reaching the dispatcher
// as a non-nil interface.
func tokenIssuer(tokens *deeplink.TokenService) notify.TokenIssuer {
	if tokens == nil {
		return nil
	}

	return tokens
}
