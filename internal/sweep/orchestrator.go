// Package sweep drives the periodic fetch-dedup-enrich-dispatch cycle over
// all subscribed scrips.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/ingest/bse"
	"github.com/karanvats/scripalert/internal/output/notify"
	"github.com/karanvats/scripalert/internal/platform/observability"
	"github.com/karanvats/scripalert/internal/platform/worker"
)

const (
	sweepStatusOK      = "ok"
	sweepStatusError   = "error"
	sweepStatusSkipped = "skipped"
)

// Fetcher pulls announcements for one scrip.
type Fetcher interface {
	FetchAnnouncements(ctx context.Context, scripCode string, w bse.Window) ([]domain.Announcement, error)
	DefaultWindow(days int) bse.Window
}

// Store provides the subscription and delivery-history reads the sweep needs.
type Store interface {
	ListSweepTargets(ctx context.Context) ([]domain.SweepTarget, error)
	GetSubscription(ctx context.Context, userID, scripCode string) (*domain.Subscription, error)
	ListRecipients(ctx context.Context, userID string) ([]domain.Recipient, error)
	ListSeenSince(ctx context.Context, userID string, since time.Time) ([]domain.SeenRecord, error)
}

// Deduper screens announcements against per-user delivery history.
type Deduper interface {
	RecipientsNeedingNotice(ctx context.Context, recipients []domain.Recipient, ann domain.Announcement) []domain.Recipient
}

// Enricher builds the dispatch payload for an announcement.
type Enricher interface {
	Enrich(ctx context.Context, ann domain.Announcement) *domain.EnrichedNotification
}

// Dispatcher fans a payload out to recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []domain.Recipient, n *domain.EnrichedNotification)
}

// Config configures the orchestrator.
type Config struct {
	Interval        time.Duration
	FetchWindowDays int
	CutoffWindow    time.Duration
	Location        *time.Location
}

// Orchestrator owns the sweep cycle.
type Orchestrator struct {
	store      Store
	fetcher    Fetcher
	dedup      Deduper
	enricher   Enricher
	dispatcher Dispatcher
	sender     notify.Sender
	cfg        Config
	logger     *zerolog.Logger

	// now is swappable for cutoff tests.
	now func() time.Time
}

func New(store Store, fetcher Fetcher, dedup Deduper, enricher Enricher, dispatcher Dispatcher, sender notify.Sender, cfg Config, logger *zerolog.Logger) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Orchestrator{
		store:      store,
		fetcher:    fetcher,
		dedup:      dedup,
		enricher:   enricher,
		dispatcher: dispatcher,
		sender:     sender,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes sweeps at the configured interval until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:       "sweep",
		Interval:   o.cfg.Interval,
		RunOnStart: true,
		Logger:     o.logger,
		OnTick: func(ctx context.Context) {
			if err := o.RunOnce(ctx); err != nil {
				o.logger.Error().Err(err).Msg("sweep failed")
			}
		},
	})
}

// RunOnce executes a single full sweep over all targets.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	start := time.Now()

	targets, err := o.store.ListSweepTargets(ctx)
	if err != nil {
		observability.SweepsTotal.WithLabelValues(sweepStatusError).Inc()

		return fmt.Errorf("list sweep targets: %w", err)
	}

	targets = withRecipients(targets)
	if len(targets) == 0 {
		o.logger.Info().Msg("no subscriptions with recipients, skipping sweep")
		observability.SweepsTotal.WithLabelValues(sweepStatusSkipped).Inc()

		return nil
	}

	o.logger.Info().Int("targets", len(targets)).Msg("sweep started")

	cutoff := o.now().In(o.cfg.Location).Add(-o.cfg.CutoffWindow)

	for _, target := range targets {
		if ctx.Err() != nil {
			observability.SweepsTotal.WithLabelValues(sweepStatusError).Inc()

			return fmt.Errorf("sweep interrupted: %w", ctx.Err())
		}

		o.processScrip(ctx, target, cutoff)
	}

	elapsed := time.Since(start)
	observability.SweepsTotal.WithLabelValues(sweepStatusOK).Inc()
	observability.SweepDurationSeconds.Observe(elapsed.Seconds())
	o.logger.Info().Int("targets", len(targets)).Dur("elapsed", elapsed).Msg("sweep finished")

	return nil
}

// CheckScrip runs the cycle for one (user, scrip) pair on demand.
func (o *Orchestrator) CheckScrip(ctx context.Context, userID, scripCode string) error {
	sub, err := o.store.GetSubscription(ctx, userID, scripCode)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}

	if sub == nil {
		return fmt.Errorf("no subscription for user %s scrip %s", userID, scripCode)
	}

	recipients, err := o.store.ListRecipients(ctx, userID)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}

	if len(recipients) == 0 {
		o.logger.Info().Str("user_id", userID).Msg("no recipients for on-demand check")

		return nil
	}

	cutoff := o.now().In(o.cfg.Location).Add(-o.cfg.CutoffWindow)
	o.processScrip(ctx, domain.SweepTarget{Subscription: *sub, Recipients: recipients}, cutoff)

	return nil
}

// CatchUpRecipient replays today's already-delivered announcements to a
// freshly added chat so it does not start from silence.
func (o *Orchestrator) CatchUpRecipient(ctx context.Context, userID string, chatID int64) error {
	o.logger.Info().Str("user_id", userID).Int64("chat_id", chatID).Msg("starting recipient catch-up")

	now := o.now().In(o.cfg.Location)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, o.cfg.Location)

	records, err := o.store.ListSeenSince(ctx, userID, startOfDay)
	if err != nil {
		return fmt.Errorf("list today's announcements: %w", err)
	}

	if len(records) == 0 {
		return o.sender.SendText(ctx, chatID, "✅ You are subscribed! No announcements from today to catch you up on.")
	}

	intro := fmt.Sprintf("✅ You are subscribed! Sending %d announcements from today to catch you up...", len(records))
	if err := o.sender.SendText(ctx, chatID, intro); err != nil {
		return fmt.Errorf("send catch-up intro: %w", err)
	}

	for _, rec := range records {
		if err := o.sender.SendText(ctx, chatID, rec.PDFName+"\n\n"+rec.Caption); err != nil {
			o.logger.Error().Err(err).Str("news_id", rec.NewsID).Int64("chat_id", chatID).Msg("catch-up send failed")
		}
	}

	o.logger.Info().Str("user_id", userID).Int64("chat_id", chatID).Int("count", len(records)).Msg("recipient catch-up finished")

	return nil
}

// processScrip runs fetch, cutoff, dedup, enrich and dispatch for one
// target. Failures are contained to the scrip; panics cannot take down the
// sweep loop.
func (o *Orchestrator) processScrip(ctx context.Context, target domain.SweepTarget, cutoff time.Time) {
	defer worker.RecoverPanic(o.logger, "process scrip "+target.Subscription.ScripCode)

	scrip := target.Subscription.ScripCode

	anns, err := o.fetcher.FetchAnnouncements(ctx, scrip, o.fetcher.DefaultWindow(o.cfg.FetchWindowDays))
	if err != nil {
		o.logger.Error().Err(err).Str("scrip", scrip).Msg("fetch failed, skipping scrip this sweep")

		return
	}

	for _, ann := range anns {
		// Cutoff is inclusive: an announcement exactly at the boundary
		// still goes out.
		if ann.PublishedAt.Before(cutoff) {
			continue
		}

		recipients := o.dedup.RecipientsNeedingNotice(ctx, target.Recipients, ann)
		if len(recipients) == 0 {
			continue
		}

		o.logger.Info().
			Str("scrip", scrip).
			Str("news_id", ann.NewsID).
			Int("recipients", len(recipients)).
			Msg("dispatching announcement")

		o.dispatcher.Dispatch(ctx, recipients, o.enricher.Enrich(ctx, ann))
	}
}

// withRecipients drops targets no chat is listening to.
func withRecipients(targets []domain.SweepTarget) []domain.SweepTarget {
	kept := targets[:0]

	for _, t := range targets {
		if len(t.Recipients) > 0 {
			kept = append(kept, t)
		}
	}

	return kept
}
