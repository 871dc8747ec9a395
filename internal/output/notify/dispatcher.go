package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/platform/observability"
)

const (
	defaultCaptionLimit = 4096

	statusSent       = "sent"
	statusFailed     = "failed"
	statusSaveFailed = "save_failed"
)

// SeenWriter records a delivery before it happens.
type SeenWriter interface {
	SaveSeen(ctx context.Context, rec *domain.SeenRecord) error
}

// TokenIssuer signs per-recipient deep-link tokens.
type TokenIssuer interface {
	Generate(userID, newsID string) (string, error)
}

// Dispatcher fans one enriched announcement out to its recipients.
//
// The seen record is written before the send: if the process dies in
// between, the user misses one notification instead of receiving it twice
// on every sweep until the write succeeds. Catch-up can replay misses;
// nothing can unsend a duplicate.
type Dispatcher struct {
	sender       Sender
	seen         SeenWriter
	tokens       TokenIssuer
	baseURL      string
	captionLimit int
	logger       *zerolog.Logger
}

// DispatcherConfig configures fanout.
type DispatcherConfig struct {
	AppBaseURL   string
	CaptionLimit int
}

func NewDispatcher(sender Sender, seen SeenWriter, tokens TokenIssuer, cfg DispatcherConfig, logger *zerolog.Logger) *Dispatcher {
	limit := cfg.CaptionLimit
	if limit <= 0 {
		limit = defaultCaptionLimit
	}

	return &Dispatcher{
		sender:       sender,
		seen:         seen,
		tokens:       tokens,
		baseURL:      strings.TrimRight(cfg.AppBaseURL, "/"),
		captionLimit: limit,
		logger:       logger,
	}
}

// Dispatch delivers n to every recipient. Per-recipient failures are logged
// and counted; one broken chat never blocks the rest of the fanout.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []domain.Recipient, n *domain.EnrichedNotification) {
	for _, r := range recipients {
		if err := d.dispatchOne(ctx, r, n); err != nil {
			d.logger.Error().Err(err).
				Str("user_id", r.UserID).
				Int64("chat_id", r.ChatID).
				Str("news_id", n.Announcement.NewsID).
				Msg("notification dispatch failed")
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, r domain.Recipient, n *domain.EnrichedNotification) error {
	ann := n.Announcement

	rec := domain.SeenRecord{
		ID:        uuid.NewString(),
		UserID:    r.UserID,
		NewsID:    ann.NewsID,
		ScripCode: ann.ScripCode,
		Headline:  ann.Headline,
		PDFName:   ann.PDFName,
		AnnDate:   ann.PublishedAt,
		Caption:   n.RenderedText,
	}

	if err := d.seen.SaveSeen(ctx, &rec); err != nil {
		observability.NotificationsSent.WithLabelValues(statusSaveFailed).Inc()

		return fmt.Errorf("save seen record: %w", err)
	}

	link := d.deepLink(r.UserID, ann.NewsID)
	caption := personalizeCaption(n.RenderedText, link)

	if err := d.deliver(ctx, r.ChatID, ann.PDFName, caption, n.Document, link); err != nil {
		observability.NotificationsSent.WithLabelValues(statusFailed).Inc()

		return err
	}

	observability.NotificationsSent.WithLabelValues(statusSent).Inc()

	return nil
}

// deepLink returns the per-recipient view URL, or empty when tokens cannot
// be issued. A missing link degrades the message, never blocks it.
func (d *Dispatcher) deepLink(userID, newsID string) string {
	if d.tokens == nil || d.baseURL == "" {
		return ""
	}

	token, err := d.tokens.Generate(userID, newsID)
	if err != nil {
		d.logger.Warn().Err(err).Str("news_id", newsID).Msg("deep-link token generation failed")

		return ""
	}

	return d.baseURL + "/v/" + token
}

// personalizeCaption puts the deep link at the top so it survives any later
// truncation.
func personalizeCaption(text, link string) string {
	if link == "" {
		return text
	}

	return fmt.Sprintf("🔗 <b>Full details:</b> <a href=\"%s\">Open securely</a>\n\n%s", link, text)
}

// deliver sends the caption with the document attached. Captions over the
// limit are trimmed to leave headroom for a trailing link line on the first
// message, and the remainder follows as plain messages.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64, fileName, caption string, doc []byte, link string) error {
	if utf8.RuneCountInString(caption) <= d.captionLimit {
		return d.send(ctx, chatID, fileName, caption, doc, link)
	}

	first := caption
	rest := ""

	if link != "" {
		linkLine := fmt.Sprintf("\n\n🔗 <b>read_full_message:</b> <a href=\"%s\">open</a>", link)

		headroom := d.captionLimit - utf8.RuneCountInString(linkLine)
		if headroom < 0 {
			headroom = 0
		}

		head := runePrefix(caption, headroom)
		first = head + linkLine
		rest = caption[len(head):]
	} else {
		head := runePrefix(caption, d.captionLimit)
		first = head
		rest = caption[len(head):]
	}

	if err := d.send(ctx, chatID, fileName, first, doc, link); err != nil {
		return err
	}

	for _, part := range SplitText(rest, d.captionLimit) {
		if part == "" {
			continue
		}

		if err := d.sender.SendText(ctx, chatID, part); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, fileName, caption string, doc []byte, link string) error {
	if len(doc) > 0 {
		return d.sender.SendDocument(ctx, chatID, fileName, doc, caption, link)
	}

	return d.sender.SendText(ctx, chatID, caption)
}
