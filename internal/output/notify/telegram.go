// Package notify fans enriched announcements out to Telegram chats.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/karanvats/scripalert/internal/core/apperrors"
)

// Sender delivers messages to a Telegram chat.
type Sender interface {
	SendDocument(ctx context.Context, chatID int64, fileName string, doc []byte, caption, buttonURL string) error
	SendText(ctx context.Context, chatID int64, text string) error
}

// SenderConfig configures the Telegram sender.
type SenderConfig struct {
	BotToken     string
	SendTimeout  time.Duration
	RateLimitRPS float64
}

type telegramSender struct {
	api         *tgbotapi.BotAPI
	timeout     time.Duration
	rateLimiter *rate.Limiter
	logger      *zerolog.Logger
}

func NewTelegramSender(cfg SenderConfig, logger *zerolog.Logger) (Sender, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}

	logger.Info().Str("bot", api.Self.UserName).Msg("authorized on telegram")

	return &telegramSender{
		api:         api,
		timeout:     cfg.SendTimeout,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 3),
		logger:      logger,
	}, nil
}

func (s *telegramSender) SendDocument(ctx context.Context, chatID int64, fileName string, doc []byte, caption, buttonURL string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: doc})
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML

	if buttonURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🔎 View Full Analysis", buttonURL),
			),
		)
	}

	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("%w: document to chat %d: %w", apperrors.ErrDispatchFailed, chatID, err)
	}

	return nil
}

func (s *telegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("%w: message to chat %d: %w", apperrors.ErrDispatchFailed, chatID, err)
	}

	return nil
}

func (s *telegramSender) wait(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)

		defer cancel()
	}

	if err := s.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return nil
}
