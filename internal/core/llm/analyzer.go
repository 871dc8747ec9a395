// Package llm turns raw filings into structured announcement analyses using
// an OpenAI-compatible chat model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/karanvats/scripalert/internal/core/apperrors"
	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/platform/observability"
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute

	// Filing text beyond this adds cost without changing the analysis.
	maxFilingChars = 12000
)

// Analyzer produces a structured analysis for one announcement.
type Analyzer interface {
	Analyze(ctx context.Context, ann domain.Announcement, filingText string, quote *domain.Quote) (*domain.Analysis, error)
}

// Config configures the OpenAI-backed analyzer.
type Config struct {
	APIKey       string
	Model        string
	Timeout      time.Duration
	RateLimitRPS int
}

type openaiAnalyzer struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

func NewOpenAIAnalyzer(cfg Config, logger *zerolog.Logger) Analyzer {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}

	return &openaiAnalyzer{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		timeout:     cfg.Timeout,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rps)), 5),
	}
}

func (a *openaiAnalyzer) checkCircuit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if time.Now().Before(a.circuitOpenUntil) {
		return fmt.Errorf("%w: open until %v", apperrors.ErrCircuitBreakerOpen, a.circuitOpenUntil)
	}

	return nil
}

func (a *openaiAnalyzer) recordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consecutiveFailures = 0
}

func (a *openaiAnalyzer) recordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecutiveFailures++
	if a.consecutiveFailures >= circuitBreakerThreshold {
		a.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		a.logger.Warn().
			Int("consecutive_failures", a.consecutiveFailures).
			Time("open_until", a.circuitOpenUntil).
			Msg("analyzer circuit breaker opened")
	}
}

func (a *openaiAnalyzer) Analyze(ctx context.Context, ann domain.Announcement, filingText string, quote *domain.Quote) (*domain.Analysis, error) {
	if err := a.checkCircuit(); err != nil {
		return nil, err
	}

	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)

		defer cancel()
	}

	start := time.Now()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(ann, filingText, quote),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})

	observability.AnalyzerRequestDuration.WithLabelValues(a.model).Observe(time.Since(start).Seconds())

	if err != nil {
		a.recordFailure()

		return nil, fmt.Errorf("%w: %w", apperrors.ErrAnalyzerUnavailable, err)
	}

	a.recordSuccess()

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", apperrors.ErrEmptyResponse)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, apperrors.ErrEmptyResponse
	}

	analysis := &domain.Analysis{}
	if err := json.Unmarshal([]byte(content), analysis); err != nil {
		a.logger.Debug().Str("content", content).Msg("unparseable analyzer response")

		return nil, fmt.Errorf("%w: decode analysis: %w", apperrors.ErrAnalyzerUnavailable, err)
	}

	normalizeAnalysis(analysis, ann)

	return analysis, nil
}

// normalizeAnalysis fills blanks so the renderer never deals with empty
// strings: every missing field renders as the literal placeholder.
func normalizeAnalysis(an *domain.Analysis, ann domain.Announcement) {
	fill := func(s *string) {
		if strings.TrimSpace(*s) == "" {
			*s = domain.FieldNA
		}
	}

	if strings.TrimSpace(an.ScripCode) == "" {
		an.ScripCode = ann.ScripCode
	}

	if strings.TrimSpace(an.AnnouncementTitle) == "" {
		an.AnnouncementTitle = ann.Headline
	}

	fill(&an.CompanyName)
	fill(&an.CurrentStockPrice)
	fill(&an.PriceChange)
	fill(&an.InvestmentRecommendation)
	fill(&an.PriceTarget)
	fill(&an.Sentiment)
	fill(&an.CatalystImpact)
	fill(&an.PriceMomentum)
	fill(&an.PublicPerception)
	fill(&an.GeneralPerception)
	fill(&an.WebInsights)
	fill(&an.Motive)
	fill(&an.TLDR)
}
