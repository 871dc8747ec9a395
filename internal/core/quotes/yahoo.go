// Package quotes fetches live market data for BSE scrips from the Yahoo
// Finance quote endpoint. Quote failures never block a notification; callers
// degrade to the N/A placeholder.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/platform/observability"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"

	// BSE listings carry the .BO suffix on Yahoo.
	bseSuffix = ".BO"

	defaultTimeout = 10 * time.Second

	statusOK    = "ok"
	statusEmpty = "empty"
	statusError = "error"
)

// Provider resolves a live quote for one scrip.
type Provider interface {
	GetQuote(ctx context.Context, scripCode string) (*domain.Quote, error)
}

// Config configures the Yahoo quote client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type yahooProvider struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *zerolog.Logger
}

func NewYahooProvider(cfg Config, logger *zerolog.Logger) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &yahooProvider{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(2), 4),
		logger:      logger,
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol                     string  `json:"symbol"`
	LongName                   string  `json:"longName"`
	ShortName                  string  `json:"shortName"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketChange        float64 `json:"regularMarketChange"`
	RegularMarketChangePct     float64 `json:"regularMarketChangePercent"`
	MarketCap                  int64   `json:"marketCap"`
	Currency                   string  `json:"currency"`
}

func (p *yahooProvider) GetQuote(ctx context.Context, scripCode string) (*domain.Quote, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	symbol := scripCode + bseSuffix

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}

	q := url.Values{}
	q.Set("symbols", symbol)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		observability.QuoteLookups.WithLabelValues(statusError).Inc()

		return nil, fmt.Errorf("quote request for %s: %w", symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		observability.QuoteLookups.WithLabelValues(statusError).Inc()

		return nil, fmt.Errorf("quote request for %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		observability.QuoteLookups.WithLabelValues(statusError).Inc()

		return nil, fmt.Errorf("decode quote for %s: %w", symbol, err)
	}

	if len(body.QuoteResponse.Result) == 0 {
		observability.QuoteLookups.WithLabelValues(statusEmpty).Inc()

		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}

	observability.QuoteLookups.WithLabelValues(statusOK).Inc()

	return toQuote(body.QuoteResponse.Result[0]), nil
}

func toQuote(r quoteResult) *domain.Quote {
	name := r.LongName
	if name == "" {
		name = r.ShortName
	}

	return &domain.Quote{
		Symbol:        r.Symbol,
		CompanyName:   name,
		CurrentPrice:  r.RegularMarketPrice,
		PreviousClose: r.RegularMarketPreviousClose,
		DayChange:     r.RegularMarketChange,
		DayChangePct:  r.RegularMarketChangePct,
		MarketCap:     formatMarketCap(r.MarketCap),
		Currency:      r.Currency,
		HasPrice:      r.RegularMarketPrice > 0,
	}
}

// formatMarketCap renders an absolute rupee figure in crores, the unit Indian
// investors expect.
func formatMarketCap(v int64) string {
	if v <= 0 {
		return ""
	}

	crores := float64(v) / 1e7

	if crores >= 1e5 {
		return fmt.Sprintf("%.2f Lakh Cr", crores/1e5)
	}

	return fmt.Sprintf("%.2f Cr", crores)
}
