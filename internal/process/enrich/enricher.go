// Package enrich assembles the notification payload for an announcement:
// filing download, live quote, model analysis, and the rendered caption.
// Every stage degrades independently; enrichment never blocks delivery.
package enrich

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/core/llm"
	"github.com/karanvats/scripalert/internal/core/quotes"
	"github.com/karanvats/scripalert/internal/platform/observability"
)

const (
	skipReasonLowMemory  = "low_memory"
	skipReasonNoDocument = "no_document"
	skipReasonDisabled   = "disabled"
	skipReasonFailed     = "failed"
)

// AttachmentFetcher downloads the filing PDF behind an announcement.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, pdfName string) ([]byte, error)
}

// Gate reports whether the process can currently afford model calls.
type Gate interface {
	AllowAI() bool
}

// Enricher builds EnrichedNotifications. Analyzer and quote provider are
// optional; a nil provider simply disables that stage.
type Enricher struct {
	attachments AttachmentFetcher
	analyzer    llm.Analyzer
	quotes      quotes.Provider
	gate        Gate
	loc         *time.Location
	logger      *zerolog.Logger
}

func New(attachments AttachmentFetcher, analyzer llm.Analyzer, quoteProvider quotes.Provider, gate Gate, loc *time.Location, logger *zerolog.Logger) *Enricher {
	return &Enricher{
		attachments: attachments,
		analyzer:    analyzer,
		quotes:      quoteProvider,
		gate:        gate,
		loc:         loc,
		logger:      logger,
	}
}

// Enrich produces the dispatch payload for one announcement. It always
// returns a usable notification; failed stages leave their fields nil and
// the caption falls back to a deterministic template. A failed download gets
// its own template so the reader knows the document itself is unavailable.
func (e *Enricher) Enrich(ctx context.Context, ann domain.Announcement) *domain.EnrichedNotification {
	doc := e.fetchDocument(ctx, ann)
	quote := e.fetchQuote(ctx, ann)
	analysis := e.analyze(ctx, ann, doc, quote)

	mergeQuoteIntoAnalysis(analysis, quote)

	base := FallbackCaption(ann, quote, e.loc)
	if doc == nil {
		base = DocumentFailedCaption(ann, quote, e.loc)
	}

	rendered := base
	if analysis != nil {
		rendered = Render(ann, analysis, quote, e.loc)
	}

	return &domain.EnrichedNotification{
		Announcement: ann,
		BaseCaption:  base,
		Analysis:     analysis,
		Quote:        quote,
		RenderedText: rendered,
		Document:     doc,
	}
}

func (e *Enricher) fetchDocument(ctx context.Context, ann domain.Announcement) []byte {
	doc, err := e.attachments.FetchAttachment(ctx, ann.PDFName)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("news_id", ann.NewsID).
			Str("pdf", ann.PDFName).
			Msg("attachment download failed, sending without document")

		return nil
	}

	return doc
}

func (e *Enricher) fetchQuote(ctx context.Context, ann domain.Announcement) *domain.Quote {
	if e.quotes == nil {
		return nil
	}

	quote, err := e.quotes.GetQuote(ctx, ann.ScripCode)
	if err != nil {
		e.logger.Debug().Err(err).Str("scrip", ann.ScripCode).Msg("quote lookup failed")

		return nil
	}

	return quote
}

func (e *Enricher) analyze(ctx context.Context, ann domain.Announcement, doc []byte, quote *domain.Quote) *domain.Analysis {
	if e.analyzer == nil {
		observability.AnalyzerSkipped.WithLabelValues(skipReasonDisabled).Inc()

		return nil
	}

	if len(doc) == 0 {
		observability.AnalyzerSkipped.WithLabelValues(skipReasonNoDocument).Inc()

		return nil
	}

	if e.gate != nil && !e.gate.AllowAI() {
		observability.AnalyzerSkipped.WithLabelValues(skipReasonLowMemory).Inc()
		e.logger.Warn().Str("news_id", ann.NewsID).Msg("analysis skipped under memory pressure")

		return nil
	}

	filingText, err := llm.ExtractPDFText(doc)
	if err != nil {
		e.logger.Debug().Err(err).Str("pdf", ann.PDFName).Msg("pdf text extraction failed, analyzing from headline")
	}

	analysis, err := e.analyzer.Analyze(ctx, ann, filingText, quote)
	if err != nil {
		observability.AnalyzerSkipped.WithLabelValues(skipReasonFailed).Inc()
		e.logger.Warn().Err(err).Str("news_id", ann.NewsID).Msg("analysis failed, falling back to template caption")

		return nil
	}

	return analysis
}

// mergeQuoteIntoAnalysis backfills live market data into fields the model
// left blank. Model-provided figures always win.
func mergeQuoteIntoAnalysis(an *domain.Analysis, quote *domain.Quote) {
	if an == nil || quote == nil || !quote.HasPrice {
		return
	}

	if isBlank(an.CurrentStockPrice) {
		an.CurrentStockPrice = formatPrice(quote.CurrentPrice)
	}

	if isBlank(an.PriceChange) {
		an.PriceChange = formatChangePct(quote.DayChangePct)
	}

	if isBlank(an.CompanyName) && quote.CompanyName != "" {
		an.CompanyName = quote.CompanyName
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatChangePct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}
