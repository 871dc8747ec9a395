package enrich

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/karanvats/scripalert/internal/core/domain"
)

const (
	headlineLimit = 100

	captionDateLayout = "02/01/06 03:04 PM"
)

// Render produces the notification text for one announcement. With an
// analysis present it renders the full structured caption; without one it
// degrades to the deterministic template so a notification always goes out.
func Render(ann domain.Announcement, an *domain.Analysis, quote *domain.Quote, loc *time.Location) string {
	if an == nil {
		return FallbackCaption(ann, quote, loc)
	}

	return analysisCaption(ann, an, quote, loc)
}

// FallbackCaption is the caption used when no analysis is available. Every
// section renders with a fixed placeholder so the message shape stays stable.
func FallbackCaption(ann domain.Announcement, quote *domain.Quote, loc *time.Location) string {
	return fmt.Sprintf(`📊 <b>Company Announcement</b>

🏷️ <b>Scrip:</b> %s
💰 <b>Price:</b> %s
📢 <b>Title:</b> %s
📅 <b>Date:</b> %s

💹 <b>Financials:</b> AI analysis unavailable

🎯 <b>INVEST?</b> Consult financial advisor
📈 <b>Sentiment:</b> Unknown
👥 <b>Public:</b> To be determined
🧠 <b>General View:</b> Analysis failed
🎭 <b>Motive:</b> Review announcement details

📝 <b>TL;DR:</b> New announcement - manual review needed`,
		ann.ScripCode,
		quotePriceDisplay(quote),
		headlineDisplay(ann.Headline),
		dateDisplay(ann.PublishedAt, loc),
	)
}

// DocumentFailedCaption is the caption used when the filing PDF itself could
// not be downloaded. The message says so explicitly and points the reader at
// the exchange website instead of promising a manual review.
func DocumentFailedCaption(ann domain.Announcement, quote *domain.Quote, loc *time.Location) string {
	return fmt.Sprintf(`📊 <b>Company Announcement</b>

🏷️ <b>Scrip:</b> %s
💰 <b>Price:</b> %s
📢 <b>Title:</b> %s
📅 <b>Date:</b> %s

💹 <b>Financials:</b> PDF download failed

🎯 <b>INVEST?</b> Consult financial advisor
📈 <b>Sentiment:</b> Unknown
👥 <b>Public:</b> To be determined
🧠 <b>General View:</b> Document unavailable
🎭 <b>Motive:</b> Check BSE website

📝 <b>TL;DR:</b> New announcement - PDF unavailable`,
		ann.ScripCode,
		quotePriceDisplay(quote),
		headlineDisplay(ann.Headline),
		dateDisplay(ann.PublishedAt, loc),
	)
}

func analysisCaption(ann domain.Announcement, an *domain.Analysis, quote *domain.Quote, loc *time.Location) string {
	scrip := an.ScripCode
	if isBlank(scrip) {
		scrip = ann.ScripCode
	}

	title := an.AnnouncementTitle
	if isBlank(title) {
		title = ann.Headline
	}

	return fmt.Sprintf(`📊 <b>%s</b>

🏷️ <b>Scrip:</b> %s
💰 <b>Price:</b> %s
📢 <b>Title:</b> %s
📅 <b>Date:</b> %s

💹 <b>Financials:</b> %s

🎯 <b>INVEST?</b> %s
📈 <b>Sentiment:</b> %s
⚡ <b>Catalyst:</b> %s
📊 <b>Momentum:</b> %s
👥 <b>Public:</b> %s
🧠 <b>General:</b> %s
🌐 <b>Web Intel:</b> %s

📝 <b>TL;DR:</b> %s`,
		truncateField(an.CompanyName, 35),
		scrip,
		priceDisplay(an, quote),
		truncateField(title, 60),
		dateDisplay(ann.PublishedAt, loc),
		truncateField(financialSummary(an.KeyFinancials), 100),
		truncateField(investmentDisplay(an), 80),
		truncateField(an.Sentiment, 15),
		truncateField(an.CatalystImpact, 70),
		truncateField(an.PriceMomentum, 60),
		truncateField(an.PublicPerception, 60),
		truncateField(an.GeneralPerception, 60),
		truncateField(an.WebInsights, 70),
		truncateField(an.TLDR, 80),
	)
}

// priceDisplay prefers the model's figure and falls back to the live quote,
// appending the day change when either source has one.
func priceDisplay(an *domain.Analysis, quote *domain.Quote) string {
	price := an.CurrentStockPrice
	change := an.PriceChange

	if isBlank(price) && quote != nil && quote.HasPrice {
		price = fmt.Sprintf("%.2f", quote.CurrentPrice)

		if isBlank(change) {
			change = fmt.Sprintf("%+.2f%%", quote.DayChangePct)
		}
	}

	if isBlank(price) {
		return domain.FieldNA
	}

	if !isBlank(change) {
		return fmt.Sprintf("%s (%s)", price, change)
	}

	return price
}

func quotePriceDisplay(quote *domain.Quote) string {
	if quote == nil || !quote.HasPrice {
		return domain.FieldNA
	}

	return fmt.Sprintf("%.2f (%+.2f%%)", quote.CurrentPrice, quote.DayChangePct)
}

func investmentDisplay(an *domain.Analysis) string {
	rec := an.InvestmentRecommendation
	if !isBlank(rec) {
		rec = strings.ToUpper(rec)
	}

	if !isBlank(an.PriceTarget) {
		rec += " | Target: ₹" + an.PriceTarget
	}

	return rec
}

// financialSummary flattens the key_financials map into "Key: Value" pairs,
// sorted for a stable caption.
func financialSummary(financials map[string]string) string {
	keys := make([]string, 0, len(financials))

	for k, v := range financials {
		if !isBlank(v) {
			keys = append(keys, k)
		}
	}

	if len(keys) == 0 {
		return "Financial data not available"
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, financials[k]))
	}

	return strings.Join(parts, "; ")
}

func headlineDisplay(headline string) string {
	runes := []rune(headline)
	if len(runes) <= headlineLimit {
		return headline
	}

	return string(runes[:headlineLimit]) + "..."
}

func dateDisplay(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return domain.FieldNA
	}

	if loc != nil {
		t = t.In(loc)
	}

	return t.Format(captionDateLayout)
}

func truncateField(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen-3]) + "..."
}

func isBlank(s string) bool {
	trimmed := strings.TrimSpace(s)

	return trimmed == "" || trimmed == domain.FieldNA
}
