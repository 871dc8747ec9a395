package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/karanvats/scripalert/internal/core/domain"
)

const systemPrompt = `You are an equity research analyst covering Indian listed companies. You are given a corporate announcement filed with the Bombay Stock Exchange, usually with the extracted text of the attached PDF, and sometimes a live market quote.

Return a single JSON object with exactly these keys, all string-valued unless noted:
- company_name
- scrip_code
- current_stock_price
- price_change
- announcement_title
- key_financials (object mapping metric names to values, e.g. {"Revenue": "₹1,240 Cr", "PAT": "₹86 Cr"}; use {} when the filing has no figures)
- investment_recommendation (one of: Strong Buy, Buy, Hold, Sell, Strong Sell, with one short justifying clause)
- price_target
- sentiment_analysis
- catalyst_impact (how materially this event can move the stock, and over what horizon)
- price_momentum
- public_perception (likely retail investor reaction)
- general_perception (likely institutional reaction)
- web_insights (relevant context you know about the company or sector)
- motive_and_meaning (why management filed this, reading between the lines)
- tldr (two sentences maximum)

Rules: base every figure on the filing or the provided quote; never invent numbers. If a field cannot be determined, use the string "N/A". Keep each field under 300 characters except key_financials.`

// buildUserPrompt assembles the per-announcement prompt. Filing text is
// truncated so one oversized PDF cannot blow the context window.
func buildUserPrompt(ann domain.Announcement, filingText string, quote *domain.Quote) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Scrip code: %s\n", ann.ScripCode)
	fmt.Fprintf(&sb, "Headline: %s\n", ann.Headline)
	fmt.Fprintf(&sb, "Published: %s\n", ann.PublishedAt.Format("02 Jan 2006 03:04 PM"))

	if quote != nil && quote.HasPrice {
		fmt.Fprintf(&sb, "Live quote: %s at %.2f %s, day change %+.2f (%+.2f%%), previous close %.2f\n",
			quote.CompanyName, quote.CurrentPrice, quote.Currency, quote.DayChange, quote.DayChangePct, quote.PreviousClose)
	}

	filingText = strings.TrimSpace(filingText)
	if filingText != "" {
		sb.WriteString("\nFiling text:\n")
		sb.WriteString(truncate(filingText, maxFilingChars))
		sb.WriteString("\n")
	} else {
		sb.WriteString("\nNo filing text could be extracted; analyze from the headline alone.\n")
	}

	return sb.String()
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxChars]) + "..."
}
