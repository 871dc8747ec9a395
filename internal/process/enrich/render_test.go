package enrich

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karanvats/scripalert/internal/core/domain"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func sampleAnnouncement() domain.Announcement {
	return domain.Announcement{
		NewsID:      "news-1",
		ScripCode:   "500325",
		Headline:    "Outcome of Board Meeting",
		PDFName:     "outcome.pdf",
		PublishedAt: time.Date(2026, 8, 30, 14, 5, 0, 0, ist),
	}
}

func sampleAnalysis() *domain.Analysis {
	return &domain.Analysis{
		CompanyName:              "Reliance Industries",
		ScripCode:                "500325",
		CurrentStockPrice:        "2950.40",
		PriceChange:              "+1.2%",
		AnnouncementTitle:        "Q1 Results Approved",
		KeyFinancials:            map[string]string{"Revenue": "₹2.3 Lakh Cr", "PAT": "₹18,000 Cr"},
		InvestmentRecommendation: "Buy on strong refining margins",
		PriceTarget:              "3200",
		Sentiment:                "Positive",
		CatalystImpact:           "High near-term",
		PriceMomentum:            "Upward",
		PublicPerception:         "Bullish",
		GeneralPerception:        "Constructive",
		WebInsights:              "Sector tailwinds",
		Motive:                   "Routine disclosure",
		TLDR:                     "Strong quarter, guidance intact.",
	}
}

func TestRenderWithAnalysis(t *testing.T) {
	text := Render(sampleAnnouncement(), sampleAnalysis(), nil, ist)

	assert.Contains(t, text, "📊 <b>Reliance Industries</b>")
	assert.Contains(t, text, "🏷️ <b>Scrip:</b> 500325")
	assert.Contains(t, text, "💰 <b>Price:</b> 2950.40 (+1.2%)")
	assert.Contains(t, text, "📅 <b>Date:</b> 30/08/26 02:05 PM")
	assert.Contains(t, text, "🎯 <b>INVEST?</b> BUY ON STRONG REFINING MARGINS | Target: ₹3200")
	assert.Contains(t, text, "📝 <b>TL;DR:</b> Strong quarter, guidance intact.")
}

func TestRenderFinancialsSortedAndJoined(t *testing.T) {
	text := Render(sampleAnnouncement(), sampleAnalysis(), nil, ist)

	assert.Contains(t, text, "💹 <b>Financials:</b> PAT: ₹18,000 Cr; Revenue: ₹2.3 Lakh Cr")
}

func TestRenderWithoutAnalysisFallsBack(t *testing.T) {
	text := Render(sampleAnnouncement(), nil, nil, ist)

	assert.Contains(t, text, "📊 <b>Company Announcement</b>")
	assert.Contains(t, text, "💰 <b>Price:</b> N/A")
	assert.Contains(t, text, "💹 <b>Financials:</b> AI analysis unavailable")
	assert.Contains(t, text, "📝 <b>TL;DR:</b> New announcement - manual review needed")
}

func TestDocumentFailedCaption(t *testing.T) {
	text := DocumentFailedCaption(sampleAnnouncement(), nil, ist)

	assert.Contains(t, text, "🏷️ <b>Scrip:</b> 500325")
	assert.Contains(t, text, "📅 <b>Date:</b> 30/08/26 02:05 PM")
	assert.Contains(t, text, "💹 <b>Financials:</b> PDF download failed")
	assert.Contains(t, text, "🧠 <b>General View:</b> Document unavailable")
	assert.Contains(t, text, "🎭 <b>Motive:</b> Check BSE website")
	assert.Contains(t, text, "📝 <b>TL;DR:</b> New announcement - PDF unavailable")
}

func TestFallbackUsesQuotePrice(t *testing.T) {
	quote := &domain.Quote{CurrentPrice: 1234.50, DayChangePct: -0.75, HasPrice: true}

	text := Render(sampleAnnouncement(), nil, quote, ist)

	assert.Contains(t, text, "💰 <b>Price:</b> 1234.50 (-0.75%)")
}

func TestRenderQuoteBackfillsMissingPrice(t *testing.T) {
	an := sampleAnalysis()
	an.CurrentStockPrice = domain.FieldNA
	an.PriceChange = ""

	quote := &domain.Quote{CurrentPrice: 2960.10, DayChangePct: 1.8, HasPrice: true}

	text := Render(sampleAnnouncement(), an, quote, ist)

	assert.Contains(t, text, "💰 <b>Price:</b> 2960.10 (+1.80%)")
}

func TestRenderLongHeadlineTruncated(t *testing.T) {
	ann := sampleAnnouncement()
	ann.Headline = strings.Repeat("x", 150)

	text := Render(ann, nil, nil, ist)

	require.Contains(t, text, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, text, strings.Repeat("x", 101))
}

func TestRenderLongFieldsTruncated(t *testing.T) {
	an := sampleAnalysis()
	an.CompanyName = strings.Repeat("A", 60)

	text := Render(sampleAnnouncement(), an, nil, ist)

	assert.Contains(t, text, "📊 <b>"+strings.Repeat("A", 32)+"...</b>")
}

func TestRenderEmptyFinancials(t *testing.T) {
	an := sampleAnalysis()
	an.KeyFinancials = map[string]string{"Revenue": domain.FieldNA}

	text := Render(sampleAnnouncement(), an, nil, ist)

	assert.Contains(t, text, "💹 <b>Financials:</b> Financial data not available")
}
