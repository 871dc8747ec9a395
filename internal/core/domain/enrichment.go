package domain

// FieldNA is rendered for sections with no data. A field holding this
// literal is treated the same as an empty field when merging quote data.
const FieldNA = "N/A"

// Quote holds live market data for a scrip. Zero values mean unavailable.
type Quote struct {
	Symbol        string
	CompanyName   string
	CurrentPrice  float64
	PreviousClose float64
	DayChange     float64
	DayChangePct  float64
	MarketCap     string
	Currency      string
	HasPrice      bool
}

// Analysis is the structured summary produced by the LLM for one
// announcement document. Empty strings mean the model left the field blank.
type Analysis struct {
	CompanyName              string            `json:"company_name"`
	ScripCode                string            `json:"scrip_code"`
	CurrentStockPrice        string            `json:"current_stock_price"`
	PriceChange              string            `json:"price_change"`
	AnnouncementTitle        string            `json:"announcement_title"`
	KeyFinancials            map[string]string `json:"key_financials"`
	InvestmentRecommendation string            `json:"investment_recommendation"`
	PriceTarget              string            `json:"price_target"`
	Sentiment                string            `json:"sentiment_analysis"`
	CatalystImpact           string            `json:"catalyst_impact"`
	PriceMomentum            string            `json:"price_momentum"`
	PublicPerception         string            `json:"public_perception"`
	GeneralPerception        string            `json:"general_perception"`
	WebInsights              string            `json:"web_insights"`
	Motive                   string            `json:"motive_and_meaning"`
	TLDR                     string            `json:"tldr"`
}

// EnrichedNotification is the per-announcement payload handed to the fanout
// dispatcher. It lives for a single sweep and is discarded after dispatch.
//
// BaseCaption is always present. Analysis and Quote are nil when the
// corresponding provider failed or was skipped; RenderedText degrades to the
// template caption in that case.
type EnrichedNotification struct {
	Announcement Announcement
	BaseCaption  string
	Analysis     *Analysis
	Quote        *Quote
	RenderedText string
	Document     []byte
}
