// Package bse fetches corporate announcements and attached filings from the
// BSE public disclosure API.
package bse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/karanvats/scripalert/internal/core/apperrors"
	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/platform/observability"
)

const (
	// The API rejects requests without a browser user agent and referer.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	referer   = "https://www.bseindia.com/"

	paramDateLayout = "20060102"

	defaultFetchTimeout    = 30 * time.Second
	defaultDownloadTimeout = 30 * time.Second

	dropReasonMissingID   = "missing_identifier"
	dropReasonMissingDate = "missing_date"
	dropReasonBadDate     = "unparseable_date"
)

// sourceTimeLayouts are the date formats the API is known to emit, tried in
// order.
var sourceTimeLayouts = []string{
	"02 Jan 2006 03:04:05 PM",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Window bounds an announcement fetch, inclusive on both ends.
type Window struct {
	From time.Time
	To   time.Time
}

// Config configures the BSE client.
type Config struct {
	APIURL          string
	PDFBaseURL      string
	FetchTimeout    time.Duration
	DownloadTimeout time.Duration
	Location        *time.Location
}

// Client talks to the BSE announcement API and filing store.
type Client struct {
	apiURL         string
	pdfBaseURL     string
	fetchClient    *http.Client
	downloadClient *http.Client
	loc            *time.Location
	logger         *zerolog.Logger
}

func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = defaultDownloadTimeout
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Client{
		apiURL:         cfg.APIURL,
		pdfBaseURL:     cfg.PDFBaseURL,
		fetchClient:    &http.Client{Timeout: fetchTimeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
		loc:            loc,
		logger:         logger,
	}
}

// DefaultWindow returns the trailing n-day window ending now in the source's
// local timezone.
func (c *Client) DefaultWindow(days int) Window {
	now := time.Now().In(c.loc)

	return Window{From: now.AddDate(0, 0, -days), To: now}
}

type announcementList struct {
	Table []json.RawMessage `json:"Table"`
}

type rawAnnouncement struct {
	NewsID         string `json:"NEWSID"`
	AttachmentName string `json:"ATTACHMENTNAME"`
	NewsDT         string `json:"NEWS_DT"`
	DissemDT       string `json:"DissemDT"`
	NewsSub        string `json:"NEWSSUB"`
	Headline       string `json:"HEADLINE"`
}

// FetchAnnouncements retrieves candidate announcements for one scrip over
// the window. Records lacking a usable identifier, attachment name, or
// parseable date are dropped; transport and decode failures are reported as
// apperrors.ErrFetchFailed and leave the sweep to skip the symbol.
func (c *Client) FetchAnnouncements(ctx context.Context, scripCode string, w Window) ([]domain.Announcement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", apperrors.ErrFetchFailed, err)
	}

	q := url.Values{}
	q.Set("strCat", "-1")
	q.Set("strPrevDate", w.From.In(c.loc).Format(paramDateLayout))
	q.Set("strToDate", w.To.In(c.loc).Format(paramDateLayout))
	q.Set("strScrip", scripCode)
	q.Set("strSearch", "P")
	q.Set("strType", "C")
	req.URL.RawQuery = q.Encode()

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	resp, err := c.fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", apperrors.ErrFetchFailed, resp.StatusCode)
	}

	var list announcementList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", apperrors.ErrFetchFailed, err)
	}

	observability.AnnouncementsFetched.WithLabelValues(scripCode).Add(float64(len(list.Table)))

	anns := make([]domain.Announcement, 0, len(list.Table))

	for _, rawJSON := range list.Table {
		ann, ok := c.parseRecord(scripCode, rawJSON)
		if !ok {
			continue
		}

		anns = append(anns, ann)
	}

	return anns, nil
}

// parseRecord normalizes one raw record. A false return means the record
// cannot be deduplicated or delivered meaningfully and is dropped.
func (c *Client) parseRecord(scripCode string, rawJSON json.RawMessage) (domain.Announcement, bool) {
	var raw rawAnnouncement
	if err := json.Unmarshal(rawJSON, &raw); err != nil {
		c.drop(scripCode, dropReasonMissingID, "undecodable record")

		return domain.Announcement{}, false
	}

	if raw.NewsID == "" || raw.AttachmentName == "" {
		c.drop(scripCode, dropReasonMissingID, "record without news id or attachment")

		return domain.Announcement{}, false
	}

	dateStr := raw.NewsDT
	if dateStr == "" {
		dateStr = raw.DissemDT
	}

	if dateStr == "" {
		c.drop(scripCode, dropReasonMissingDate, "record without date")

		return domain.Announcement{}, false
	}

	publishedAt, err := c.parseSourceTime(dateStr)
	if err != nil {
		c.drop(scripCode, dropReasonBadDate, dateStr)

		return domain.Announcement{}, false
	}

	headline := raw.NewsSub
	if headline == "" {
		headline = raw.Headline
	}

	if headline == "" {
		headline = domain.FieldNA
	}

	return domain.Announcement{
		NewsID:      raw.NewsID,
		ScripCode:   scripCode,
		Headline:    headline,
		PDFName:     raw.AttachmentName,
		PublishedAt: publishedAt,
		Raw:         rawJSON,
	}, true
}

// parseSourceTime tries the known source layouts in order, then falls back
// to lenient parsing. Times carry the source's local timezone.
func (c *Client) parseSourceTime(s string) (time.Time, error) {
	for _, layout := range sourceTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, nil
		}
	}

	t, err := dateparse.ParseIn(s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %w", apperrors.ErrParseFailed, s, err)
	}

	return t, nil
}

func (c *Client) drop(scripCode, reason, detail string) {
	observability.AnnouncementsDropped.WithLabelValues(reason).Inc()
	c.logger.Debug().Str("scrip", scripCode).Str("reason", reason).Str("detail", detail).Msg("announcement record dropped")
}
