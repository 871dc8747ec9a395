package deeplink

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/karanvats/scripalert/internal/core/apperrors"
	"github.com/karanvats/scripalert/internal/core/domain"
	"github.com/karanvats/scripalert/internal/platform/observability"
)

const (
	rateLimitRPS   = 10.0 / 60.0
	rateLimitBurst = 20

	headerContentType = "Content-Type"

	statusServed  = "served"
	statusDenied  = "denied"
	statusExpired = "expired"
	statusMissing = "missing"
	statusLimited = "rate_limited"
)

// SeenReader loads delivery records for the view page.
type SeenReader interface {
	GetSeenRecord(ctx context.Context, userID, newsID string) (*domain.SeenRecord, error)
}

// Handler serves the full notification view behind /v/{token}.
type Handler struct {
	tokenService *TokenService
	store        SeenReader
	logger       *zerolog.Logger

	viewTmpl  *template.Template
	errorTmpl *template.Template

	// IP-based rate limiting
	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
}

func NewHandler(tokenService *TokenService, store SeenReader, logger *zerolog.Logger) (*Handler, error) {
	viewTmpl, err := template.New("view").Parse(viewTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse view template: %w", err)
	}

	errorTmpl, err := template.New("error").Parse(errorTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse error template: %w", err)
	}

	return &Handler{
		tokenService: tokenService,
		store:        store,
		logger:       logger,
		viewTmpl:     viewTmpl,
		errorTmpl:    errorTmpl,
		limiters:     make(map[string]*rate.Limiter),
	}, nil
}

// ServeHTTP handles requests to /v/{token}; the prefix is already stripped.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Robots-Tag", "noindex, nofollow")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set(headerContentType, "text/html; charset=utf-8")

	if !h.allowRequest(clientIP(r)) {
		observability.DeepLinkViews.WithLabelValues(statusLimited).Inc()
		h.renderError(w, http.StatusTooManyRequests, "Too Many Requests", "Please wait before trying again.")

		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/")
	if token == "" {
		observability.DeepLinkViews.WithLabelValues(statusDenied).Inc()
		h.renderError(w, http.StatusBadRequest, "Bad Request", "Missing token in URL.")

		return
	}

	claims, err := h.tokenService.Verify(token)
	if err != nil {
		h.handleTokenError(w, err)

		return
	}

	rec, err := h.store.GetSeenRecord(r.Context(), claims.UserID, claims.NewsID)
	if err != nil {
		observability.DeepLinkViews.WithLabelValues(statusMissing).Inc()
		h.logger.Error().Err(err).Str("news_id", claims.NewsID).Msg("deep-link record lookup failed")
		h.renderError(w, http.StatusInternalServerError, "Unavailable", "Could not load this announcement. Try again later.")

		return
	}

	if rec == nil {
		observability.DeepLinkViews.WithLabelValues(statusMissing).Inc()
		h.renderError(w, http.StatusNotFound, "Not Found", "This announcement is no longer available.")

		return
	}

	observability.DeepLinkViews.WithLabelValues(statusServed).Inc()
	h.renderView(w, rec)
}

func (h *Handler) handleTokenError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrTokenExpired) {
		observability.DeepLinkViews.WithLabelValues(statusExpired).Inc()
		h.renderError(w, http.StatusGone, "Link Expired", "This link has expired. Open a newer notification.")

		return
	}

	observability.DeepLinkViews.WithLabelValues(statusDenied).Inc()
	h.renderError(w, http.StatusUnauthorized, "Invalid Link", "This link is invalid or has been tampered with.")
}

type viewData struct {
	ScripCode string
	Headline  string
	AnnDate   string
	PDFName   string
	// Caption is produced by the renderer in this process, never from user
	// input, so it is safe to emit unescaped.
	Caption template.HTML
}

func (h *Handler) renderView(w http.ResponseWriter, rec *domain.SeenRecord) {
	data := viewData{
		ScripCode: rec.ScripCode,
		Headline:  rec.Headline,
		AnnDate:   rec.AnnDate.Format("02 Jan 2006 03:04 PM"),
		PDFName:   rec.PDFName,
		Caption:   template.HTML(strings.ReplaceAll(rec.Caption, "\n", "<br>")), //nolint:gosec // caption is self-generated
	}

	if err := h.viewTmpl.Execute(w, data); err != nil {
		h.logger.Error().Err(err).Msg("render deep-link view failed")
	}
}

func (h *Handler) renderError(w http.ResponseWriter, status int, title, message string) {
	w.WriteHeader(status)

	if err := h.errorTmpl.Execute(w, struct{ Title, Message string }{title, message}); err != nil {
		h.logger.Error().Err(err).Msg("render deep-link error page failed")
	}
}

func (h *Handler) allowRequest(ip string) bool {
	h.limitersMu.Lock()
	defer h.limitersMu.Unlock()

	limiter, ok := h.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
		h.limiters[ip] = limiter
	}

	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}

		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

const viewTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.ScripCode}} — Announcement</title>
<style>
body { font-family: sans-serif; max-width: 640px; margin: 2rem auto; padding: 0 1rem; color: #222; }
h1 { font-size: 1.2rem; }
.meta { color: #666; font-size: 0.9rem; margin-bottom: 1.5rem; }
.caption { line-height: 1.5; }
</style>
</head>
<body>
<h1>{{.Headline}}</h1>
<div class="meta">Scrip {{.ScripCode}} · {{.AnnDate}} · {{.PDFName}}</div>
<div class="caption">{{.Caption}}</div>
</body>
</html>`

const errorTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; max-width: 640px; margin: 2rem auto;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>`
