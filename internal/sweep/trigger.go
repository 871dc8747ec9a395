package sweep

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/karanvats/scripalert/internal/core/domain"
)

// Registry provides the subscription and recipient writes behind the
// management endpoints.
type Registry interface {
	AddSubscription(ctx context.Context, sub domain.Subscription) error
	DeleteSubscription(ctx context.Context, userID, scripCode string) error
	ListSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error)
	AddRecipient(ctx context.Context, rcpt domain.Recipient) error
	DeleteRecipient(ctx context.Context, rcpt domain.Recipient) error
}

// TriggerHandler exposes on-demand sweep and management endpoints, mounted
// under /trigger/.
//
//	GET  /trigger/{secret}          full sweep, authorized by path secret
//	POST /trigger/manual?secret=..  full sweep
//	POST /trigger/check?secret=..&user_id=..&scrip=..  single-scrip check
//	POST /trigger/subscribe?secret=..&user_id=..&scrip=..&company=..  add a subscription
//	POST /trigger/unsubscribe?secret=..&user_id=..&scrip=..  remove a subscription
//	GET  /trigger/subscriptions?secret=..&user_id=..  list a tenant's subscriptions
//	POST /trigger/catchup?secret=..&user_id=..&chat_id=..  register a chat and replay today
//	POST /trigger/remove_recipient?secret=..&user_id=..&chat_id=..  remove a chat
//
// Sweeps run in the background; the handler answers immediately so external
// cron callers never time out waiting on the exchange API.
type TriggerHandler struct {
	orchestrator *Orchestrator
	store        Registry
	secret       string
	logger       *zerolog.Logger

	// One background sweep at a time; repeated triggers are dropped, not
	// queued.
	running sync.Mutex
	busy    bool
}

func NewTriggerHandler(orchestrator *Orchestrator, store Registry, secret string, logger *zerolog.Logger) *TriggerHandler {
	return &TriggerHandler{
		orchestrator: orchestrator,
		store:        store,
		secret:       secret,
		logger:       logger,
	}
}

func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")

	switch path {
	case "manual":
		h.handleFullSweep(w, r, r.URL.Query().Get("secret"))
	case "check":
		h.handleCheck(w, r)
	case "subscribe":
		h.handleSubscribe(w, r)
	case "unsubscribe":
		h.handleUnsubscribe(w, r)
	case "subscriptions":
		h.handleListSubscriptions(w, r)
	case "catchup":
		h.handleCatchUp(w, r)
	case "remove_recipient":
		h.handleRemoveRecipient(w, r)
	default:
		// Path segment is the secret itself, cron-URL style.
		h.handleFullSweep(w, r, path)
	}
}

func (h *TriggerHandler) handleFullSweep(w http.ResponseWriter, r *http.Request, secret string) {
	if !h.authorized(secret) {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("unauthorized sweep trigger")
		http.Error(w, "Unauthorized", http.StatusForbidden)

		return
	}

	if !h.tryStart() {
		http.Error(w, "Sweep already running", http.StatusConflict)

		return
	}

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("external trigger received, starting sweep")

	go func() {
		defer h.finish()

		ctx, cancel := backgroundContext()
		defer cancel()

		if err := h.orchestrator.RunOnce(ctx); err != nil {
			h.logger.Error().Err(err).Msg("triggered sweep failed")
		}
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Check triggered.\n"))
}

func (h *TriggerHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.URL.Query().Get("secret")) {
		http.Error(w, "Unauthorized", http.StatusForbidden)

		return
	}

	userID := r.URL.Query().Get("user_id")
	scrip := r.URL.Query().Get("scrip")

	if userID == "" || scrip == "" {
		http.Error(w, "user_id and scrip are required", http.StatusBadRequest)

		return
	}

	if err := h.orchestrator.CheckScrip(r.Context(), userID, scrip); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("scrip", scrip).Msg("on-demand check failed")
		http.Error(w, "Check failed", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Check complete.\n"))
}

// handleSubscribe adds a subscription and kicks off an immediate check for
// the new scrip in the background, so the subscriber hears about anything
// recent without waiting for the next sweep.
func (h *TriggerHandler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.URL.Query().Get("secret")) {
		http.Error(w, "Unauthorized", http.StatusForbidden)

		return
	}

	userID := r.URL.Query().Get("user_id")
	scrip := r.URL.Query().Get("scrip")

	if userID == "" || scrip == "" {
		http.Error(w, "user_id and scrip are required", http.StatusBadRequest)

		return
	}

	sub := domain.Subscription{
		UserID:      userID,
		ScripCode:   scrip,
		CompanyName: r.URL.Query().Get("company"),
	}

	if err := h.store.AddSubscription(r.Context(), sub); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("scrip", scrip).Msg("subscribe failed")
		http.Error(w, "Subscribe failed", http.StatusInternalServerError)

		return
	}

	h.logger.Info().Str("user_id", userID).Str("scrip", scrip).Msg("subscription added, triggering immediate check")

	go func() {
		ctx, cancel := backgroundContext()
		defer cancel()

		if err := h.orchestrator.CheckScrip(ctx, userID, scrip); err != nil {
			h.logger.Error().Err(err).Str("user_id", userID).Str("scrip", scrip).Msg("post-subscribe check failed")
		}
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Subscribed.\n"))
}

func (h *TriggerHandler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.URL.Query().Get("secret")) {
		http.Error(w, "Unauthorized", http.StatusForbidden)

		return
	}

	userID := r.URL.Query().Get("user_id")
	scrip := r.URL.Query().Get("scrip")

	if userID == "" || scrip == "" {
		http.Error(w, "user_id and scrip are required", http.StatusBadRequest)

		return
	}

	if err := h.store.DeleteSubscription(r.Context(), userID, scrip); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("scrip", scrip).Msg("unsubscribe failed")
		http.Error(w, "Unsubscribe failed", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Unsubscribed.\n"))
}

func (h *TriggerHandler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.URL.Query().Get("secret")) {
		http.Error(w, "Unauthorized", http.StatusForbidden)

		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)

		return
	}

	subs, err := h.store.ListSubscriptions(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("list subscriptions failed")
		http.Error(w, "Listing failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(subs); err != nil {
		h.logger.Error().Err(err).Msg("encode subscriptions failed")
	}
}

// handleCatchUp registers a chat for a tenant and replays today's
// announcements to it. Registration comes first: a chat that only got the
// replay would never hear about future sweeps.
func (h *TriggerHandler) handleCatchUp(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.URL.Query().Get("secret")) {
		http.Error(w, "Unauthorized", http.StatusForbidden)

		return
	}

	userID, chatID, ok := recipientParams(w, r)
	if !ok {
		return
	}

	if err := h.store.AddRecipient(r.Context(), domain.Recipient{UserID: userID, ChatID: chatID}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Int64("chat_id", chatID).Msg("add recipient failed")
		http.Error(w, "Adding recipient failed", http.StatusInternalServerError)

		return
	}

	if err := h.orchestrator.CatchUpRecipient(r.Context(), userID, chatID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Int64("chat_id", chatID).Msg("recipient catch-up failed")
		http.Error(w, "Catch-up failed", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Catch-up complete.\n"))
}

func (h *TriggerHandler) handleRemoveRecipient(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.URL.Query().Get("secret")) {
		http.Error(w, "Unauthorized", http.StatusForbidden)

		return
	}

	userID, chatID, ok := recipientParams(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteRecipient(r.Context(), domain.Recipient{UserID: userID, ChatID: chatID}); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Int64("chat_id", chatID).Msg("remove recipient failed")
		http.Error(w, "Removing recipient failed", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Recipient removed.\n"))
}

func recipientParams(w http.ResponseWriter, r *http.Request) (userID string, chatID int64, ok bool) {
	userID = r.URL.Query().Get("user_id")

	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if userID == "" || err != nil {
		http.Error(w, "user_id and numeric chat_id are required", http.StatusBadRequest)

		return "", 0, false
	}

	return userID, chatID, true
}

func (h *TriggerHandler) authorized(secret string) bool {
	if h.secret == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) == 1
}

func (h *TriggerHandler) tryStart() bool {
	h.running.Lock()
	defer h.running.Unlock()

	if h.busy {
		return false
	}

	h.busy = true

	return true
}

func (h *TriggerHandler) finish() {
	h.running.Lock()
	defer h.running.Unlock()

	h.busy = false
}

// backgroundContext bounds a detached sweep so an abandoned run cannot hang
// forever once the triggering request is gone.
func backgroundContext() (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Minute)
}
