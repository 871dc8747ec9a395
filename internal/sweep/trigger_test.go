package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karanvats/scripalert/internal/core/domain"
)

type fakeRegistry struct {
	subs        []domain.Subscription
	addedSubs   []domain.Subscription
	deletedSubs []string
	addedRcpts  []domain.Recipient
	removed     []domain.Recipient
	err         error
}

func (f *fakeRegistry) AddSubscription(_ context.Context, sub domain.Subscription) error {
	if f.err != nil {
		return f.err
	}

	f.addedSubs = append(f.addedSubs, sub)

	return nil
}

func (f *fakeRegistry) DeleteSubscription(_ context.Context, userID, scripCode string) error {
	if f.err != nil {
		return f.err
	}

	f.deletedSubs = append(f.deletedSubs, userID+"|"+scripCode)

	return nil
}

func (f *fakeRegistry) ListSubscriptions(context.Context, string) ([]domain.Subscription, error) {
	return f.subs, f.err
}

func (f *fakeRegistry) AddRecipient(_ context.Context, rcpt domain.Recipient) error {
	if f.err != nil {
		return f.err
	}

	f.addedRcpts = append(f.addedRcpts, rcpt)

	return nil
}

func (f *fakeRegistry) DeleteRecipient(_ context.Context, rcpt domain.Recipient) error {
	if f.err != nil {
		return f.err
	}

	f.removed = append(f.removed, rcpt)

	return nil
}

func newTestTrigger(store *fakeStore, fetcher *fakeFetcher, dispatcher *fakeDispatcher) (*TriggerHandler, *fakeRegistry) {
	return newTestTriggerWithSender(store, fetcher, dispatcher, &fakeTextSender{})
}

func newTestTriggerWithSender(store *fakeStore, fetcher *fakeFetcher, dispatcher *fakeDispatcher, sender *fakeTextSender) (*TriggerHandler, *fakeRegistry) {
	o := New(store, fetcher, passThroughDedup{}, &fakeEnricher{}, dispatcher, sender, testConfig(), nopLogger())
	registry := &fakeRegistry{}

	return NewTriggerHandler(o, registry, "s3cret", nopLogger()), registry
}

func TestTriggerRejectsBadSecret(t *testing.T) {
	h, _ := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wrong-secret", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTriggerAcceptsPathSecret(t *testing.T) {
	store := &fakeStore{targets: []domain.SweepTarget{target("500325", 10)}}
	fetcher := &fakeFetcher{anns: []domain.Announcement{announcement("news-1", time.Hour)}}
	h, _ := newTestTrigger(store, fetcher, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/s3cret", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Check triggered.")
}

func TestTriggerManualWithQuerySecret(t *testing.T) {
	h, _ := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/manual?secret=s3cret", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerCheckRequiresParams(t *testing.T) {
	h, _ := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/check?secret=s3cret", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerCheckRunsScrip(t *testing.T) {
	store := &fakeStore{
		sub:        &domain.Subscription{UserID: "alice", ScripCode: "500325"},
		recipients: []domain.Recipient{{UserID: "alice", ChatID: 10}},
	}
	fetcher := &fakeFetcher{anns: []domain.Announcement{announcement("news-1", time.Hour)}}
	dispatcher := &fakeDispatcher{}
	h, _ := newTestTrigger(store, fetcher, dispatcher)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/check?secret=s3cret&user_id=alice&scrip=500325", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, dispatcher.calls, 1)
}

func TestTriggerSubscribeAddsSubscription(t *testing.T) {
	h, registry := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subscribe?secret=s3cret&user_id=alice&scrip=500325&company=Reliance", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, registry.addedSubs, 1)
	assert.Equal(t, domain.Subscription{UserID: "alice", ScripCode: "500325", CompanyName: "Reliance"}, registry.addedSubs[0])
}

func TestTriggerSubscribeRequiresParams(t *testing.T) {
	h, registry := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/subscribe?secret=s3cret&user_id=alice", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, registry.addedSubs)
}

func TestTriggerUnsubscribeDeletesSubscription(t *testing.T) {
	h, registry := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/unsubscribe?secret=s3cret&user_id=alice&scrip=500325", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice|500325"}, registry.deletedSubs)
}

func TestTriggerListSubscriptions(t *testing.T) {
	h, registry := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})
	registry.subs = []domain.Subscription{
		{UserID: "alice", ScripCode: "500325", CompanyName: "Reliance"},
		{UserID: "alice", ScripCode: "532540", CompanyName: "TCS"},
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscriptions?secret=s3cret&user_id=alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var subs []domain.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs, 2)
	assert.Equal(t, "532540", subs[1].ScripCode)
}

func TestTriggerCatchUpRegistersRecipient(t *testing.T) {
	store := &fakeStore{seen: []domain.SeenRecord{{NewsID: "news-1", PDFName: "a.pdf", Caption: "caption"}}}
	sender := &fakeTextSender{}
	h, registry := newTestTriggerWithSender(store, &fakeFetcher{}, &fakeDispatcher{}, sender)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/catchup?secret=s3cret&user_id=alice&chat_id=99", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, registry.addedRcpts, 1)
	assert.Equal(t, domain.Recipient{UserID: "alice", ChatID: 99}, registry.addedRcpts[0])
	assert.NotEmpty(t, sender.texts, "registered chat gets today's replay")
}

func TestTriggerCatchUpRegistrationFailureBlocksReplay(t *testing.T) {
	store := &fakeStore{seen: []domain.SeenRecord{{NewsID: "news-1", PDFName: "a.pdf", Caption: "caption"}}}
	sender := &fakeTextSender{}
	h, registry := newTestTriggerWithSender(store, &fakeFetcher{}, &fakeDispatcher{}, sender)
	registry.err = errors.New("db down")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/catchup?secret=s3cret&user_id=alice&chat_id=99", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, sender.texts, "an unregistered chat must not be caught up")
}

func TestTriggerRemoveRecipient(t *testing.T) {
	h, registry := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/remove_recipient?secret=s3cret&user_id=alice&chat_id=99", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, registry.removed, 1)
	assert.Equal(t, domain.Recipient{UserID: "alice", ChatID: 99}, registry.removed[0])
}

func TestTriggerManagementRejectsBadSecret(t *testing.T) {
	h, registry := newTestTrigger(&fakeStore{}, &fakeFetcher{}, &fakeDispatcher{})

	for _, path := range []string{
		"/subscribe?secret=nope&user_id=alice&scrip=500325",
		"/unsubscribe?secret=nope&user_id=alice&scrip=500325",
		"/subscriptions?secret=nope&user_id=alice",
		"/catchup?secret=nope&user_id=alice&chat_id=99",
		"/remove_recipient?secret=nope&user_id=alice&chat_id=99",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))

		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	assert.Empty(t, registry.addedSubs)
	assert.Empty(t, registry.addedRcpts)
}
