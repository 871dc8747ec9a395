package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karanvats/scripalert/internal/core/domain"
)

type sentDocument struct {
	chatID    int64
	caption   string
	buttonURL string
	hasDoc    bool
}

type fakeSender struct {
	docs      []sentDocument
	texts     []string
	textChats []int64

	// failChat makes sends to that chat fail; other chats still succeed.
	failChat int64
}

func (f *fakeSender) SendDocument(_ context.Context, chatID int64, _ string, doc []byte, caption, buttonURL string) error {
	if f.failChat != 0 && chatID == f.failChat {
		return errors.New("chat not found")
	}

	f.docs = append(f.docs, sentDocument{chatID: chatID, caption: caption, buttonURL: buttonURL, hasDoc: len(doc) > 0})

	return nil
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	if f.failChat != 0 && chatID == f.failChat {
		return errors.New("chat not found")
	}

	f.texts = append(f.texts, text)
	f.textChats = append(f.textChats, chatID)

	return nil
}

type fakeSeenWriter struct {
	saved []domain.SeenRecord
	err   error
}

func (f *fakeSeenWriter) SaveSeen(_ context.Context, rec *domain.SeenRecord) error {
	if f.err != nil {
		return f.err
	}

	f.saved = append(f.saved, *rec)

	return nil
}

type fakeTokens struct{ err error }

func (f *fakeTokens) Generate(userID, newsID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	return "tok-" + userID + "-" + newsID, nil
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

func notification(text string) *domain.EnrichedNotification {
	return &domain.EnrichedNotification{
		Announcement: domain.Announcement{
			NewsID:    "news-1",
			ScripCode: "500325",
			Headline:  "Board Meeting Outcome",
			PDFName:   "outcome.pdf",
		},
		RenderedText: text,
		Document:     []byte("%PDF-1.4 stub"),
	}
}

func newTestDispatcher(sender *fakeSender, seen *fakeSeenWriter, tokens TokenIssuer) *Dispatcher {
	return NewDispatcher(sender, seen, tokens, DispatcherConfig{
		AppBaseURL:   "https://alerts.example.com",
		CaptionLimit: 4096,
	}, nopLogger())
}

func TestDispatchSavesBeforeSending(t *testing.T) {
	sender := &fakeSender{}
	seen := &fakeSeenWriter{}
	d := newTestDispatcher(sender, seen, &fakeTokens{})

	d.Dispatch(context.Background(), []domain.Recipient{{UserID: "alice", ChatID: 10}}, notification("short caption"))

	require.Len(t, seen.saved, 1)
	assert.Equal(t, "alice", seen.saved[0].UserID)
	assert.Equal(t, "news-1", seen.saved[0].NewsID)
	assert.Equal(t, "short caption", seen.saved[0].Caption)
	require.Len(t, sender.docs, 1)
}

func TestDispatchSaveFailureBlocksSend(t *testing.T) {
	sender := &fakeSender{}
	seen := &fakeSeenWriter{err: errors.New("db down")}
	d := newTestDispatcher(sender, seen, &fakeTokens{})

	d.Dispatch(context.Background(), []domain.Recipient{{UserID: "alice", ChatID: 10}}, notification("short caption"))

	assert.Empty(t, sender.docs, "unrecorded delivery must not be sent")
	assert.Empty(t, sender.texts)
}

func TestDispatchPrependsDeepLink(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeSeenWriter{}, &fakeTokens{})

	d.Dispatch(context.Background(), []domain.Recipient{{UserID: "alice", ChatID: 10}}, notification("short caption"))

	require.Len(t, sender.docs, 1)
	assert.True(t, strings.HasPrefix(sender.docs[0].caption, "🔗 <b>Full details:</b>"))
	assert.Contains(t, sender.docs[0].caption, "https://alerts.example.com/v/tok-alice-news-1")
	assert.Equal(t, "https://alerts.example.com/v/tok-alice-news-1", sender.docs[0].buttonURL)
}

func TestDispatchTokenFailureSendsWithoutLink(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeSeenWriter{}, &fakeTokens{err: errors.New("no secret")})

	d.Dispatch(context.Background(), []domain.Recipient{{UserID: "alice", ChatID: 10}}, notification("short caption"))

	require.Len(t, sender.docs, 1)
	assert.Equal(t, "short caption", sender.docs[0].caption)
	assert.Empty(t, sender.docs[0].buttonURL)
}

func TestDispatchOverflowSplitsIntoFollowUps(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeSeenWriter{}, &fakeTokens{})

	long := strings.Repeat("announcement detail line\n", 250) // ~6250 runes
	d.Dispatch(context.Background(), []domain.Recipient{{UserID: "alice", ChatID: 10}}, notification(long))

	require.Len(t, sender.docs, 1)
	assert.LessOrEqual(t, utf8.RuneCountInString(sender.docs[0].caption), 4096)
	assert.Contains(t, sender.docs[0].caption, "read_full_message", "first chunk must keep the link within headroom")

	require.NotEmpty(t, sender.texts, "overflow must arrive as follow-up messages")

	for _, part := range sender.texts {
		assert.LessOrEqual(t, utf8.RuneCountInString(part), 4096)
	}
}

func TestDispatchOverflowLosesNothing(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, &fakeSeenWriter{}, nil, DispatcherConfig{CaptionLimit: 4096}, nopLogger())

	long := strings.Repeat("x", 5000)
	d.Dispatch(context.Background(), []domain.Recipient{{UserID: "alice", ChatID: 10}}, notification(long))

	require.Len(t, sender.docs, 1)

	var all strings.Builder

	all.WriteString(sender.docs[0].caption)

	for _, part := range sender.texts {
		all.WriteString(part)
	}

	assert.Equal(t, long, all.String())
}

func TestDispatchContinuesAfterChatFailure(t *testing.T) {
	sender := &fakeSender{failChat: 10}
	seen := &fakeSeenWriter{}
	d := newTestDispatcher(sender, seen, &fakeTokens{})

	recipients := []domain.Recipient{
		{UserID: "alice", ChatID: 10},
		{UserID: "bob", ChatID: 20},
	}

	d.Dispatch(context.Background(), recipients, notification("short caption"))

	assert.Len(t, seen.saved, 2, "the failing chat's delivery is still recorded")
	require.Len(t, sender.docs, 1, "one broken chat must not block the rest")
	assert.Equal(t, int64(20), sender.docs[0].chatID)
}

func TestDispatchWithoutDocumentSendsText(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeSeenWriter{}, &fakeTokens{})

	n := notification("short caption")
	n.Document = nil

	d.Dispatch(context.Background(), []domain.Recipient{{UserID: "alice", ChatID: 10}}, n)

	assert.Empty(t, sender.docs)
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "short caption")
}
