package bse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()

	return NewClient(Config{
		APIURL:     srv.URL,
		PDFBaseURL: srv.URL + "/pdf/",
		Location:   ist,
	}, &logger), srv
}

func TestFetchAnnouncementsParsesRecords(t *testing.T) {
	var gotQuery map[string]string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"strCat":    r.URL.Query().Get("strCat"),
			"strScrip":  r.URL.Query().Get("strScrip"),
			"strSearch": r.URL.Query().Get("strSearch"),
			"strType":   r.URL.Query().Get("strType"),
		}

		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "https://www.bseindia.com/", r.Header.Get("Referer"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Table":[
			{"NEWSID":"n1","ATTACHMENTNAME":"a1.pdf","NEWS_DT":"30 Aug 2026 02:05:00 PM","NEWSSUB":"Board Meeting"},
			{"NEWSID":"n2","ATTACHMENTNAME":"a2.pdf","NEWS_DT":"2026-08-30T10:15:00","HEADLINE":"Results"}
		]}`))
	})

	anns, err := client.FetchAnnouncements(context.Background(), "500325", client.DefaultWindow(7))
	require.NoError(t, err)
	require.Len(t, anns, 2)

	assert.Equal(t, "-1", gotQuery["strCat"])
	assert.Equal(t, "500325", gotQuery["strScrip"])
	assert.Equal(t, "P", gotQuery["strSearch"])
	assert.Equal(t, "C", gotQuery["strType"])

	assert.Equal(t, "n1", anns[0].NewsID)
	assert.Equal(t, "Board Meeting", anns[0].Headline)
	assert.Equal(t, "a1.pdf", anns[0].PDFName)
	assert.Equal(t, time.Date(2026, 8, 30, 14, 5, 0, 0, ist), anns[0].PublishedAt)

	assert.Equal(t, "Results", anns[1].Headline, "HEADLINE backfills a missing NEWSSUB")
	assert.Equal(t, time.Date(2026, 8, 30, 10, 15, 0, 0, ist), anns[1].PublishedAt)
}

func TestFetchAnnouncementsDropsUnusableRecords(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Table":[
			{"ATTACHMENTNAME":"orphan.pdf","NEWS_DT":"30 Aug 2026 02:05:00 PM"},
			{"NEWSID":"n2","NEWS_DT":"30 Aug 2026 02:05:00 PM"},
			{"NEWSID":"n3","ATTACHMENTNAME":"a3.pdf"},
			{"NEWSID":"n4","ATTACHMENTNAME":"a4.pdf","NEWS_DT":"not a date at all zz"},
			{"NEWSID":"n5","ATTACHMENTNAME":"a5.pdf","NEWS_DT":"30 Aug 2026 02:05:00 PM"}
		]}`))
	})

	anns, err := client.FetchAnnouncements(context.Background(), "500325", client.DefaultWindow(7))
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "n5", anns[0].NewsID)
}

func TestFetchAnnouncementsDissemDateFallback(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Table":[
			{"NEWSID":"n1","ATTACHMENTNAME":"a1.pdf","DissemDT":"2026-08-30T10:15:00.123456"}
		]}`))
	})

	anns, err := client.FetchAnnouncements(context.Background(), "500325", client.DefaultWindow(7))
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, 2026, anns[0].PublishedAt.Year())
}

func TestFetchAnnouncementsMissingHeadline(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Table":[
			{"NEWSID":"n1","ATTACHMENTNAME":"a1.pdf","NEWS_DT":"30 Aug 2026 02:05:00 PM"}
		]}`))
	})

	anns, err := client.FetchAnnouncements(context.Background(), "500325", client.DefaultWindow(7))
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "N/A", anns[0].Headline)
}

func TestFetchAnnouncementsServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchAnnouncements(context.Background(), "500325", client.DefaultWindow(7))
	assert.Error(t, err)
}

func TestFetchAttachment(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pdf/filing.pdf", r.URL.Path)
		_, _ = w.Write([]byte("%PDF-1.4 content"))
	})

	body, err := client.FetchAttachment(context.Background(), "filing.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 content"), body)
}

func TestFetchAttachmentEmptyBody(t *testing.T) {
	client, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	_, err := client.FetchAttachment(context.Background(), "filing.pdf")
	assert.Error(t, err)
}

func TestFetchAttachmentNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchAttachment(context.Background(), "missing.pdf")
	assert.Error(t, err)
}

func TestParseSourceTimeLayouts(t *testing.T) {
	logger := zerolog.Nop()
	client := NewClient(Config{Location: ist}, &logger)

	for _, tc := range []struct {
		in   string
		want time.Time
	}{
		{"30 Aug 2026 02:05:00 PM", time.Date(2026, 8, 30, 14, 5, 0, 0, ist)},
		{"2026-08-30T14:05:00", time.Date(2026, 8, 30, 14, 5, 0, 0, ist)},
		{"2026-08-30T14:05:00.123456", time.Date(2026, 8, 30, 14, 5, 0, 123456000, ist)},
	} {
		got, err := client.parseSourceTime(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, tc.want.Equal(got), "parse %q: got %v", tc.in, got)
	}
}
