package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

var now = time.Date(2024, 1, 10, 10, 0, 30, 0, time.UTC)

func item(title string, d core.Deadline) core.ActionItem {
	return core.ActionItem{
		Title:         title,
		Priority:      core.PriorityHigh,
		Deadline:      d,
		SourceExcerpt: "- " + title,
	}
}

func query(t *testing.T, link *Link) url.Values {
	t.Helper()
	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "calendar.google.com", u.Host)
	return u.Query()
}

// ============================================================================
// Builder
// ============================================================================

func TestBuild_Dates(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		deadline core.Deadline
		want     string
	}{
		{"none anchors at now plus offset", core.NoDeadline("someday"), "20240111T100000/20240111T103000"},
		{"date only starts at start hour", core.ConcreteDeadline(day, nil, "monday", core.LangEnglish), "20240115T090000/20240115T093000"},
		{"date and time", core.ConcreteDeadline(day, &core.Clock{Hour: 15}, "monday 3pm", core.LangEnglish), "20240115T150000/20240115T153000"},
		{"late evening crosses midnight", core.ConcreteDeadline(day, &core.Clock{Hour: 23, Minute: 45}, "", core.LangEnglish), "20240115T234500/20240116T001500"},
	}
	b := DefaultBuilder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := b.Build(item("Call John", tt.deadline), now)
			require.NoError(t, err)
			q := query(t, link)
			assert.Equal(t, "TEMPLATE", q.Get("action"))
			assert.Equal(t, tt.want, q.Get("dates"))
		})
	}
}

func TestBuild_Options(t *testing.T) {
	b, err := NewBuilder(Options{Offset: 2 * time.Hour, Duration: time.Hour, StartHour: 0})
	require.NoError(t, err)

	link, err := b.Build(item("Stand-up", core.NoDeadline("")), now)
	require.NoError(t, err)
	assert.Equal(t, "20240110T120000/20240110T130000", query(t, link).Get("dates"))

	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	link, err = b.Build(item("Stand-up", core.ConcreteDeadline(day, nil, "", core.LangEnglish)), now)
	require.NoError(t, err)
	assert.Equal(t, "20240201T000000/20240201T010000", query(t, link).Get("dates"))
}

func TestBuild_Timezone(t *testing.T) {
	b, err := NewBuilder(Options{StartHour: 9, Timezone: "Africa/Cairo"})
	require.NoError(t, err)

	link, err := b.Build(item("Pay rent", core.NoDeadline("")), now)
	require.NoError(t, err)
	q := query(t, link)
	assert.Equal(t, "Africa/Cairo", q.Get("ctz"))
	// 10:00 UTC is 12:00 in Cairo
	assert.Equal(t, "20240111T120000/20240111T123000", q.Get("dates"))
	assert.Contains(t, link.Event.Details, "Created: 2024-01-10 12:00")

	_, err = NewBuilder(Options{Timezone: "Not/AZone"})
	assert.Error(t, err)
	_, err = NewBuilder(Options{StartHour: 24})
	assert.Error(t, err)
}

func TestBuild_EncodesFreeText(t *testing.T) {
	title := "Call John & Mary #1 ?x=y/z 100% الاتصال"
	link, err := DefaultBuilder().Build(item(title, core.NoDeadline("")), now)
	require.NoError(t, err)

	raw := strings.TrimPrefix(link.URL, renderURL+"?")
	for _, part := range strings.Split(raw, "&") {
		kv := strings.SplitN(part, "=", 2)
		require.Len(t, kv, 2, part)
		assert.NotContains(t, kv[1], " ")
		assert.NotContains(t, kv[1], "#")
		assert.NotContains(t, kv[1], "+")
		assert.True(t, utf8.ValidString(kv[1]))
		for _, r := range kv[1] {
			assert.Less(t, r, rune(0x80), "raw non-ASCII in %s", kv[0])
		}
	}

	q := query(t, link)
	assert.Equal(t, title, q.Get("text"))
	assert.Contains(t, link.URL, "text=Call%20John%20%26%20Mary")
}

func TestBuild_TitleCap(t *testing.T) {
	long := strings.Repeat("مهمة ", 60) // 300 runes
	link, err := DefaultBuilder().Build(item(long, core.NoDeadline("")), now)
	require.NoError(t, err)

	assert.LessOrEqual(t, utf8.RuneCountInString(link.Event.Title), MaxTitleRunes)
	assert.True(t, strings.HasSuffix(link.Event.Title, "…"))
	assert.Equal(t, link.Event.Title, query(t, link).Get("text"))

	exact := strings.Repeat("a", MaxTitleRunes)
	link, err = DefaultBuilder().Build(item(exact, core.NoDeadline("")), now)
	require.NoError(t, err)
	assert.Equal(t, exact, link.Event.Title)
}

func TestBuild_Details(t *testing.T) {
	day := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	it := item("Call John", core.ConcreteDeadline(day, &core.Clock{Hour: 15}, "tomorrow 3pm", core.LangEnglish))
	link, err := DefaultBuilder().Build(it, now)
	require.NoError(t, err)

	details := query(t, link).Get("details")
	assert.Equal(t, link.Event.Details, details)
	assert.Contains(t, details, "- Call John")
	assert.Contains(t, details, "Priority: high")
	assert.Contains(t, details, "Deadline: tomorrow 3pm")
	assert.Contains(t, details, "Created: 2024-01-10 10:00")
}

func TestBuild_EmptyTitle(t *testing.T) {
	for _, title := range []string{"", "   "} {
		link, err := DefaultBuilder().Build(item(title, core.NoDeadline("")), now)
		assert.Nil(t, link)
		assert.True(t, errors.Is(err, core.ErrLinkBuild))
	}
}

func TestBuild_Pure(t *testing.T) {
	b := DefaultBuilder()
	it := item("Send report", core.NoDeadline(""))
	first, err := b.Build(it, now)
	require.NoError(t, err)
	second, err := b.Build(it, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// ============================================================================
// Google Calendar
// ============================================================================

func TestGoogleInserter_Push(t *testing.T) {
	var got gcal.Event
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":       "evt-1",
			"htmlLink": "https://calendar.google.com/event?eid=evt-1",
		})
	}))
	defer srv.Close()

	ins, err := NewGoogleInserter(context.Background(), GoogleConfig{
		ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh", CalendarID: "team",
	}, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.Equal(t, "google_calendar", ins.Name())

	link, err := DefaultBuilder().Build(item("Call John", core.NoDeadline("")), now)
	require.NoError(t, err)

	htmlLink, err := ins.Push(context.Background(), link.Event)
	require.NoError(t, err)
	assert.Equal(t, "https://calendar.google.com/event?eid=evt-1", htmlLink)
	assert.True(t, strings.HasSuffix(path, "/calendars/team/events"), path)
	assert.Equal(t, "Call John", got.Summary)
	assert.Equal(t, "2024-01-11T10:00:00Z", got.Start.DateTime)
	assert.Equal(t, "2024-01-11T10:30:00Z", got.End.DateTime)
}

func TestGoogleInserter_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	ins, err := NewGoogleInserter(context.Background(), GoogleConfig{
		ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh",
	}, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = ins.Push(context.Background(), Event{Title: "x", Start: now, End: now.Add(time.Minute)})
	assert.Error(t, err)
}

func TestGoogleInserter_Incomplete(t *testing.T) {
	_, err := NewGoogleInserter(context.Background(), GoogleConfig{ClientID: "id"})
	assert.Error(t, err)
	assert.False(t, GoogleConfig{ClientID: "id", ClientSecret: "s"}.Configured())
}

func TestOAuthConfig(t *testing.T) {
	conf := OAuthConfig("id", "secret", "http://127.0.0.1/callback")
	assert.Equal(t, []string{gcal.CalendarEventsScope}, conf.Scopes)
	assert.Contains(t, conf.AuthCodeURL("s"), "accounts.google.com")
}

func TestCallbackHandler(t *testing.T) {
	codes := make(chan string, 1)
	errs := make(chan error, 1)
	h := callbackHandler("st", codes, errs)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=wrong&code=c", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, codes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=st&error=access_denied", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, errs, 1)
	assert.Contains(t, (<-errs).Error(), "access_denied")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=st&code=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", <-codes)
}
