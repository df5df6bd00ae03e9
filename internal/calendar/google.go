package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

// GoogleConfig holds the OAuth client and stored refresh token used to push
// events to Google Calendar.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string // defaults to "primary"
}

// Configured reports whether enough credentials are present to connect.
func (c GoogleConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// GoogleInserter creates events directly in a Google calendar.
type GoogleInserter struct {
	service    *gcal.Service
	calendarID string
}

// NewGoogleInserter connects to the Calendar API. Extra client options are
// applied after the OAuth client and may replace it.
func NewGoogleInserter(ctx context.Context, cfg GoogleConfig, extra ...option.ClientOption) (*GoogleInserter, error) {
	if !cfg.Configured() {
		return nil, errors.New("google calendar credentials are incomplete")
	}

	conf := OAuthConfig(cfg.ClientID, cfg.ClientSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, extra...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleInserter{service: service, calendarID: calendarID}, nil
}

// Name identifies the sink in logs and metrics.
func (g *GoogleInserter) Name() string {
	return "google_calendar"
}

// Push inserts ev and returns the created event's web link.
func (g *GoogleInserter) Push(ctx context.Context, ev Event) (string, error) {
	event := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Details,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
	}

	created, err := g.service.Events.Insert(g.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}

	logging.WithFields(map[string]interface{}{
		"calendar": g.calendarID,
		"event_id": created.Id,
	}).Debug("calendar event created")
	return created.HtmlLink, nil
}

// OAuthConfig returns the OAuth2 configuration for calendar event access.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gcal.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
}
