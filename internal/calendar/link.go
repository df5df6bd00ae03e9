// Package calendar turns action items into calendar events: a prefilled
// "add to calendar" link for every item, and optional direct insertion into
// Google Calendar.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

const (
	renderURL = "https://calendar.google.com/calendar/render"

	// MaxTitleRunes caps the event title.
	MaxTitleRunes = 200

	stampLayout = "20060102T150405"
)

// Defaults used when Options fields are zero.
const (
	DefaultOffset    = 24 * time.Hour
	DefaultDuration  = 30 * time.Minute
	DefaultStartHour = 9
)

// Event is the calendar entry derived from one action item.
type Event struct {
	Title    string    `json:"title"`
	Details  string    `json:"details"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone,omitempty"`
}

// Link is a prefilled event-creation URL together with the event it encodes.
type Link struct {
	URL   string `json:"url"`
	Event Event  `json:"event"`
}

// Options configure a Builder.
type Options struct {
	// Offset from now for items without a deadline.
	Offset time.Duration
	// Duration of every event.
	Duration time.Duration
	// StartHour for date-only deadlines, 0-23. Negative values use
	// DefaultStartHour; 0 means midnight.
	StartHour int
	// Timezone is an IANA name. When set, the event times are expressed in
	// it and the link carries it as ctz.
	Timezone string
}

// Builder builds calendar links. It is a pure function of its options, the
// item and now.
type Builder struct {
	offset    time.Duration
	duration  time.Duration
	startHour int
	loc       *time.Location
	tz        string
}

// NewBuilder validates opts and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	b := &Builder{
		offset:    opts.Offset,
		duration:  opts.Duration,
		startHour: opts.StartHour,
		tz:        opts.Timezone,
	}
	if b.offset <= 0 {
		b.offset = DefaultOffset
	}
	if b.duration <= 0 {
		b.duration = DefaultDuration
	}
	if b.startHour < 0 {
		b.startHour = DefaultStartHour
	}
	if b.startHour > 23 {
		return nil, fmt.Errorf("start hour %d out of range", b.startHour)
	}
	if b.tz != "" {
		loc, err := time.LoadLocation(b.tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", b.tz, err)
		}
		b.loc = loc
	}
	return b, nil
}

// DefaultBuilder returns a Builder with the default offset, duration and
// start hour, in the location of the times it is given.
func DefaultBuilder() *Builder {
	b, _ := NewBuilder(Options{StartHour: DefaultStartHour})
	return b
}

// Build returns the link for item. Items without a title fail with a
// LinkBuild error; every other item yields a link.
func (b *Builder) Build(item core.ActionItem, now time.Time) (*Link, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, core.NewError(core.CodeLinkBuild, "action item has no title")
	}
	if b.loc != nil {
		now = now.In(b.loc)
	}

	ev := Event{
		Title:    capRunes(title, MaxTitleRunes),
		Details:  details(item, now),
		Start:    b.start(item.Deadline, now),
		Timezone: b.tz,
	}
	ev.End = ev.Start.Add(b.duration)

	return &Link{URL: b.render(ev), Event: ev}, nil
}

func (b *Builder) start(d core.Deadline, now time.Time) time.Time {
	if d.IsNone() {
		return now.Add(b.offset).Truncate(time.Minute)
	}
	day := d.Date
	if b.loc != nil {
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, b.loc)
	}
	if d.HasTime() {
		return time.Date(day.Year(), day.Month(), day.Day(), d.Time.Hour, d.Time.Minute, 0, 0, day.Location())
	}
	return time.Date(day.Year(), day.Month(), day.Day(), b.startHour, 0, 0, 0, day.Location())
}

func (b *Builder) render(ev Event) string {
	var q strings.Builder
	q.WriteString(renderURL)
	q.WriteString("?action=TEMPLATE")
	param(&q, "text", ev.Title)
	param(&q, "details", ev.Details)
	// dates holds digits, 'T' and '/' only
	q.WriteString("&dates=")
	q.WriteString(ev.Start.Format(stampLayout))
	q.WriteByte('/')
	q.WriteString(ev.End.Format(stampLayout))
	if ev.Timezone != "" {
		param(&q, "ctz", ev.Timezone)
	}
	return q.String()
}

func param(q *strings.Builder, key, value string) {
	q.WriteByte('&')
	q.WriteString(key)
	q.WriteByte('=')
	q.WriteString(escape(value))
}

// escape percent-encodes value for a query string, spaces as %20.
func escape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

func details(item core.ActionItem, now time.Time) string {
	var lines []string
	if excerpt := strings.TrimSpace(item.SourceExcerpt); excerpt != "" {
		lines = append(lines, excerpt, "")
	}
	priority := item.Priority
	if priority == "" {
		priority = core.PriorityMedium
	}
	lines = append(lines, "Priority: "+string(priority))
	if !item.Deadline.IsNone() && item.Deadline.Phrase != "" {
		lines = append(lines, "Deadline: "+item.Deadline.Phrase)
	}
	lines = append(lines, "Created: "+now.Format("2006-01-02 15:04"))
	return strings.Join(lines, "\n")
}

func capRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimRight(string(r[:n-1]), " ") + "…"
}
