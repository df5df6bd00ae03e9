package deadline

import (
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

type dateKind int

const (
	relDays dateKind = iota
	relMonths
	nextWeekday
	calendarDate
)

// dateExpr is a date reference that still needs a reference day to become
// concrete. Parsed phrases are cached as expressions, so they must not
// depend on now.
type dateExpr struct {
	kind    dateKind
	n       int
	weekday time.Weekday
	year    int // 0 when the phrase names no year
	month   time.Month
	day     int
}

func days(n int) dateExpr   { return dateExpr{kind: relDays, n: n} }
func months(n int) dateExpr { return dateExpr{kind: relMonths, n: n} }

func weekday(d time.Weekday) dateExpr {
	return dateExpr{kind: nextWeekday, weekday: d}
}

func date(year int, month time.Month, day int) dateExpr {
	if year > 0 && year < 100 {
		year += 2000
	}
	return dateExpr{kind: calendarDate, year: year, month: month, day: day}
}

// eval returns the day the expression refers to, given today at midnight.
func (e dateExpr) eval(today time.Time) (time.Time, bool) {
	switch e.kind {
	case relDays:
		return today.AddDate(0, 0, e.n), true
	case relMonths:
		return addMonths(today, e.n), true
	case nextWeekday:
		ahead := (int(e.weekday) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	case calendarDate:
		if e.year != 0 {
			return validDate(e.year, e.month, e.day, today.Location())
		}
		d, ok := validDate(today.Year(), e.month, e.day, today.Location())
		if ok && !d.Before(today) {
			return d, true
		}
		return validDate(today.Year()+1, e.month, e.day, today.Location())
	}
	return time.Time{}, false
}

func validDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// addMonths clamps to the last day of the target month.
func addMonths(day time.Time, n int) time.Time {
	first := time.Date(day.Year(), day.Month()+time.Month(n), 1, 0, 0, 0, 0, day.Location())
	last := first.AddDate(0, 1, -1).Day()
	d := day.Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, day.Location())
}

type meridiem int

const (
	noMeridiem meridiem = iota
	am
	pm
)

// clockExpr is a time of day as written. Bare hours ("at 3", "الساعة 3")
// only count when a qualifier such as "afternoon" says which half of the
// day is meant.
type clockExpr struct {
	hour, minute int
	meridiem     meridiem
	bare         bool
}

func (c clockExpr) clock() (core.Clock, bool) {
	h := c.hour
	switch c.meridiem {
	case am, pm:
		if h < 1 || h > 12 {
			return core.Clock{}, false
		}
		h %= 12
		if c.meridiem == pm {
			h += 12
		}
	default:
		if h < 0 || h > 23 {
			return core.Clock{}, false
		}
	}
	if c.minute < 0 || c.minute > 59 {
		return core.Clock{}, false
	}
	return core.Clock{Hour: h, Minute: c.minute}, true
}

// qualifier is a part-of-day word. It supplies a default time, moves bare
// hours into the afternoon when pm is set, and implies today when today is
// set ("tonight", "ce soir").
type qualifier struct {
	clock core.Clock
	pm    bool
	today bool
}

// parsed is everything one language's patterns found in a phrase.
type parsed struct {
	dates      []dateExpr
	clocks     []clockExpr
	qualifiers []qualifier
	invalid    bool // a pattern matched an impossible value or a duration
}

func (p parsed) empty() bool {
	return len(p.dates) == 0 && len(p.qualifiers) == 0 && !p.hasExplicitClock()
}

func (p parsed) hasExplicitClock() bool {
	for _, c := range p.clocks {
		if !c.bare || c.hour > 12 {
			return true
		}
	}
	return false
}

type outcome int

const (
	noMatch outcome = iota
	ambiguous
	resolved
)

// resolve turns the parse into a concrete day and optional clock. Two
// different dates or two different times in one phrase are ambiguous.
func (p parsed) resolve(now time.Time) (time.Time, *core.Clock, outcome) {
	if p.empty() {
		return time.Time{}, nil, noMatch
	}
	if p.invalid {
		return time.Time{}, nil, ambiguous
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var day time.Time
	for _, e := range p.dates {
		d, ok := e.eval(today)
		if !ok || (!day.IsZero() && !d.Equal(day)) {
			return time.Time{}, nil, ambiguous
		}
		day = d
	}

	var qual *qualifier
	for i := range p.qualifiers {
		q := p.qualifiers[i]
		if qual != nil && q.clock != qual.clock {
			return time.Time{}, nil, ambiguous
		}
		if qual == nil {
			qual = &q
		}
	}

	var clock *core.Clock
	var bare *clockExpr
	for i := range p.clocks {
		c := p.clocks[i]
		if c.bare && c.hour <= 12 {
			if bare == nil {
				bare = &c
			}
			continue
		}
		if qual != nil && qual.pm && c.meridiem == noMeridiem && c.hour < 12 {
			c.hour += 12
		}
		v, ok := c.clock()
		if !ok || (clock != nil && *clock != v) {
			return time.Time{}, nil, ambiguous
		}
		clock = &v
	}

	if clock == nil && qual != nil {
		v := qual.clock
		if bare != nil {
			b := *bare
			if qual.pm && b.hour < 12 {
				b.hour += 12
			}
			if c, ok := b.clock(); ok {
				v = c
			}
		}
		clock = &v
	}

	if day.IsZero() {
		switch {
		case qual != nil && qual.today:
			day = today
		case clock != nil:
			// a bare time means its next occurrence
			day = today
			at := time.Date(today.Year(), today.Month(), today.Day(), clock.Hour, clock.Minute, 0, 0, today.Location())
			if !at.After(now) {
				day = today.AddDate(0, 0, 1)
			}
		default:
			return time.Time{}, nil, noMatch
		}
	}
	return day, clock, resolved
}
