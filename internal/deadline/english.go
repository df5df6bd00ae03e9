package deadline

import (
	"strings"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

var enNumbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "a couple of": 2,
}

var enMonths = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var enWeekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// English returns the English pattern set. Numeric dates are month first.
func English() *PatternSet {
	s := &PatternSet{Lang: core.LangEnglish}
	monthNames := alternation(enMonths)

	s.fixed(`(?:the )?day after tomorrow`, days(2))
	s.fixed(`today`, days(0))
	s.fixed(`tomorrow`, days(1))
	s.date(`(?:in|within) (\d+|`+alternation(enNumbers)+`) (days?|weeks?|months?)`, func(m []string) (dateExpr, bool) {
		n, ok := number(m[1], enNumbers)
		if !ok {
			return dateExpr{}, false
		}
		return unit(m[2], n), true
	})
	s.fixed(`next week`, days(7))
	s.fixed(`next month`, months(1))
	s.isoDates()
	s.date(`(`+monthNames+`)\.? (\d{1,2})(?:st|nd|rd|th)?(?:,? (\d{4}))?`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[3]), enMonths[m[1]], atoi(m[2])), true
	})
	s.date(`(?:the )?(\d{1,2})(?:st|nd|rd|th)? (?:of )?(`+monthNames+`)\.?(?:,? (\d{4}))?`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[3]), enMonths[m[2]], atoi(m[1])), true
	})
	s.date(`(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[3]), time.Month(atoi(m[1])), atoi(m[2])), true
	})
	s.date(`(`+alternation(enWeekdays)+`)`, func(m []string) (dateExpr, bool) {
		return weekday(enWeekdays[m[1]]), true
	})

	s.clock(`(\d{1,2})(?::(\d{2}))? ?(a\.?m\.?|p\.?m\.?)`, func(m []string) (clockExpr, bool) {
		c := clockExpr{hour: atoi(m[1]), minute: atoi(m[2]), meridiem: am}
		if strings.HasPrefix(m[3], "p") {
			c.meridiem = pm
		}
		return c, true
	})
	s.twentyFourHour()
	s.clock(`noon|midday`, func([]string) (clockExpr, bool) { return clockExpr{hour: 12}, true })
	s.clock(`midnight`, func([]string) (clockExpr, bool) { return clockExpr{hour: 0}, true })
	s.clock(`(?:at )?(\d{1,2}) o'?clock|at (\d{1,2})`, func(m []string) (clockExpr, bool) {
		h := m[1]
		if h == "" {
			h = m[2]
		}
		return clockExpr{hour: atoi(h), bare: true}, true
	})

	s.qualifier(`tonight`, qualifier{clock: core.Clock{Hour: 20}, pm: true, today: true})
	s.qualifier(`this morning`, qualifier{clock: core.Clock{Hour: 9}, today: true})
	s.qualifier(`this afternoon`, qualifier{clock: core.Clock{Hour: 15}, pm: true, today: true})
	s.qualifier(`this evening`, qualifier{clock: core.Clock{Hour: 18}, pm: true, today: true})
	s.qualifier(`end of (?:the )?day|eod`, qualifier{clock: core.Clock{Hour: 17}, pm: true})
	s.qualifier(`(?:in the )?morning`, qualifier{clock: core.Clock{Hour: 9}})
	s.qualifier(`(?:in the )?afternoon`, qualifier{clock: core.Clock{Hour: 15}, pm: true})
	s.qualifier(`(?:in the )?evening`, qualifier{clock: core.Clock{Hour: 18}, pm: true})
	s.qualifier(`(?:at )?night`, qualifier{clock: core.Clock{Hour: 20}, pm: true})
	return s
}

func unit(u string, n int) dateExpr {
	switch {
	case strings.HasPrefix(u, "week"), strings.HasPrefix(u, "semaine"):
		return days(7 * n)
	case strings.HasPrefix(u, "month"), u == "mois":
		return months(n)
	}
	return days(n)
}
