package deadline

import (
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// accents are folded away before matching
var frNumbers = map[string]int{
	"un": 1, "une": 1, "deux": 2, "trois": 3, "quatre": 4, "cinq": 5,
	"six": 6, "sept": 7, "huit": 8, "neuf": 9, "dix": 10, "quinze": 15,
}

var frMonths = map[string]time.Month{
	"janvier": time.January, "janv": time.January,
	"fevrier": time.February, "fevr": time.February,
	"mars":  time.March,
	"avril": time.April, "avr": time.April,
	"mai":     time.May,
	"juin":    time.June,
	"juillet": time.July, "juil": time.July,
	"aout":      time.August,
	"septembre": time.September,
	"octobre":   time.October, "oct": time.October,
	"novembre": time.November, "nov": time.November,
	"decembre": time.December, "dec": time.December,
}

var frWeekdays = map[string]time.Weekday{
	"dimanche": time.Sunday, "lundi": time.Monday, "mardi": time.Tuesday,
	"mercredi": time.Wednesday, "jeudi": time.Thursday, "vendredi": time.Friday,
	"samedi": time.Saturday,
}

// French returns the French pattern set. Numeric dates are day first and
// hours follow the 24-hour clock ("15h30").
func French() *PatternSet {
	s := &PatternSet{Lang: core.LangFrench}

	s.fixed(`apres[- ]demain`, days(2))
	s.fixed(`aujourd'? ?hui`, days(0))
	s.fixed(`demain`, days(1))
	s.date(`dans (\d+|`+alternation(frNumbers)+`) (jours?|semaines?|mois)`, func(m []string) (dateExpr, bool) {
		n, ok := number(m[1], frNumbers)
		if !ok {
			return dateExpr{}, false
		}
		return unit(m[2], n), true
	})
	s.reject(`dans (\d+|`+alternation(frNumbers)+`) ?(?:heures?|h|minutes?|min)`)
	s.fixed(`(?:la )?semaine prochaine`, days(7))
	s.fixed(`(?:le )?mois prochain`, months(1))
	s.isoDates()
	s.date(`(?:le )?(\d{1,2})(?:er)? (`+alternation(frMonths)+`)\.?(?: (\d{4}))?`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[3]), frMonths[m[2]], atoi(m[1])), true
	})
	s.date(`(\d{1,2})[/.](\d{1,2})(?:[/.](\d{4}|\d{2}))?`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1])), true
	})
	s.date(`(`+alternation(frWeekdays)+`)(?: prochain)?`, func(m []string) (dateExpr, bool) {
		return weekday(frWeekdays[m[1]]), true
	})

	s.leadingQualifier(`cet apres[- ]midi`, qualifier{clock: core.Clock{Hour: 15}, pm: true, today: true})
	s.leadingQualifier(`(?:de l'|l')?apres[- ]midi`, qualifier{clock: core.Clock{Hour: 15}, pm: true})

	s.clock(`(\d{1,2}) ?(?:h|heures?)(?: ?(\d{2}))?`, func(m []string) (clockExpr, bool) {
		return clockExpr{hour: atoi(m[1]), minute: atoi(m[2])}, true
	})
	s.twentyFourHour()
	s.clock(`midi`, func([]string) (clockExpr, bool) { return clockExpr{hour: 12}, true })
	s.clock(`minuit`, func([]string) (clockExpr, bool) { return clockExpr{hour: 0}, true })

	s.qualifier(`ce soir`, qualifier{clock: core.Clock{Hour: 20}, pm: true, today: true})
	s.qualifier(`ce matin`, qualifier{clock: core.Clock{Hour: 9}, today: true})
	s.qualifier(`(?:du |le )?matin`, qualifier{clock: core.Clock{Hour: 9}})
	s.qualifier(`(?:du |le )?soir`, qualifier{clock: core.Clock{Hour: 18}, pm: true})
	return s
}
