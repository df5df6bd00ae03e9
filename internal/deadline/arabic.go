package deadline

import (
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// Keys are in normalised spelling: no hamza carriers, teh marbuta as heh,
// alef maksura as yeh.
var arNumbers = map[string]int{
	"واحد": 1, "اثنين": 2, "اثنان": 2, "ثلاث": 3, "ثلاثه": 3, "اربع": 4, "اربعه": 4,
	"خمس": 5, "خمسه": 5, "ست": 6, "سته": 6, "سبع": 7, "سبعه": 7, "ثمان": 8, "ثماني": 8,
	"ثمانيه": 8, "تسع": 9, "تسعه": 9, "عشر": 10, "عشره": 10,
}

// Gregorian names as used in Egypt and the Gulf, the Levant and the Maghreb.
var arMonths = map[string]time.Month{
	"يناير": time.January, "كانون الثاني": time.January, "جانفي": time.January,
	"فبراير": time.February, "شباط": time.February, "فيفري": time.February,
	"مارس": time.March, "اذار": time.March,
	"ابريل": time.April, "نيسان": time.April, "افريل": time.April,
	"مايو": time.May, "ايار": time.May, "ماي": time.May,
	"يونيو": time.June, "حزيران": time.June, "جوان": time.June,
	"يوليو": time.July, "تموز": time.July, "جويليه": time.July,
	"اغسطس": time.August, "اب": time.August, "اوت": time.August,
	"سبتمبر": time.September, "ايلول": time.September,
	"اكتوبر": time.October, "تشرين الاول": time.October,
	"نوفمبر": time.November, "تشرين الثاني": time.November,
	"ديسمبر": time.December, "كانون الاول": time.December,
}

var arWeekdays = map[string]time.Weekday{
	"الاحد": time.Sunday, "الاثنين": time.Monday, "الثلاثاء": time.Tuesday,
	"الاربعاء": time.Wednesday, "الخميس": time.Thursday, "الجمعه": time.Friday,
	"السبت": time.Saturday,
}

// dual forms carry their own count
var arDuals = map[string]dateExpr{
	"يومين": days(2), "اسبوعين": days(14), "شهرين": months(2),
	"يوم": days(1), "اسبوع": days(7), "شهر": months(1),
}

const arNext = `(?:القادم|المقبل|الجاي|القادمه|المقبله)`

// Arabic returns the Arabic pattern set. Numeric dates are day first.
func Arabic() *PatternSet {
	s := &PatternSet{Lang: core.LangArabic}

	s.fixed(`بعد (?:غدا|غد|بكره)`, days(2))
	s.fixed(`اليوم`, days(0))
	s.fixed(`غدا|بكره|الغد|غد`, days(1))
	s.date(`(?:بعد|خلال) (\d+|`+alternation(arNumbers)+`) (ايام|يوم|اسابيع|اسبوع|اشهر|شهور|شهر)`, func(m []string) (dateExpr, bool) {
		n, ok := number(m[1], arNumbers)
		if !ok {
			return dateExpr{}, false
		}
		switch m[2] {
		case "اسابيع", "اسبوع":
			return days(7 * n), true
		case "اشهر", "شهور", "شهر":
			return months(n), true
		}
		return days(n), true
	})
	s.date(`(?:بعد|خلال) (`+alternation(arDuals)+`)`, func(m []string) (dateExpr, bool) {
		return arDuals[m[1]], true
	})
	s.fixed(`الاسبوع `+arNext, days(7))
	s.fixed(`الشهر `+arNext, months(1))
	s.isoDates()
	s.date(`(\d{1,2}) (?:من )?(`+alternation(arMonths)+`)(?: (\d{4}))?`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[3]), arMonths[m[2]], atoi(m[1])), true
	})
	s.date(`(\d{1,2})[/.](\d{1,2})(?:[/.](\d{4}|\d{2}))?`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1])), true
	})
	s.date(`(?:يوم )?(`+alternation(arWeekdays)+`)(?: `+arNext+`)?`, func(m []string) (dateExpr, bool) {
		return weekday(arWeekdays[m[1]]), true
	})

	s.clock(`(\d{1,2})(?::(\d{2}))? ?(صباحا|صباح|ص|مساءا|مساء|م|ظهرا|عصرا|ليلا)`, func(m []string) (clockExpr, bool) {
		c := clockExpr{hour: atoi(m[1]), minute: atoi(m[2]), meridiem: pm}
		switch m[3] {
		case "صباحا", "صباح", "ص":
			c.meridiem = am
		}
		return c, true
	})
	s.clock(`(?:الساعه|في تمام) (\d{1,2})(?::(\d{2}))?`, func(m []string) (clockExpr, bool) {
		return clockExpr{hour: atoi(m[1]), minute: atoi(m[2]), bare: true}, true
	})
	s.twentyFourHour()

	s.qualifier(`الليله|هذا المساء`, qualifier{clock: core.Clock{Hour: 20}, pm: true, today: true})
	s.qualifier(`هذا الصباح`, qualifier{clock: core.Clock{Hour: 9}, today: true})
	s.qualifier(`بعد الظهر|بعد الظهيره`, qualifier{clock: core.Clock{Hour: 15}, pm: true})
	s.qualifier(`الظهر|ظهرا`, qualifier{clock: core.Clock{Hour: 12}, pm: true})
	s.qualifier(`العصر|عصرا`, qualifier{clock: core.Clock{Hour: 16}, pm: true})
	s.qualifier(`الصباح|صباحا|صباح`, qualifier{clock: core.Clock{Hour: 9}})
	s.qualifier(`المساء|مساءا|مساء`, qualifier{clock: core.Clock{Hour: 18}, pm: true})
	s.qualifier(`الليل|ليلا`, qualifier{clock: core.Clock{Hour: 20}, pm: true})
	return s
}
