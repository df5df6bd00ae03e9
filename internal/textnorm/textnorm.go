// Package textnorm folds multilingual text into a canonical form for
// keyword and pattern matching.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letter variants that transcripts spell inconsistently
var foldArabic = runes.Map(func(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩': // Arabic-Indic digits
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹': // Extended (Persian) digits
		return '0' + (r - '۰')
	case r == 'ى': // alef maksura
		return 'ي'
	case r == 'ة': // teh marbuta
		return 'ه'
	case r == '،': // Arabic comma
		return ','
	case r == '’' || r == '‘':
		return '\''
	}
	return r
})

var tatweel = runes.Predicate(func(r rune) bool { return r == 'ـ' })

var lower = cases.Lower(language.Und)

// Fold lower-cases s, strips diacritics (French accents, Arabic harakat and
// hamza carriers), maps Arabic-Indic digits to ASCII and collapses runs of
// white space. Pattern tables are written in folded spelling.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(tatweel), foldArabic, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(lower.String(out)), " ")
}

// Word compiles pattern so that it only matches whole words. Go's \b is
// ASCII only, which does not work for Arabic. Group 1 is the matched phrase
// and the pattern's own groups follow it.
func Word(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\pL\pN])(` + pattern + `)(?:[^\pL\pN]|$)`)
}
