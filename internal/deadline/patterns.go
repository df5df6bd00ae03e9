package deadline

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/textnorm"
)

// PatternSet recognises deadline phrases written in one language. Rules
// run in order and every match is blanked out of the working text, so
// longer phrases ("day after tomorrow") must come before the phrases they
// contain ("tomorrow").
type PatternSet struct {
	Lang       core.Language
	dates      []dateRule
	clocks     []clockRule
	qualifiers []qualifierRule
	leading    []qualifierRule // matched before clocks
}

type dateRule struct {
	re *regexp.Regexp
	fn func(m []string) (dateExpr, bool)
}

type clockRule struct {
	re *regexp.Regexp
	fn func(m []string) (clockExpr, bool)
}

type qualifierRule struct {
	re *regexp.Regexp
	q  qualifier
}

func (s *PatternSet) date(pattern string, fn func(m []string) (dateExpr, bool)) {
	s.dates = append(s.dates, dateRule{re: textnorm.Word(pattern), fn: fn})
}

func (s *PatternSet) fixed(pattern string, e dateExpr) {
	s.date(pattern, func([]string) (dateExpr, bool) { return e, true })
}

func (s *PatternSet) clock(pattern string, fn func(m []string) (clockExpr, bool)) {
	s.clocks = append(s.clocks, clockRule{re: textnorm.Word(pattern), fn: fn})
}

func (s *PatternSet) qualifier(pattern string, q qualifier) {
	s.qualifiers = append(s.qualifiers, qualifierRule{re: textnorm.Word(pattern), q: q})
}

// leadingQualifier registers a qualifier whose phrase contains a clock word
// ("apres-midi" contains "midi"); it is blanked before clock rules run.
func (s *PatternSet) leadingQualifier(pattern string, q qualifier) {
	s.leading = append(s.leading, qualifierRule{re: textnorm.Word(pattern), q: q})
}

// reject registers a phrase the set recognises but cannot place on a
// calendar day, such as a duration in hours. A match makes the whole
// phrase unresolvable instead of letting a clock rule misread it.
func (s *PatternSet) reject(pattern string) {
	s.date(pattern, func([]string) (dateExpr, bool) { return dateExpr{}, false })
}

// parse collects every date, clock and qualifier the set recognises in a
// normalised phrase.
func (s *PatternSet) parse(text string) parsed {
	var p parsed
	work := text

	for _, r := range s.dates {
		scan(r.re, &work, func(m []string) {
			if e, ok := r.fn(m); ok {
				p.dates = append(p.dates, e)
			} else {
				p.invalid = true
			}
		})
	}
	for _, r := range s.leading {
		scan(r.re, &work, func([]string) {
			p.qualifiers = append(p.qualifiers, r.q)
		})
	}
	for _, r := range s.clocks {
		scan(r.re, &work, func(m []string) {
			if c, ok := r.fn(m); ok {
				p.clocks = append(p.clocks, c)
			} else {
				p.invalid = true
			}
		})
	}
	for _, r := range s.qualifiers {
		scan(r.re, &work, func([]string) {
			p.qualifiers = append(p.qualifiers, r.q)
		})
	}
	return p
}

// scan calls fn for each match of re and replaces the matched phrase with
// spaces so later rules cannot match inside it.
func scan(re *regexp.Regexp, work *string, fn func(m []string)) {
	for {
		loc := re.FindStringSubmatchIndex(*work)
		if loc == nil {
			return
		}
		m := make([]string, 0, len(loc)/2-1)
		for i := 2; i < len(loc); i += 2 {
			if loc[i] < 0 {
				m = append(m, "")
				continue
			}
			m = append(m, (*work)[loc[i]:loc[i+1]])
		}
		fn(m)
		*work = (*work)[:loc[2]] + strings.Repeat(" ", loc[3]-loc[2]) + (*work)[loc[3]:]
	}
}

// alternation builds a regexp alternation of the keys, longest first.
func alternation[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return strings.Join(keys, "|")
}

func number(s string, words map[string]int) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	n, ok := words[s]
	return n, ok
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// shared by every language
func (s *PatternSet) isoDates() {
	s.date(`(\d{4})-(\d{1,2})-(\d{1,2})`, func(m []string) (dateExpr, bool) {
		return date(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])), true
	})
}

func (s *PatternSet) twentyFourHour() {
	s.clock(`(\d{1,2}):(\d{2})`, func(m []string) (clockExpr, bool) {
		return clockExpr{hour: atoi(m[1]), minute: atoi(m[2])}, true
	})
}

// -----------------------------------------------------------------------------
// REGISTRY
// -----------------------------------------------------------------------------

// Registry maps languages to their pattern sets.
type Registry struct {
	mu   sync.RWMutex
	sets map[core.Language]*PatternSet
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sets: make(map[core.Language]*PatternSet)}
}

// DefaultRegistry returns a registry with English, Arabic and French.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(English())
	r.Register(Arabic())
	r.Register(French())
	return r
}

// Register adds or replaces the pattern set for set.Lang.
func (r *Registry) Register(set *PatternSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[set.Lang] = set
}

// Lookup returns the pattern set for lang.
func (r *Registry) Lookup(lang core.Language) (*PatternSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[lang]
	return set, ok
}

// order returns the languages to try for hint. A concrete hint selects only
// that language; auto tries preferred first, then English, then the rest.
func (r *Registry) order(hint, preferred core.Language) []core.Language {
	if hint != core.LangAuto {
		if _, ok := r.Lookup(hint); ok {
			return []core.Language{hint}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Language
	seen := make(map[core.Language]bool)
	add := func(l core.Language) {
		if _, ok := r.sets[l]; ok && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	add(preferred)
	for _, l := range core.SupportedLanguages {
		add(l)
	}
	var extra []core.Language
	for l := range r.sets {
		if !seen[l] {
			extra = append(extra, l)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, l := range extra {
		add(l)
	}
	return out
}
