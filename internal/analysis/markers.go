package analysis

import (
	"regexp"
	"strings"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/textnorm"
)

// Inline markers are safe to look for anywhere in a line. Patterns are in
// folded spelling (see textnorm.Fold).
var inlineMarkers = []struct {
	priority core.Priority
	re       *regexp.Regexp
}{
	{core.PriorityHigh, textnorm.Word(`[\[(](?:high|haute|elevee|عاليه)[\])]|high[- ]priority|priority ?:? ?high|top priority|urgent|asap|critical|` +
		`priorite ?:? ?(?:haute|elevee)|haute priorite|tres important|` +
		`(?:ال)?اولويه ?:? ?(?:عاليه|قصوى|مرتفعه)|عاجل|ضروري`)},
	{core.PriorityMedium, textnorm.Word(`[\[(](?:medium|moyenne|متوسطه)[\])]|medium[- ]priority|normal priority|priority ?:? ?(?:medium|normal)|` +
		`priorite ?:? ?(?:moyenne|normale)|` +
		`(?:ال)?اولويه ?:? ?(?:متوسطه|عاديه)`)},
	{core.PriorityLow, textnorm.Word(`[\[(](?:low|basse|faible|منخفضه)[\])]|low[- ]priority|priority ?:? ?low|not urgent|` +
		`priorite ?:? ?(?:basse|faible)|basse priorite|pas urgent|` +
		`(?:ال)?اولويه ?:? ?(?:منخفضه|ضعيفه)|غير عاجل`)},
}

// Values that mean a priority when they make up a whole field or segment.
var priorityWords = map[string]core.Priority{
	"high": core.PriorityHigh, "h": core.PriorityHigh, "urgent": core.PriorityHigh,
	"critical": core.PriorityHigh, "important": core.PriorityHigh, "!": core.PriorityHigh,
	"haute": core.PriorityHigh, "elevee": core.PriorityHigh, "haut": core.PriorityHigh,
	"عاليه": core.PriorityHigh, "مرتفعه": core.PriorityHigh, "قصوى": core.PriorityHigh, "عاجل": core.PriorityHigh,

	"medium": core.PriorityMedium, "m": core.PriorityMedium, "normal": core.PriorityMedium,
	"moderate": core.PriorityMedium, "moyenne": core.PriorityMedium, "normale": core.PriorityMedium,
	"متوسطه": core.PriorityMedium, "عاديه": core.PriorityMedium,

	"low": core.PriorityLow, "l": core.PriorityLow, "minor": core.PriorityLow,
	"basse": core.PriorityLow, "faible": core.PriorityLow,
	"منخفضه": core.PriorityLow, "ضعيفه": core.PriorityLow,
}

var priorityLabel = regexp.MustCompile(`^(?:priority|priorite|(?:ال)?اولويه) ?:? ?`)

// priorityValue reads a whole field or segment such as "High",
// "priorité : basse" or "أولوية عالية".
func priorityValue(s string) (core.Priority, bool) {
	f := strings.TrimSpace(textnorm.Fold(s))
	if p, ok := priorityWords[f]; ok {
		return p, true
	}
	f = strings.Trim(f, " .*_!")
	rest := priorityLabel.ReplaceAllString(f, "")
	if rest != f {
		if p, ok := priorityWords[rest]; ok {
			return p, true
		}
	}
	// "high priority", "priorité haute"
	f = strings.TrimSuffix(strings.TrimSuffix(f, " priority"), " priorite")
	if p, ok := priorityWords[f]; ok {
		return p, true
	}
	return "", false
}

// findPriority returns the first inline marker in text, by position.
func findPriority(text string) (core.Priority, bool) {
	folded := textnorm.Fold(text)
	best := -1
	var found core.Priority
	for _, m := range inlineMarkers {
		loc := m.re.FindStringSubmatchIndex(folded)
		if loc == nil {
			continue
		}
		if best < 0 || loc[2] < best {
			best = loc[2]
			found = m.priority
		}
	}
	return found, best >= 0
}

// Deadline labels inside item lines: "Deadline: Friday", "échéance : lundi".
var deadlineLabel = regexp.MustCompile(`^(?:deadline|due(?: date)?|due by|by|when|echeance|date limite|pour le|` +
	`(?:ال)?موعد(?: النهائي)?|قبل) ?: ?`)

// deadlineValue returns the phrase after a deadline label.
func deadlineValue(s string) (string, bool) {
	f := textnorm.Fold(strings.Trim(s, " *_"))
	loc := deadlineLabel.FindStringIndex(f)
	if loc == nil || !strings.Contains(f[:loc[1]], ":") {
		return "", false
	}
	// take the value from the original text so the phrase keeps its spelling
	if i := strings.IndexAny(s, ":："); i >= 0 {
		return strings.TrimSpace(s[i+1:]), true
	}
	return strings.TrimSpace(f[loc[1]:]), true
}
