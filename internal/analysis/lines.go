package analysis

import (
	"regexp"
	"strings"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/textnorm"
)

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionActions
	sectionTopics
)

var (
	bulletRe    = regexp.MustCompile(`^(?:[-*•‣◦▪+]|\d{1,3}[.)]|[٠-٩]{1,3}[.)]|\[[ xX]?\])\s+(?:\[[ xX]?\]\s+)?`)
	taskLabelRe = regexp.MustCompile(`(?i)^(?:todo|to do|action item|action|task|t[âa]che|[àa] faire|مهمة|المهمة|إجراء)\s*:\s*`)
	pieceRe     = regexp.MustCompile(`[(\[]([^)\]]*)[)\]]|\s+[-–—|]\s+|\s*;\s+`)

	// matched against folded lines; a header is a keyword followed by a
	// colon or the end of the line
	headerRes = []struct {
		section section
		re      *regexp.Regexp
	}{
		{sectionSummary, regexp.MustCompile(`^(?:#+ ?)?\**(?:summary|overview|resume|synthese|ملخص|الملخص)\**\s*(?::|$)`)},
		{sectionActions, regexp.MustCompile(`^(?:#+ ?)?\**(?:action items?|actions?|tasks?|to ?dos?|next steps|taches|actions a mener|a faire|المهام|مهام|الاجراءات|اجراءات|نقاط العمل)\**\s*(?::|$)`)},
		{sectionTopics, regexp.MustCompile(`^(?:#+ ?)?\**(?:topics|key topics|themes|sujets|المواضيع|مواضيع|المواضيع الرئيسيه)\**\s*(?::|$)`)},
	}
)

// lineStrategy reads replies written as bullet lists, numbered lists or
// "Action items:" sections. A line outside any section is an item when it is
// bulleted, starts with a task label, or carries a priority marker.
type lineStrategy struct{}

func (lineStrategy) name() string { return "lines" }

func (lineStrategy) extract(reply string) (*extraction, bool) {
	ex := &extraction{}
	var summary []string
	current := sectionNone

	for _, line := range strings.Split(reply, "\n") {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}

		if sec, rest, ok := header(raw); ok {
			current = sec
			if rest == "" {
				continue
			}
			raw = rest
		}

		body := bulletRe.ReplaceAllString(raw, "")
		bulleted := body != raw
		labelled := taskLabelRe.MatchString(body)
		body = taskLabelRe.ReplaceAllString(body, "")

		switch current {
		case sectionTopics:
			ex.topics = append(ex.topics, splitTopics(body)...)
		case sectionSummary:
			summary = append(summary, body)
		case sectionActions:
			ex.add(lineCandidate(body, raw))
		default:
			if _, marked := findPriority(body); bulleted || labelled || marked {
				ex.add(lineCandidate(body, raw))
			} else {
				summary = append(summary, raw)
			}
		}
	}

	if len(ex.candidates) == 0 {
		return nil, false
	}
	ex.summary = strings.Join(summary, "\n")
	return ex, true
}

// header reports whether line opens a section, with any text after the colon.
func header(line string) (section, string, bool) {
	folded := textnorm.Fold(line)
	for _, h := range headerRes {
		if h.re.MatchString(folded) {
			rest := ""
			if i := strings.IndexAny(line, ":："); i >= 0 {
				rest = strings.TrimSpace(strings.Trim(line[i+1:], "* "))
			}
			return h.section, rest, true
		}
	}
	return sectionNone, "", false
}

func splitTopics(s string) []string {
	var topics []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '،' }) {
		if t = strings.Trim(strings.TrimSpace(t), "*_."); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

type piece struct {
	raw     string
	inner   string
	sep     bool
	bracket bool
	drop    bool
}

// lineCandidate splits an item line into its title, priority and deadline.
// Bracketed or dash-separated annotations such as "(high)", "- priority:
// low" or "[deadline: Friday]" are taken out of the title.
func lineCandidate(body, excerpt string) candidate {
	c := candidate{excerpt: excerpt}
	pieces := splitPieces(body)

	var deadlines []string
	for i := range pieces {
		p := &pieces[i]
		if p.sep {
			continue
		}
		parts := []string{p.raw}
		if p.bracket {
			parts = strings.FieldsFunc(p.inner, func(r rune) bool { return r == ',' || r == ';' })
		}

		annotations := 0
		for _, part := range parts {
			if pr, ok := priorityValue(part); ok {
				c.setPriority(pr)
				annotations++
				continue
			}
			if d, ok := deadlineValue(part); ok {
				deadlines = append(deadlines, d)
				annotations++
				continue
			}
			if pr, ok := findPriority(part); ok {
				c.setPriority(pr)
				if isOnlyMarker(part) {
					annotations++
				}
			}
		}
		p.drop = len(parts) > 0 && annotations == len(parts)
	}

	c.title = joinPieces(pieces)
	if len(deadlines) > 0 {
		c.deadline = strings.Join(deadlines, " ")
	} else {
		c.deadline = c.title
	}
	return c
}

// isOnlyMarker reports whether s is nothing but an inline priority marker.
func isOnlyMarker(s string) bool {
	f := textnorm.Fold(s)
	for _, m := range inlineMarkers {
		if loc := m.re.FindStringSubmatchIndex(f); loc != nil && loc[2] == 0 && loc[3] == len(f) {
			return true
		}
	}
	return false
}

func splitPieces(s string) []piece {
	var pieces []piece
	last := 0
	for _, loc := range pieceRe.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			pieces = append(pieces, piece{raw: s[last:loc[0]]})
		}
		if loc[2] >= 0 {
			pieces = append(pieces, piece{raw: s[loc[0]:loc[1]], inner: s[loc[2]:loc[3]], bracket: true})
		} else {
			pieces = append(pieces, piece{raw: s[loc[0]:loc[1]], sep: true})
		}
		last = loc[1]
	}
	if last < len(s) {
		pieces = append(pieces, piece{raw: s[last:]})
	}
	return pieces
}

// joinPieces rebuilds the title from the kept pieces. A separator survives
// only between two kept pieces.
func joinPieces(pieces []piece) string {
	var b strings.Builder
	pendingSep := ""
	wrote := false
	for _, p := range pieces {
		switch {
		case p.sep:
			if wrote {
				pendingSep = p.raw
			}
		case p.drop:
			pendingSep = ""
		default:
			if strings.TrimSpace(p.raw) == "" {
				continue
			}
			b.WriteString(pendingSep)
			b.WriteString(p.raw)
			pendingSep = ""
			wrote = true
		}
	}
	title := strings.Join(strings.Fields(b.String()), " ")
	return strings.Trim(title, " -–—|:;,*_")
}

func (c *candidate) setPriority(p core.Priority) {
	if c.priority == "" {
		c.priority = p
	}
}
