// Package analysis turns the analysis service's free-form reply into typed
// action items.
//
// Replies are read by strategies in order: a JSON reader for the structure
// the prompt asks for, then a line reader for bullet lists and marked lines.
// A reply neither strategy recognises is Unstructured: no items, and the
// whole reply becomes the summary. Dates are never interpreted here; every
// deadline phrase goes to the deadline resolver.
package analysis

import (
	"strings"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/deadline"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

// DefaultMaxItems bounds the number of items taken from one reply.
const DefaultMaxItems = 20

// Kind tags how a reply was understood.
type Kind string

const (
	Recognized   Kind = "recognized"
	Unstructured Kind = "unstructured"
)

// Result is the parsed reply.
type Result struct {
	Kind      Kind              `json:"kind"`
	Summary   string            `json:"summary"`
	Items     []core.ActionItem `json:"items"`
	Topics    []string          `json:"topics,omitempty"`
	Truncated bool              `json:"truncated"`
	Strategy  string            `json:"strategy,omitempty"`
}

// candidate is an item as read from the reply, before validation.
type candidate struct {
	title    string
	priority core.Priority
	deadline string // phrase handed to the resolver
	excerpt  string
}

type extraction struct {
	summary    string
	candidates []candidate
	topics     []string
}

func (e *extraction) add(c candidate) {
	if strings.TrimSpace(c.title) != "" {
		e.candidates = append(e.candidates, c)
	}
}

type strategy interface {
	name() string
	extract(reply string) (*extraction, bool)
}

// Parser parses analysis replies. It holds no per-call state and is safe for
// concurrent use.
type Parser struct {
	resolver   *deadline.Resolver
	maxItems   int
	strategies []strategy
}

// Option configures a Parser
type Option func(*Parser)

// WithMaxItems sets the item cap; values below one use DefaultMaxItems.
func WithMaxItems(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxItems = n
		}
	}
}

// NewParser creates a parser that resolves deadlines with resolver.
func NewParser(resolver *deadline.Resolver, opts ...Option) *Parser {
	if resolver == nil {
		resolver = deadline.NewResolver()
	}
	p := &Parser{
		resolver:   resolver,
		maxItems:   DefaultMaxItems,
		strategies: []strategy{jsonStrategy{}, lineStrategy{}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxItems returns the item cap.
func (p *Parser) MaxItems() int {
	return p.maxItems
}

// Parse reads raw.Reply. It fails only when the reply is empty or white
// space; anything else yields a result, Unstructured at worst.
//
// Deadline phrases are resolved with an auto hint that prefers the language
// transcription detected, falling back to the caller's hint: the analysis
// service often answers in a different language than the voice note.
func (p *Parser) Parse(raw core.RawAnalysis, now time.Time) (*Result, error) {
	if strings.TrimSpace(raw.Reply) == "" {
		return nil, core.NewError(core.CodeAnalysisParse, "analysis reply is empty")
	}

	for _, s := range p.strategies {
		ex, ok := s.extract(raw.Reply)
		if !ok {
			continue
		}
		res := p.build(ex, preferredLanguage(raw), now)
		res.Strategy = s.name()
		logging.WithFields(map[string]interface{}{
			"strategy":  res.Strategy,
			"items":     len(res.Items),
			"truncated": res.Truncated,
		}).Debug("parsed analysis reply")
		return res, nil
	}

	logging.WithField("length", len(raw.Reply)).Debug("analysis reply has no recognisable items")
	return &Result{
		Kind:    Unstructured,
		Summary: raw.Reply,
		Items:   []core.ActionItem{},
	}, nil
}

func (p *Parser) build(ex *extraction, preferred core.Language, now time.Time) *Result {
	res := &Result{
		Kind:    Recognized,
		Summary: strings.TrimSpace(ex.summary),
		Items:   make([]core.ActionItem, 0, min(len(ex.candidates), p.maxItems)),
		Topics:  ex.topics,
	}

	for _, c := range ex.candidates {
		if len(res.Items) == p.maxItems {
			res.Truncated = true
			break
		}
		priority := c.priority
		if priority == "" {
			priority = core.PriorityMedium
		}
		res.Items = append(res.Items, core.ActionItem{
			Title:         strings.TrimSpace(c.title),
			Priority:      priority,
			Deadline:      p.resolver.ResolvePreferring(c.deadline, core.LangAuto, preferred, now),
			SourceExcerpt: strings.TrimSpace(c.excerpt),
		})
	}
	return res
}

func preferredLanguage(raw core.RawAnalysis) core.Language {
	if raw.Detected != "" && raw.Detected != core.LangAuto {
		return raw.Detected
	}
	return raw.Language
}
