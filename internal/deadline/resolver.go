// Package deadline resolves natural-language deadline phrases in English,
// Arabic and French into concrete local dates with an optional time of day.
//
// Each language is a PatternSet in a Registry. Parsing a phrase produces
// date and clock expressions that do not depend on the reference time, so
// parses are memoised in an LRU cache and evaluated against now on every
// call. Identical (phrase, hint, now) always resolve identically.
package deadline

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/textnorm"
)

// DefaultCacheSize is the number of parsed phrases kept per resolver.
const DefaultCacheSize = 1024

type cacheKey struct {
	lang core.Language
	text string
}

// Resolver resolves deadline phrases. It is safe for concurrent use.
type Resolver struct {
	registry *Registry
	cache    *lru.Cache[cacheKey, parsed]
}

// Option configures a Resolver
type Option func(*Resolver)

// WithRegistry replaces the default language registry.
func WithRegistry(r *Registry) Option {
	return func(res *Resolver) { res.registry = r }
}

// WithCacheSize sets the parse cache size; zero or less disables caching.
func WithCacheSize(n int) Option {
	return func(res *Resolver) {
		res.cache = nil
		if n > 0 {
			res.cache, _ = lru.New[cacheKey, parsed](n)
		}
	}
}

// NewResolver creates a resolver with the default registry and cache.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{registry: DefaultRegistry()}
	r.cache, _ = lru.New[cacheKey, parsed](DefaultCacheSize)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves phrase in the hinted language. With core.LangAuto every
// registered language is tried, English first.
func (r *Resolver) Resolve(phrase string, hint core.Language, now time.Time) core.Deadline {
	return r.ResolvePreferring(phrase, hint, core.LangAuto, now)
}

// ResolvePreferring is Resolve where an auto hint tries preferred (usually
// the language detected by transcription) before English. The first
// language that resolves the phrase wins; phrases no language can resolve
// unambiguously yield core.NoDeadline.
func (r *Resolver) ResolvePreferring(phrase string, hint, preferred core.Language, now time.Time) core.Deadline {
	text := textnorm.Fold(phrase)
	if text == "" {
		return core.NoDeadline(strings.TrimSpace(phrase))
	}

	for _, lang := range r.registry.order(hint, preferred) {
		p := r.parse(lang, text)
		day, clock, out := p.resolve(now)
		if out == resolved {
			return core.ConcreteDeadline(day, clock, strings.TrimSpace(phrase), lang)
		}
	}
	return core.NoDeadline(strings.TrimSpace(phrase))
}

func (r *Resolver) parse(lang core.Language, text string) parsed {
	key := cacheKey{lang: lang, text: text}
	if r.cache != nil {
		if p, ok := r.cache.Get(key); ok {
			return p
		}
	}
	set, ok := r.registry.Lookup(lang)
	if !ok {
		return parsed{}
	}
	p := set.parse(text)
	if r.cache != nil {
		r.cache.Add(key, p)
	}
	return p
}

// CacheLen returns the number of cached parses.
func (r *Resolver) CacheLen() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}
