// Package core defines the fundamental types shared by the voice-note pipeline
// and the access gate.
package core

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// -----------------------------------------------------------------------------
// IDENTITY - who is asking
// -----------------------------------------------------------------------------

// Identity is the opaque external user identifier issued by the messaging
// platform. Numeric ids are carried in their decimal form.
type Identity string

// Valid reports whether the identity is usable as an authorization key.
func (id Identity) Valid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// AuthorizationState is the access level of an identity.
type AuthorizationState string

const (
	StateUnauthorized AuthorizationState = "unauthorized"
	StateAuthorized   AuthorizationState = "authorized"
	StateAdmin        AuthorizationState = "admin"
)

// CanUsePipeline reports whether the state admits voice requests.
func (s AuthorizationState) CanUsePipeline() bool {
	return s == StateAuthorized || s == StateAdmin
}

// Grant is a persisted authorization record.
type Grant struct {
	Identity  Identity           `json:"identity"`
	State     AuthorizationState `json:"state"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// INVITATION - single-use credential
// -----------------------------------------------------------------------------

// InvitationToken is a single-use credential that grants authorized access
// when redeemed. Token holds the plaintext value and is only populated on the
// token returned by issuance; stores key tokens by Digest.
type InvitationToken struct {
	Token      string     `json:"token,omitempty"`
	Digest     string     `json:"-"`
	Issuer     Identity   `json:"issuer"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RedeemedBy *Identity  `json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
}

// Live reports whether the token can still be redeemed at now.
func (t *InvitationToken) Live(now time.Time) bool {
	if t == nil || t.RedeemedBy != nil {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// -----------------------------------------------------------------------------
// LANGUAGE
// -----------------------------------------------------------------------------

// Language is a supported language code, or LangAuto.
type Language string

const (
	LangAuto    Language = "auto"
	LangArabic  Language = "ar"
	LangEnglish Language = "en"
	LangFrench  Language = "fr"
)

// SupportedLanguages lists the concrete languages, in default tie-break order.
var SupportedLanguages = []Language{LangEnglish, LangArabic, LangFrench}

// transcription services report detected languages by English name
var languageNames = map[string]Language{
	"english": LangEnglish,
	"arabic":  LangArabic,
	"french":  LangFrench,
}

// ParseLanguage normalises a language hint. Empty and "auto" yield LangAuto.
// BCP 47 tags ("fr-CA", "ar-EG") and English language names are accepted.
// Unsupported languages yield LangAuto and false.
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(LangAuto) {
		return LangAuto, true
	}
	if lang, ok := languageNames[s]; ok {
		return lang, true
	}
	tag, err := language.Parse(s)
	if err != nil {
		return LangAuto, false
	}
	base, _ := tag.Base()
	switch lang := Language(base.String()); lang {
	case LangArabic, LangEnglish, LangFrench:
		return lang, true
	}
	return LangAuto, false
}

// Tag returns the BCP 47 tag for the language. LangAuto maps to English.
func (l Language) Tag() language.Tag {
	switch l {
	case LangArabic:
		return language.Arabic
	case LangFrench:
		return language.French
	default:
		return language.English
	}
}

// -----------------------------------------------------------------------------
// ACTION ITEMS
// -----------------------------------------------------------------------------

// Priority of an action item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Clock is a time of day.
type Clock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Deadline is a resolved deadline: either a concrete local date with an
// optional time of day, or none. Phrase keeps the text it was resolved from.
type Deadline struct {
	Date     time.Time `json:"date,omitempty"` // midnight, reference location
	Time     *Clock    `json:"time,omitempty"`
	Phrase   string    `json:"phrase,omitempty"`
	Language Language  `json:"language,omitempty"`
}

// NoDeadline returns an unresolved deadline that keeps phrase.
func NoDeadline(phrase string) Deadline {
	return Deadline{Phrase: phrase}
}

// ConcreteDeadline returns a resolved deadline on the date of day.
func ConcreteDeadline(day time.Time, clock *Clock, phrase string, lang Language) Deadline {
	return Deadline{
		Date:     time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()),
		Time:     clock,
		Phrase:   phrase,
		Language: lang,
	}
}

// IsNone reports whether the deadline is unresolved.
func (d Deadline) IsNone() bool {
	return d.Date.IsZero()
}

// HasTime reports whether a time of day is known.
func (d Deadline) HasTime() bool {
	return d.Time != nil
}

// At returns the deadline instant; date-only deadlines return midnight.
func (d Deadline) At() time.Time {
	if d.IsNone() || d.Time == nil {
		return d.Date
	}
	return time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(), d.Time.Hour, d.Time.Minute, 0, 0, d.Date.Location())
}

// Equal compares two deadlines by value, ignoring the phrase.
func (d Deadline) Equal(o Deadline) bool {
	if d.IsNone() || o.IsNone() {
		return d.IsNone() == o.IsNone()
	}
	if d.HasTime() != o.HasTime() {
		return false
	}
	return d.At().Equal(o.At())
}

func (d Deadline) String() string {
	if d.IsNone() {
		return "none"
	}
	if d.Time == nil {
		return d.Date.Format("2006-01-02")
	}
	return d.Date.Format("2006-01-02") + " " + d.Time.String()
}

// ActionItem is a single extracted task. Values are never mutated after the
// parser creates them.
type ActionItem struct {
	Title         string   `json:"title"`
	Priority      Priority `json:"priority"`
	Deadline      Deadline `json:"deadline"`
	SourceExcerpt string   `json:"source_excerpt"`
}

// RawAnalysis is the analysis service reply together with its inputs.
type RawAnalysis struct {
	Reply      string   // free-form reply from the analysis service
	Transcript string   // transcript the reply was produced from
	Language   Language // hint declared by the caller
	Detected   Language // language reported by the transcription stage
}
