// Package pipeline runs a voice note through the access gate, transcription,
// analysis, parsing and calendar link building, and exposes the invitation
// operations of the gate to the transport.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/egcoder/telegram-ai-bot/internal/access"
	"github.com/egcoder/telegram-ai-bot/internal/analysis"
	"github.com/egcoder/telegram-ai-bot/internal/calendar"
	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
	"github.com/egcoder/telegram-ai-bot/internal/metrics"
)

// Transcriber turns audio into text and reports the detected language.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, hint core.Language) (string, core.Language, error)
}

// Analyzer produces the free-form analysis reply for a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (string, error)
}

// LinkBuilder builds the calendar link for an item.
type LinkBuilder interface {
	Build(item core.ActionItem, now time.Time) (*calendar.Link, error)
}

// DefaultMaxAudioBytes matches the transcription service's upload limit.
const DefaultMaxAudioBytes = 25 << 20

// VoiceRequest is one voice note to process. When Audio is nil the note is
// read from Body, and only after the identity passes the gate.
type VoiceRequest struct {
	Identity core.Identity
	Audio    []byte
	Body     io.Reader
	Language core.Language // hint; empty means auto
}

// Item is an action item with its calendar link. A failed link leaves Link
// nil and sets Flagged and LinkError; the item is still returned.
type Item struct {
	core.ActionItem
	Link       *calendar.Link    `json:"calendar_link,omitempty"`
	LinkError  string            `json:"link_error,omitempty"`
	Flagged    bool              `json:"flagged,omitempty"`
	Pushed     map[string]string `json:"pushed,omitempty"`      // sink -> event link
	PushErrors map[string]string `json:"push_errors,omitempty"` // sink -> error
}

// Result is the outcome of a voice request.
type Result struct {
	RequestID  string        `json:"request_id"`
	Kind       analysis.Kind `json:"kind"`
	Summary    string        `json:"summary"`
	Items      []Item        `json:"items"`
	Topics     []string      `json:"topics,omitempty"`
	Truncated  bool          `json:"truncated"`
	Language   core.Language `json:"language"`
	Transcript string        `json:"transcript"`
}

// Flagged counts the items whose link or push failed.
func (r *Result) Flagged() int {
	n := 0
	for _, it := range r.Items {
		if it.Flagged {
			n++
		}
	}
	return n
}

// Invitation is an issued invitation as returned to the issuer.
type Invitation struct {
	Token     string     `json:"token"`
	Link      string     `json:"link,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Orchestrator wires the stages together. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	gate        *access.Gate
	transcriber Transcriber
	analyzer    Analyzer
	parser      *analysis.Parser
	links       LinkBuilder
	sinks       []EventSink
	progress    ProgressReporter
	metrics     *metrics.Metrics

	now         func() time.Time
	newID       func() string
	maxAudio    int64
	timeout     time.Duration
	botUsername string
	inviteTTL   time.Duration
	log         *logging.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParser replaces the default analysis parser.
func WithParser(p *analysis.Parser) Option {
	return func(o *Orchestrator) { o.parser = p }
}

// WithLinkBuilder replaces the default calendar link builder.
func WithLinkBuilder(b LinkBuilder) Option {
	return func(o *Orchestrator) { o.links = b }
}

// WithSinks pushes every linked item to each sink.
func WithSinks(sinks ...EventSink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

// WithProgress reports stage changes to r.
func WithProgress(r ProgressReporter) Option {
	return func(o *Orchestrator) { o.progress = r }
}

// WithMetrics records request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMaxAudioBytes bounds the accepted voice note size.
func WithMaxAudioBytes(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAudio = n
		}
	}
}

// WithRequestTimeout bounds the upstream part of a voice request.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithInvitations sets the bot username used for invite deep links and the
// ttl applied when an invite request does not name one.
func WithInvitations(botUsername string, defaultTTL time.Duration) Option {
	return func(o *Orchestrator) {
		o.botUsername = botUsername
		o.inviteTTL = defaultTTL
	}
}

// New creates an orchestrator.
func New(gate *access.Gate, transcriber Transcriber, analyzer Analyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gate:        gate,
		transcriber: transcriber,
		analyzer:    analyzer,
		now:         time.Now,
		newID:       uuid.NewString,
		maxAudio:    DefaultMaxAudioBytes,
		log:         logging.WithField("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.parser == nil {
		o.parser = analysis.NewParser(nil)
	}
	if o.links == nil {
		o.links = calendar.DefaultBuilder()
	}
	if o.progress == nil {
		o.progress = ProgressFunc(func(ProgressEvent) {})
	}
	return o
}

// HandleVoiceRequest processes one voice note. Unauthorized callers are
// rejected before any collaborator is called.
func (o *Orchestrator) HandleVoiceRequest(ctx context.Context, req VoiceRequest) (res *Result, err error) {
	id := o.newID()
	log := o.log.WithFields(map[string]interface{}{"request_id": id, "identity": req.Identity})
	report := func(stage Stage, detail string) {
		o.progress.Report(ProgressEvent{RequestID: id, Identity: req.Identity, Stage: stage, Detail: detail, Time: o.now()})
	}
	started := o.now()
	defer func() {
		o.metrics.Request("voice", outcome(err))
		if err != nil {
			o.progress.Report(ProgressEvent{
				RequestID: id, Identity: req.Identity, Stage: StageFailed,
				Code: core.CodeOf(err), Time: o.now(),
			})
			log.Warn("voice request failed: %v", err)
			return
		}
		log.WithFields(map[string]interface{}{
			"items":    len(res.Items),
			"flagged":  res.Flagged(),
			"duration": o.now().Sub(started).String(),
		}).Info("voice request completed")
	}()

	report(StageAuthorizing, "")
	if state := o.gate.Check(ctx, req.Identity); !state.CanUsePipeline() {
		return nil, core.NewError(core.CodeUnauthorized, "identity is not authorized")
	}
	if req.Audio == nil && req.Body != nil {
		// one byte past the limit so an oversize note is reported below
		if req.Audio, err = io.ReadAll(io.LimitReader(req.Body, o.maxAudio+1)); err != nil {
			return nil, core.Wrap(core.CodeInvalidInput, "read voice note", err)
		}
	}
	if len(req.Audio) == 0 {
		return nil, core.NewError(core.CodeInvalidInput, "voice note is empty")
	}
	if int64(len(req.Audio)) > o.maxAudio {
		return nil, core.NewError(core.CodeInvalidInput, fmt.Sprintf("voice note exceeds %d bytes", o.maxAudio))
	}
	hint := req.Language
	if hint == "" {
		hint = core.LangAuto
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	report(StageTranscribing, "")
	stageStart := o.now()
	transcript, detected, err := o.transcriber.Transcribe(ctx, req.Audio, hint)
	o.metrics.Stage(string(StageTranscribing), o.now().Sub(stageStart))
	if err != nil {
		return nil, upstream(ctx, "transcription", err)
	}
	if transcript == "" {
		return nil, core.NewError(core.CodeInvalidInput, "voice note contains no speech")
	}

	report(StageAnalyzing, "")
	stageStart = o.now()
	reply, err := o.analyzer.Analyze(ctx, transcript)
	o.metrics.Stage(string(StageAnalyzing), o.now().Sub(stageStart))
	if err != nil {
		return nil, upstream(ctx, "analysis", err)
	}

	now := o.now()
	parsed, err := o.parser.Parse(core.RawAnalysis{
		Reply:      reply,
		Transcript: transcript,
		Language:   hint,
		Detected:   detected,
	}, now)
	if err != nil {
		return nil, err
	}
	if parsed.Truncated {
		o.metrics.Truncated()
	}

	report(StageScheduling, fmt.Sprintf("%d items", len(parsed.Items)))
	stageStart = o.now()
	items := o.schedule(ctx, parsed.Items, now)
	o.metrics.Stage(string(StageScheduling), o.now().Sub(stageStart))

	language := detected
	if language == "" || language == core.LangAuto {
		language = hint
	}
	res = &Result{
		RequestID:  id,
		Kind:       parsed.Kind,
		Summary:    parsed.Summary,
		Items:      items,
		Topics:     parsed.Topics,
		Truncated:  parsed.Truncated,
		Language:   language,
		Transcript: transcript,
	}
	report(StageCompleted, fmt.Sprintf("%d items", len(items)))
	return res, nil
}

// schedule builds the link for every item and pushes linked items to the
// sinks. Failures flag the item; no item is dropped.
func (o *Orchestrator) schedule(ctx context.Context, parsed []core.ActionItem, now time.Time) []Item {
	items := make([]Item, len(parsed))
	for i, ai := range parsed {
		items[i].ActionItem = ai
		link, err := o.buildLink(ai, now)
		if err != nil {
			items[i].Flagged = true
			items[i].LinkError = core.UserMessage(err, core.LangEnglish)
			o.log.WithField("title", ai.Title).Warn("calendar link failed: %v", err)
		} else {
			items[i].Link = link
		}
		o.metrics.Item(string(ai.Priority), err == nil)
	}
	o.push(ctx, items)
	return items
}

func (o *Orchestrator) buildLink(item core.ActionItem, now time.Time) (link *calendar.Link, err error) {
	defer func() {
		if r := recover(); r != nil {
			link = nil
			err = core.NewError(core.CodeLinkBuild, fmt.Sprintf("link builder panicked: %v", r))
		}
	}()
	return o.links.Build(item, now)
}

// HandleInviteRequest issues an invitation for issuer. A nil ttl uses the
// configured default; a zero ttl never expires.
func (o *Orchestrator) HandleInviteRequest(ctx context.Context, issuer core.Identity, ttl *time.Duration) (inv *Invitation, err error) {
	defer func() { o.metrics.Request("invite", outcome(err)) }()

	d := o.inviteTTL
	if ttl != nil {
		d = *ttl
	}
	tok, err := o.gate.IssueInvitation(ctx, issuer, d)
	if err != nil {
		return nil, err
	}
	o.metrics.AccessEvent(access.AuditInvitationIssued)

	inv = &Invitation{Token: tok.Token, ExpiresAt: tok.ExpiresAt}
	if o.botUsername != "" {
		inv.Link = access.InviteLink(o.botUsername, tok.Token)
	}
	return inv, nil
}

// HandleRedeemRequest redeems token for redeemer. token may also be a bot
// start payload such as "invite_<token>".
func (o *Orchestrator) HandleRedeemRequest(ctx context.Context, token string, redeemer core.Identity) (state core.AuthorizationState, err error) {
	defer func() { o.metrics.Request("redeem", outcome(err)) }()

	if t, ok := access.ParseStartPayload(token); ok {
		token = t
	}
	state, err = o.gate.Redeem(ctx, token, redeemer)
	if err == nil {
		o.metrics.AccessEvent(access.AuditInvitationRedeemed)
	}
	return state, err
}

// Gate returns the access gate.
func (o *Orchestrator) Gate() *access.Gate {
	return o.gate
}

func upstream(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return core.Wrap(core.CodeUpstreamUnavailable, stage+" cancelled", err)
	}
	return core.Wrap(core.CodeUpstreamUnavailable, stage+" failed", err)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(core.CodeOf(err))
}
