package access

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

// Audit actions recorded for every successful mutation.
const (
	AuditInvitationIssued   = "invitation.issued"
	AuditInvitationRedeemed = "invitation.redeemed"
	AuditAccessGranted      = "access.granted"
	AuditAccessRevoked      = "access.revoked"
)

// Auditor records access changes. Failures are logged, never surfaced.
type Auditor interface {
	RecordAccess(ctx context.Context, action string, actor, subject core.Identity, details map[string]interface{}) error
}

// Gate decides whether an identity may use the pipeline and manages
// invitations. Admins are fixed at construction.
type Gate struct {
	store   Store
	admins  map[core.Identity]struct{}
	now     func() time.Time
	random  io.Reader
	auditor Auditor
	log     *logging.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithRandom overrides the token entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Gate) { g.random = r }
}

// WithAuditor records every successful mutation.
func WithAuditor(a Auditor) Option {
	return func(g *Gate) { g.auditor = a }
}

// NewGate creates a gate over store with the given admin set.
func NewGate(store Store, admins []core.Identity, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		admins: make(map[core.Identity]struct{}, len(admins)),
		now:    time.Now,
		log:    logging.WithField("component", "access"),
	}
	for _, id := range admins {
		if id.Valid() {
			g.admins[id] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admins returns the configured admin identities.
func (g *Gate) Admins() []core.Identity {
	out := make([]core.Identity, 0, len(g.admins))
	for id := range g.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsAdmin reports whether id is a configured admin.
func (g *Gate) IsAdmin(id core.Identity) bool {
	_, ok := g.admins[id]
	return ok
}

// Check returns the state of id. Unknown identities and store failures
// both yield StateUnauthorized.
func (g *Gate) Check(ctx context.Context, id core.Identity) core.AuthorizationState {
	if !id.Valid() {
		return core.StateUnauthorized
	}
	if g.IsAdmin(id) {
		return core.StateAdmin
	}
	state, err := g.store.GetState(ctx, id)
	if err != nil {
		g.log.WithField("identity", id).Warn("state lookup failed, denying: %v", err)
		return core.StateUnauthorized
	}
	if state != core.StateAuthorized {
		return core.StateUnauthorized
	}
	return state
}

// IssueInvitation creates a single-use token. A zero ttl never expires.
// The returned token is the only place the plaintext value appears.
func (g *Gate) IssueInvitation(ctx context.Context, issuer core.Identity, ttl time.Duration) (*core.InvitationToken, error) {
	if !g.IsAdmin(issuer) {
		return nil, core.Wrap(core.CodePermissionDenied, "issue invitation", errors.New("issuer is not an admin"))
	}
	if ttl < 0 {
		return nil, core.NewError(core.CodeInvalidInput, "invitation ttl must not be negative")
	}

	value, err := newTokenValue(g.random)
	if err != nil {
		return nil, core.Wrap(core.CodeInternal, "issue invitation", err)
	}

	now := g.now()
	tok := &core.InvitationToken{
		Token:     value,
		Digest:    Digest(value),
		Issuer:    issuer,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		tok.ExpiresAt = &exp
	}

	if err := g.store.PutToken(ctx, tok); err != nil {
		return nil, core.Wrap(core.CodeInternal, "store invitation", err)
	}

	details := map[string]interface{}{"digest": tok.Digest[:16]}
	if tok.ExpiresAt != nil {
		details["expires_at"] = tok.ExpiresAt.UTC().Format(time.RFC3339)
	}
	g.audit(ctx, AuditInvitationIssued, issuer, "", details)
	g.log.WithField("issuer", issuer).Info("invitation issued")

	return tok, nil
}

// Redeem consumes token and grants authorized state to redeemer.
// Admins and already-authorized identities get ErrAlreadyAuthorized and the
// token stays live.
func (g *Gate) Redeem(ctx context.Context, token string, redeemer core.Identity) (core.AuthorizationState, error) {
	if !redeemer.Valid() {
		return core.StateUnauthorized, core.NewError(core.CodeInvalidInput, "redeemer identity is empty")
	}
	if token == "" {
		return core.StateUnauthorized, core.NewError(core.CodeInvalidToken, "empty invitation token")
	}
	if g.IsAdmin(redeemer) {
		return core.StateAdmin, core.NewError(core.CodeAlreadyAuthorized, "redeemer is an admin")
	}

	tok, err := g.store.Redeem(ctx, Digest(token), redeemer, g.now())
	switch {
	case err == nil:
	case errors.Is(err, core.ErrInvalidToken):
		return core.StateUnauthorized, core.Wrap(core.CodeInvalidToken, "redeem invitation", err)
	case errors.Is(err, core.ErrAlreadyAuthorized):
		return core.StateAuthorized, core.Wrap(core.CodeAlreadyAuthorized, "redeem invitation", err)
	case ctx.Err() != nil:
		return core.StateUnauthorized, ctx.Err()
	default:
		return core.StateUnauthorized, core.Wrap(core.CodeInternal, "redeem invitation", err)
	}

	g.audit(ctx, AuditInvitationRedeemed, redeemer, tok.Issuer, map[string]interface{}{
		"digest": tok.Digest[:16],
	})
	g.log.WithField("identity", redeemer).Info("invitation redeemed")

	return core.StateAuthorized, nil
}

// Grant gives target authorized state directly. Only admins may grant.
func (g *Gate) Grant(ctx context.Context, target, actor core.Identity) error {
	if !g.IsAdmin(actor) {
		return core.Wrap(core.CodePermissionDenied, "grant access", errors.New("actor is not an admin"))
	}
	if !target.Valid() {
		return core.NewError(core.CodeInvalidInput, "target identity is empty")
	}
	if g.IsAdmin(target) {
		return core.NewError(core.CodeAlreadyAuthorized, "target is an admin")
	}
	if err := g.store.PutState(ctx, target, core.StateAuthorized, g.now()); err != nil {
		return core.Wrap(core.CodeInternal, "grant access", err)
	}

	g.audit(ctx, AuditAccessGranted, actor, target, nil)
	g.log.WithFields(map[string]interface{}{"identity": target, "actor": actor}).Info("access granted")
	return nil
}

// Revoke returns target to unauthorized. Only admins may revoke and admins
// cannot be revoked.
func (g *Gate) Revoke(ctx context.Context, target, actor core.Identity) error {
	if !g.IsAdmin(actor) {
		return core.Wrap(core.CodePermissionDenied, "revoke access", errors.New("actor is not an admin"))
	}
	if g.IsAdmin(target) {
		return core.Wrap(core.CodePermissionDenied, "revoke access", errors.New("admins cannot be revoked"))
	}
	if !target.Valid() {
		return core.NewError(core.CodeInvalidInput, "target identity is empty")
	}
	if err := g.store.PutState(ctx, target, core.StateUnauthorized, g.now()); err != nil {
		return core.Wrap(core.CodeInternal, "revoke access", err)
	}

	g.audit(ctx, AuditAccessRevoked, actor, target, nil)
	g.log.WithFields(map[string]interface{}{"identity": target, "actor": actor}).Info("access revoked")
	return nil
}

// ListAuthorized returns the non-admin grants. Only admins may list.
func (g *Gate) ListAuthorized(ctx context.Context, actor core.Identity) ([]core.Grant, error) {
	if !g.IsAdmin(actor) {
		return nil, core.Wrap(core.CodePermissionDenied, "list users", errors.New("actor is not an admin"))
	}
	grants, err := g.store.ListAuthorized(ctx)
	if err != nil {
		return nil, core.Wrap(core.CodeInternal, "list users", err)
	}
	return grants, nil
}

// ListPending returns the live invitations. Only admins may list.
func (g *Gate) ListPending(ctx context.Context, actor core.Identity) ([]*core.InvitationToken, error) {
	if !g.IsAdmin(actor) {
		return nil, core.Wrap(core.CodePermissionDenied, "list invitations", errors.New("actor is not an admin"))
	}
	pending, err := g.store.ListPending(ctx, g.now())
	if err != nil {
		return nil, core.Wrap(core.CodeInternal, "list invitations", err)
	}
	return pending, nil
}

// PurgeExpired drops expired invitations from the store.
func (g *Gate) PurgeExpired(ctx context.Context) (int, error) {
	n, err := g.store.PurgeExpired(ctx, g.now())
	if err != nil {
		return 0, core.Wrap(core.CodeInternal, "purge invitations", err)
	}
	if n > 0 {
		g.log.Info("purged %d expired invitations", n)
	}
	return n, nil
}

func (g *Gate) audit(ctx context.Context, action string, actor, subject core.Identity, details map[string]interface{}) {
	if g.auditor == nil {
		return
	}
	if err := g.auditor.RecordAccess(context.WithoutCancel(ctx), action, actor, subject, details); err != nil {
		g.log.WithField("action", action).Warn("audit record failed: %v", err)
	}
}
