package access

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

const (
	admin   core.Identity = "1000"
	alice   core.Identity = "2001"
	bob     core.Identity = "2002"
	mallory core.Identity = "6666"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedAudit struct {
	action         string
	actor, subject core.Identity
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []recordedAudit
	err     error
}

func (a *fakeAuditor) RecordAccess(_ context.Context, action string, actor, subject core.Identity, _ map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, recordedAudit{action, actor, subject})
	return a.err
}

func newTestGate(t *testing.T, opts ...Option) (*Gate, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewGate(store, []core.Identity{admin}, opts...), store, clock
}

// ============================================================================
// Check
// ============================================================================

func TestGate_Check(t *testing.T) {
	gate, store, _ := newTestGate(t)
	ctx := context.Background()

	assert.Equal(t, core.StateAdmin, gate.Check(ctx, admin))
	assert.Equal(t, core.StateUnauthorized, gate.Check(ctx, alice), "never granted")
	assert.Equal(t, core.StateUnauthorized, gate.Check(ctx, ""), "empty identity")

	require.NoError(t, store.PutState(ctx, alice, core.StateAuthorized, time.Now()))
	assert.Equal(t, core.StateAuthorized, gate.Check(ctx, alice))
}

type failingStore struct {
	*MemoryStore
	err error
}

func (s failingStore) GetState(context.Context, core.Identity) (core.AuthorizationState, error) {
	return core.StateAuthorized, s.err
}

func (s failingStore) Redeem(context.Context, string, core.Identity, time.Time) (*core.InvitationToken, error) {
	return nil, s.err
}

func (s failingStore) PutState(context.Context, core.Identity, core.AuthorizationState, time.Time) error {
	return s.err
}

func TestGate_Check_FailsClosed(t *testing.T) {
	gate := NewGate(failingStore{NewMemoryStore(), errors.New("disk gone")}, []core.Identity{admin})

	assert.Equal(t, core.StateUnauthorized, gate.Check(context.Background(), alice))
	assert.Equal(t, core.StateAdmin, gate.Check(context.Background(), admin), "admins never touch the store")
}

// ============================================================================
// Issue
// ============================================================================

func TestGate_IssueInvitation(t *testing.T) {
	auditor := &fakeAuditor{}
	gate, store, clock := newTestGate(t, WithAuditor(auditor))
	ctx := context.Background()

	tok, err := gate.IssueInvitation(ctx, admin, 24*time.Hour)
	require.NoError(t, err)

	assert.Len(t, tok.Token, 43, "32 bytes base64url without padding")
	assert.Equal(t, Digest(tok.Token), tok.Digest)
	assert.Equal(t, admin, tok.Issuer)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, clock.Now().Add(24*time.Hour), *tok.ExpiresAt)

	stored, err := store.GetToken(ctx, tok.Digest)
	require.NoError(t, err)
	assert.Empty(t, stored.Token, "plaintext is not stored")
	assert.True(t, stored.Live(clock.Now()))

	require.Len(t, auditor.records, 1)
	assert.Equal(t, AuditInvitationIssued, auditor.records[0].action)
}

func TestGate_IssueInvitation_Unique(t *testing.T) {
	gate, _, _ := newTestGate(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := gate.IssueInvitation(context.Background(), admin, 0)
		require.NoError(t, err)
		require.False(t, seen[tok.Token])
		seen[tok.Token] = true
	}
}

func TestGate_IssueInvitation_Errors(t *testing.T) {
	gate, store, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, store.PutState(ctx, alice, core.StateAuthorized, time.Now()))

	_, err := gate.IssueInvitation(ctx, alice, time.Hour)
	assert.ErrorIs(t, err, core.ErrPermissionDenied, "authorized is not admin")

	_, err = gate.IssueInvitation(ctx, mallory, time.Hour)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	_, err = gate.IssueInvitation(ctx, admin, -time.Second)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestGate_IssueInvitation_DuplicateDigest(t *testing.T) {
	// a fixed entropy source produces the same token twice
	fixed := bytes.Repeat([]byte{7}, TokenBytes*2)
	gate, _, _ := newTestGate(t, WithRandom(bytes.NewReader(fixed)))

	_, err := gate.IssueInvitation(context.Background(), admin, 0)
	require.NoError(t, err)
	_, err = gate.IssueInvitation(context.Background(), admin, 0)
	assert.ErrorIs(t, err, core.ErrInternal)
}

// ============================================================================
// Redeem
// ============================================================================

func TestGate_Redeem(t *testing.T) {
	auditor := &fakeAuditor{}
	gate, _, _ := newTestGate(t, WithAuditor(auditor))
	ctx := context.Background()

	tok, err := gate.IssueInvitation(ctx, admin, time.Hour)
	require.NoError(t, err)

	state, err := gate.Redeem(ctx, tok.Token, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StateAuthorized, state)
	assert.Equal(t, core.StateAuthorized, gate.Check(ctx, alice))

	_, err = gate.Redeem(ctx, tok.Token, bob)
	assert.ErrorIs(t, err, core.ErrInvalidToken, "second redemption")
	assert.Equal(t, core.StateUnauthorized, gate.Check(ctx, bob))

	require.Len(t, auditor.records, 2)
	assert.Equal(t, AuditInvitationRedeemed, auditor.records[1].action)
	assert.Equal(t, alice, auditor.records[1].actor)
}

func TestGate_Redeem_InvalidTokens(t *testing.T) {
	gate, _, clock := newTestGate(t)
	ctx := context.Background()

	_, err := gate.Redeem(ctx, "", alice)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = gate.Redeem(ctx, "never-issued", alice)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	tok, err := gate.IssueInvitation(ctx, admin, time.Hour)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = gate.Redeem(ctx, tok.Token, alice)
	assert.ErrorIs(t, err, core.ErrInvalidToken, "expiry instant is exclusive")

	_, err = gate.Redeem(ctx, "x", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestGate_Redeem_NoExpiryAfterOneYear(t *testing.T) {
	gate, _, clock := newTestGate(t)
	ctx := context.Background()

	tok, err := gate.IssueInvitation(ctx, admin, 0)
	require.NoError(t, err)
	assert.Nil(t, tok.ExpiresAt)

	clock.Advance(365 * 24 * time.Hour)
	state, err := gate.Redeem(ctx, tok.Token, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StateAuthorized, state)
}

func TestGate_Redeem_AlreadyAuthorized(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()

	first, err := gate.IssueInvitation(ctx, admin, 0)
	require.NoError(t, err)
	_, err = gate.Redeem(ctx, first.Token, alice)
	require.NoError(t, err)

	second, err := gate.IssueInvitation(ctx, admin, 0)
	require.NoError(t, err)

	state, err := gate.Redeem(ctx, second.Token, alice)
	assert.ErrorIs(t, err, core.ErrAlreadyAuthorized)
	assert.Equal(t, core.StateAuthorized, state)

	state, err = gate.Redeem(ctx, second.Token, admin)
	assert.ErrorIs(t, err, core.ErrAlreadyAuthorized)
	assert.Equal(t, core.StateAdmin, state)

	// the token survived both attempts
	_, err = gate.Redeem(ctx, second.Token, bob)
	assert.NoError(t, err)
}

func TestGate_Redeem_Concurrent(t *testing.T) {
	for round := 0; round < 20; round++ {
		gate, _, _ := newTestGate(t)
		ctx := context.Background()

		tok, err := gate.IssueInvitation(ctx, admin, 0)
		require.NoError(t, err)

		redeemers := []core.Identity{alice, bob, "2003", "2004", "2005", "2006", "2007", "2008"}
		errs := make([]error, len(redeemers))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i, who := range redeemers {
			wg.Add(1)
			go func(i int, who core.Identity) {
				defer wg.Done()
				<-start
				_, errs[i] = gate.Redeem(ctx, tok.Token, who)
			}(i, who)
		}
		close(start)
		wg.Wait()

		granted := 0
		for i, err := range errs {
			if err == nil {
				granted++
				assert.Equal(t, core.StateAuthorized, gate.Check(ctx, redeemers[i]))
				continue
			}
			assert.ErrorIs(t, err, core.ErrInvalidToken)
			assert.Equal(t, core.StateUnauthorized, gate.Check(ctx, redeemers[i]))
		}
		require.Equal(t, 1, granted, "round %d", round)
	}
}

func TestGate_Redeem_Cancelled(t *testing.T) {
	gate, _, _ := newTestGate(t)

	tok, err := gate.IssueInvitation(context.Background(), admin, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gate.Redeem(ctx, tok.Token, alice)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, core.StateUnauthorized, gate.Check(context.Background(), alice))
	_, err = gate.Redeem(context.Background(), tok.Token, alice)
	assert.NoError(t, err, "cancelled attempt left the token live")
}

func TestGate_Redeem_StoreFailure(t *testing.T) {
	gate := NewGate(failingStore{NewMemoryStore(), errors.New("disk gone")}, []core.Identity{admin})

	_, err := gate.Redeem(context.Background(), "tok", alice)
	assert.ErrorIs(t, err, core.ErrInternal)
}

// ============================================================================
// Grant / Revoke
// ============================================================================

func TestGate_RevokeCycle(t *testing.T) {
	auditor := &fakeAuditor{}
	gate, _, _ := newTestGate(t, WithAuditor(auditor))
	ctx := context.Background()

	tok, err := gate.IssueInvitation(ctx, admin, 0)
	require.NoError(t, err)
	_, err = gate.Redeem(ctx, tok.Token, alice)
	require.NoError(t, err)

	require.NoError(t, gate.Revoke(ctx, alice, admin))
	assert.Equal(t, core.StateUnauthorized, gate.Check(ctx, alice))

	again, err := gate.IssueInvitation(ctx, admin, 0)
	require.NoError(t, err)
	_, err = gate.Redeem(ctx, again.Token, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StateAuthorized, gate.Check(ctx, alice))

	actions := make([]string, 0, len(auditor.records))
	for _, r := range auditor.records {
		actions = append(actions, r.action)
	}
	assert.Equal(t, []string{
		AuditInvitationIssued, AuditInvitationRedeemed, AuditAccessRevoked,
		AuditInvitationIssued, AuditInvitationRedeemed,
	}, actions)
}

func TestGate_Revoke_Errors(t *testing.T) {
	gate, store, _ := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, store.PutState(ctx, alice, core.StateAuthorized, time.Now()))

	assert.ErrorIs(t, gate.Revoke(ctx, bob, alice), core.ErrPermissionDenied, "authorized actor")
	assert.ErrorIs(t, gate.Revoke(ctx, admin, admin), core.ErrPermissionDenied, "admin target")
	assert.ErrorIs(t, gate.Revoke(ctx, "", admin), core.ErrInvalidInput)
	assert.NoError(t, gate.Revoke(ctx, mallory, admin), "revoking unknown identity is a no-op")
}

func TestGate_Grant(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()

	assert.ErrorIs(t, gate.Grant(ctx, bob, alice), core.ErrPermissionDenied)
	assert.ErrorIs(t, gate.Grant(ctx, admin, admin), core.ErrAlreadyAuthorized)

	require.NoError(t, gate.Grant(ctx, bob, admin))
	assert.Equal(t, core.StateAuthorized, gate.Check(ctx, bob))

	grants, err := gate.ListAuthorized(ctx, admin)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, bob, grants[0].Identity)

	_, err = gate.ListAuthorized(ctx, bob)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}

func TestGate_AuditFailureIsNotSurfaced(t *testing.T) {
	gate, _, _ := newTestGate(t, WithAuditor(&fakeAuditor{err: errors.New("ledger down")}))

	assert.NoError(t, gate.Grant(context.Background(), bob, admin))
}

func TestGate_PendingAndPurge(t *testing.T) {
	gate, _, clock := newTestGate(t)
	ctx := context.Background()

	short, err := gate.IssueInvitation(ctx, admin, time.Hour)
	require.NoError(t, err)
	_, err = gate.IssueInvitation(ctx, admin, 0)
	require.NoError(t, err)

	pending, err := gate.ListPending(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	clock.Advance(2 * time.Hour)
	n, err := gate.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = gate.Redeem(ctx, short.Token, alice)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = gate.ListPending(ctx, alice)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}
