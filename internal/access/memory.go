package access

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// MemoryStore is an in-process Store guarded by a single lock.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[core.Identity]time.Time
	tokens map[string]core.InvitationToken
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[core.Identity]time.Time),
		tokens: make(map[string]core.InvitationToken),
	}
}

// GetState returns the stored state for id.
func (s *MemoryStore) GetState(ctx context.Context, id core.Identity) (core.AuthorizationState, error) {
	if err := ctx.Err(); err != nil {
		return core.StateUnauthorized, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.grants[id]; ok {
		return core.StateAuthorized, nil
	}
	return core.StateUnauthorized, nil
}

// PutState sets the state for id.
func (s *MemoryStore) PutState(ctx context.Context, id core.Identity, state core.AuthorizationState, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case core.StateAuthorized:
		s.grants[id] = at
	case core.StateUnauthorized:
		delete(s.grants, id)
	default:
		return fmt.Errorf("cannot persist state %q", state)
	}
	return nil
}

// GetToken returns a copy of the token stored under digest.
func (s *MemoryStore) GetToken(ctx context.Context, digest string) (*core.InvitationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[digest]
	if !ok {
		return nil, core.ErrRecordNotFound
	}
	return &tok, nil
}

// PutToken stores a new token. The plaintext value is never kept.
func (s *MemoryStore) PutToken(ctx context.Context, token *core.InvitationToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Digest]; exists {
		return core.ErrDuplicateToken
	}
	stored := *token
	stored.Token = ""
	s.tokens[token.Digest] = stored
	return nil
}

// Redeem consumes the token and grants access under one lock.
func (s *MemoryStore) Redeem(ctx context.Context, digest string, redeemer core.Identity, now time.Time) (*core.InvitationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// checked under the lock so a cancelled call never half-applies
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok, ok := s.tokens[digest]
	if !ok || !tok.Live(now) {
		return nil, core.ErrInvalidToken
	}
	if _, granted := s.grants[redeemer]; granted {
		return nil, core.ErrAlreadyAuthorized
	}

	who := redeemer
	at := now
	tok.RedeemedBy = &who
	tok.RedeemedAt = &at
	s.tokens[digest] = tok
	s.grants[redeemer] = now

	return &tok, nil
}

// ListAuthorized returns the persisted grants ordered by identity.
func (s *MemoryStore) ListAuthorized(ctx context.Context) ([]core.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := make([]core.Grant, 0, len(s.grants))
	for id, at := range s.grants {
		grants = append(grants, core.Grant{Identity: id, State: core.StateAuthorized, UpdatedAt: at})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Identity < grants[j].Identity })
	return grants, nil
}

// ListPending returns live tokens ordered by creation time.
func (s *MemoryStore) ListPending(ctx context.Context, now time.Time) ([]*core.InvitationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*core.InvitationToken
	for _, tok := range s.tokens {
		if tok.Live(now) {
			t := tok
			pending = append(pending, &t)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

// PurgeExpired deletes expired, unredeemed tokens.
func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for digest, tok := range s.tokens {
		if tok.RedeemedBy == nil && tok.ExpiresAt != nil && !now.Before(*tok.ExpiresAt) {
			delete(s.tokens, digest)
			n++
		}
	}
	return n, nil
}
