// Package access implements the access control gate: per-request
// authorization and single-use invitation tokens.
package access

import (
	"context"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// Store is the durable access store. Every method is individually atomic.
// Only non-admin states are persisted; admins come from configuration.
//
// Errors:
//   - GetToken returns core.ErrRecordNotFound for unknown digests.
//   - PutToken returns core.ErrDuplicateToken if the digest exists.
//   - Redeem returns core.ErrInvalidToken when no live token matches and
//     core.ErrAlreadyAuthorized when the redeemer already holds a grant.
//     In both cases nothing is written.
type Store interface {
	GetState(ctx context.Context, id core.Identity) (core.AuthorizationState, error)
	PutState(ctx context.Context, id core.Identity, state core.AuthorizationState, at time.Time) error

	GetToken(ctx context.Context, digest string) (*core.InvitationToken, error)
	PutToken(ctx context.Context, token *core.InvitationToken) error

	// Redeem marks the token redeemed by redeemer and grants authorized
	// state in one atomic step, returning the redeemed token.
	Redeem(ctx context.Context, digest string, redeemer core.Identity, now time.Time) (*core.InvitationToken, error)

	ListAuthorized(ctx context.Context) ([]core.Grant, error)
	ListPending(ctx context.Context, now time.Time) ([]*core.InvitationToken, error)

	// PurgeExpired deletes unredeemed tokens whose expiry is at or before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
