package scheduler

import (
	"context"

	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

// Task IDs registered by the daemon.
const (
	TaskInvitationSweep = "invitation-sweep"
	TaskLedgerVerify    = "ledger-verify"
)

// Purger removes expired, unredeemed invitations and reports how many.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// PurgeRecorder records a completed sweep.
type PurgeRecorder interface {
	RecordPurge(ctx context.Context, removed int) error
}

// ChainVerifier checks the audit ledger's hash chain.
type ChainVerifier interface {
	VerifyChain(ctx context.Context) error
}

// InvitationSweep returns a handler that purges expired invitations and
// records non-empty sweeps. rec may be nil.
func InvitationSweep(p Purger, rec PurgeRecorder) TaskHandler {
	return func(ctx context.Context) error {
		removed, err := p.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		if removed == 0 {
			return nil
		}
		logging.WithField("removed", removed).Info("expired invitations purged")
		if rec == nil {
			return nil
		}
		return rec.RecordPurge(ctx, removed)
	}
}

// LedgerVerify returns a handler that fails when the audit chain is broken.
func LedgerVerify(v ChainVerifier) TaskHandler {
	return func(ctx context.Context) error {
		if err := v.VerifyChain(ctx); err != nil {
			logging.Error("audit ledger verification failed: %v", err)
			return err
		}
		return nil
	}
}
