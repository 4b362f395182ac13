package peacelink

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/peacelink/peacelink/internal/domain/dispute"
)

// Repository defines read/create persistence for PeaceLinks. State changes
// never go through here: they commit via the Ledger so the state update,
// wallet deltas and audit record land in one atomic unit.
type Repository interface {
	Create(ctx context.Context, pl *PeaceLink) error
	GetByID(ctx context.Context, id uuid.UUID) (*PeaceLink, error)
	ListByState(ctx context.Context, state State, limit, offset int) ([]*PeaceLink, error)
	// ListExpired returns PeaceLinks in created/pending_approval whose expiry
	// deadline has passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*PeaceLink, error)
}

// Commit is the atomic unit of a transition: the updated PeaceLink, the
// audit record carrying the wallet deltas, and any dispute bookkeeping.
// HoldWallets/ReleaseWallets adjust dispute freeze markers on the listed
// wallets in the same unit.
type Commit struct {
	PeaceLink      *PeaceLink
	Record         *Transition
	Dispute        *dispute.Dispute
	HoldWallets    []uuid.UUID
	ReleaseWallets []uuid.UUID
}

// Ledger applies transition commits. Implementations must guarantee:
//   - atomicity: the state update, every wallet delta, the audit append and
//     dispute bookkeeping all commit or none do;
//   - optimistic state check: the stored state must still equal
//     Record.From, otherwise ErrStaleState;
//   - idempotent delta application keyed on (PeaceLinkID, Record.To):
//     replaying an already-applied effect must not move balances again;
//   - funds check: a delta with CheckFunds set fails the whole commit with
//     wallet.ErrInsufficientFunds when it would drive the balance negative;
//   - deadlock safety: wallet rows are updated in ascending wallet-ID order.
type Ledger interface {
	CommitTransition(ctx context.Context, commit Commit) error
	ListTransitions(ctx context.Context, peaceLinkID uuid.UUID) ([]*Transition, error)
}
