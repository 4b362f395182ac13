package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/peacelink"
	"github.com/peacelink/peacelink/internal/domain/wallet"
)

func seed(t *testing.T, s *Store) (*wallet.Wallet, *peacelink.PeaceLink) {
	t.Helper()
	ctx := context.Background()
	buyer := wallet.New(wallet.RoleBuyer, "+233200000001")
	buyer.Balance = 50_000
	require.NoError(t, s.Wallets().Create(ctx, buyer))

	pl := &peacelink.PeaceLink{
		ID:            uuid.New(),
		State:         peacelink.StatePendingApproval,
		Amounts:       fees.Amounts{Item: 10_000, Delivery: 1_000},
		Schedule:      fees.DefaultSchedule(),
		BuyerWalletID: buyer.ID,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.PeaceLinks().Create(ctx, pl))
	return buyer, pl
}

func commitFor(pl *peacelink.PeaceLink, buyer uuid.UUID, to peacelink.State, amount int64) peacelink.Commit {
	next := pl.Clone()
	next.State = to
	next.Held += -amount
	rec := peacelink.NewTransition(pl.ID, pl.State, to, peacelink.TriggerBuyerApproved, peacelink.ActorBuyer,
		[]wallet.Delta{{WalletID: buyer, Amount: amount, Memo: "test", CheckFunds: amount < 0}})
	return peacelink.Commit{PeaceLink: next, Record: rec}
}

func TestCommitTransitionStaleState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	buyer, pl := seed(t, s)

	first := commitFor(pl, buyer.ID, peacelink.StateSPHActive, -11_000)
	require.NoError(t, s.Ledger().CommitTransition(ctx, first))

	// Replay against the old stored state must fail.
	stale := commitFor(pl, buyer.ID, peacelink.StateCanceled, 0)
	err := s.Ledger().CommitTransition(ctx, stale)
	require.ErrorIs(t, err, peacelink.ErrStaleState)
}

func TestCommitTransitionIdempotentDeltas(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	buyer, pl := seed(t, s)

	commit := commitFor(pl, buyer.ID, peacelink.StateSPHActive, -11_000)
	require.NoError(t, s.Ledger().CommitTransition(ctx, commit))

	after, err := s.Wallets().GetByID(ctx, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(39_000), after.Balance)

	// Same target state replayed: state and audit land, balances do not move
	// again. This is the crash-recovery path.
	stored, err := s.PeaceLinks().GetByID(ctx, pl.ID)
	require.NoError(t, err)
	replay := commitFor(stored, buyer.ID, peacelink.StateSPHActive, -11_000)
	replay.Record.From = peacelink.StateSPHActive
	replay.PeaceLink.State = peacelink.StateSPHActive
	require.NoError(t, s.Ledger().CommitTransition(ctx, replay))

	after, err = s.Wallets().GetByID(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(39_000), after.Balance)
}

func TestCommitTransitionChecksFunds(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	buyer, pl := seed(t, s)

	over := commitFor(pl, buyer.ID, peacelink.StateSPHActive, -60_000)
	err := s.Ledger().CommitTransition(ctx, over)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	// Nothing committed: state and balance untouched.
	after, err := s.Wallets().GetByID(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), after.Balance)
	stored, err := s.PeaceLinks().GetByID(ctx, pl.ID)
	require.NoError(t, err)
	assert.Equal(t, peacelink.StatePendingApproval, stored.State)
}

func TestListExpired(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, pl := seed(t, s)

	got, err := s.PeaceLinks().ListExpired(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.PeaceLinks().ListExpired(ctx, pl.ExpiresAt.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pl.ID, got[0].ID)
}
