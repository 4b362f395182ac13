package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacelink/peacelink/internal/application/escrow"
	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/notify"
	"github.com/peacelink/peacelink/internal/domain/peacelink"
	"github.com/peacelink/peacelink/internal/domain/wallet"
	"github.com/peacelink/peacelink/internal/infrastructure/memory"
	"github.com/peacelink/peacelink/internal/infrastructure/metrics"
)

type nopSender struct{}

func (nopSender) Send(context.Context, notify.Message) error { return nil }

type nopCodec struct{}

func (nopCodec) Generate() (string, string, error) { return "000000", "h", nil }
func (nopCodec) Verify(string, string) bool        { return false }

func TestSweepExpiresOverdue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	buyer := wallet.New(wallet.RoleBuyer, "+233200000001")
	buyer.Balance = 1_000_000
	merchant := wallet.New(wallet.RoleMerchant, "+233200000002")
	platform := wallet.New(wallet.RolePlatform, "ops@peacelink")
	for _, w := range []*wallet.Wallet{buyer, merchant, platform} {
		require.NoError(t, store.Wallets().Create(ctx, w))
	}

	svc := escrow.NewService(
		store.PeaceLinks(), store.Ledger(), store.Wallets(), store.Disputes(),
		nopSender{}, nopCodec{}, fees.DefaultSchedule(), platform.ID,
		time.Hour,
		metrics.NewEscrow(prometheus.NewRegistry()), zerolog.Nop(),
	)

	overdue, err := svc.CreatePeaceLink(ctx, escrow.CreateParams{
		BuyerWalletID: buyer.ID, MerchantWalletID: merchant.ID,
		ItemAmount: 10_000, DeliveryAmount: 1_000,
	})
	require.NoError(t, err)
	approved, err := svc.CreatePeaceLink(ctx, escrow.CreateParams{
		BuyerWalletID: buyer.ID, MerchantWalletID: merchant.ID,
		ItemAmount: 10_000, DeliveryAmount: 1_000,
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, approved.ID, peacelink.ActorBuyer)
	require.NoError(t, err)

	future := func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	svc.SetNowFunc(future)

	sched := New(store.PeaceLinks(), func(ctx context.Context, id uuid.UUID) error {
		_, err := svc.Expire(ctx, id)
		return err
	}, time.Minute, zerolog.Nop())
	sched.SetNowFunc(future)

	assert.Equal(t, 1, sched.Sweep(ctx))

	state, err := svc.GetState(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, peacelink.StateExpired, state)

	// Approved escrow is past pending_approval and untouched by the sweep.
	state, err = svc.GetState(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, peacelink.StateSPHActive, state)

	// Second sweep finds nothing.
	assert.Equal(t, 0, sched.Sweep(ctx))
}
