package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/wallet"
	"github.com/peacelink/peacelink/internal/infrastructure/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, uuid.UUID) {
	t.Helper()
	store := memory.NewStore()
	platform := wallet.New(wallet.RolePlatform, "ops@peacelink")
	require.NoError(t, store.Wallets().Create(context.Background(), platform))
	svc := NewService(store.Wallets(), fees.DefaultSchedule(), platform.ID, zerolog.Nop())
	return svc, store, platform.ID
}

func TestCreateAndGetWallet(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	w, err := svc.CreateWallet(ctx, wallet.RoleMerchant, "+233200000002")
	require.NoError(t, err)
	assert.Equal(t, wallet.RoleMerchant, w.OwnerRole)
	assert.Equal(t, int64(0), w.Balance)

	got, err := svc.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	_, err = svc.GetWallet(ctx, uuid.New())
	require.ErrorIs(t, err, wallet.ErrNotFound)

	_, err = svc.CreateWallet(ctx, wallet.Role("banker"), "x")
	require.Error(t, err)
}

func TestCashOut(t *testing.T) {
	svc, store, platformID := newService(t)
	ctx := context.Background()

	w, err := svc.CreateWallet(ctx, wallet.RoleMerchant, "+233200000002")
	require.NoError(t, err)

	// 150bps of 10000 = 150.
	t.Run("fee charged on top", func(t *testing.T) {
		rich := wallet.New(wallet.RoleMerchant, "+233200000004")
		rich.Balance = 20_000
		require.NoError(t, store.Wallets().Create(ctx, rich))

		fee, err := svc.CashOut(ctx, rich.ID, 10_000)
		require.NoError(t, err)
		assert.Equal(t, int64(150), fee)

		after, err := store.Wallets().GetByID(ctx, rich.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(9_850), after.Balance)

		platform, err := store.Wallets().GetByID(ctx, platformID)
		require.NoError(t, err)
		assert.Equal(t, int64(150), platform.Balance)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		poor := wallet.New(wallet.RoleMerchant, "+233200000005")
		poor.Balance = 10_000
		require.NoError(t, store.Wallets().Create(ctx, poor))

		// Amount fits but amount+fee does not.
		_, err := svc.CashOut(ctx, poor.ID, 10_000)
		require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	})

	t.Run("frozen wallet", func(t *testing.T) {
		frozen := wallet.New(wallet.RoleMerchant, "+233200000006")
		frozen.Balance = 20_000
		frozen.Holds = 1
		require.NoError(t, store.Wallets().Create(ctx, frozen))

		_, err := svc.CashOut(ctx, frozen.ID, 1_000)
		require.ErrorIs(t, err, wallet.ErrWalletHeld)
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := svc.CashOut(ctx, w.ID, 0)
		require.ErrorIs(t, err, wallet.ErrInvalidAmount)
	})
}
