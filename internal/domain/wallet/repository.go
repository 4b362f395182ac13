package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for wallets. Balance mutations outside of
// escrow transitions (cash-out) are applied here; transition deltas go
// through the ledger so they commit atomically with the state change.
type Repository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	// CashOut debits amount+fee from the wallet and credits the fee to the
	// platform wallet in one atomic step. Fails with ErrInsufficientFunds if
	// the spendable balance cannot cover the withdrawal, ErrWalletHeld if the
	// wallet is frozen by an open dispute.
	CashOut(ctx context.Context, walletID uuid.UUID, amount, fee int64, platformWalletID uuid.UUID) error
}
