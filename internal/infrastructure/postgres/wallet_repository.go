package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peacelink/peacelink/internal/domain/wallet"
)

// WalletRepository implements wallet.Repository.
type WalletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallets (wallet_id, owner_role, contact, balance, holds, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, w.ID, w.OwnerRole, w.Contact, w.Balance, w.Holds, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT wallet_id, owner_role, contact, balance, holds, created_at, updated_at
		FROM wallets WHERE wallet_id=$1
	`, id)
	return scanWallet(row)
}

// CashOut debits amount+fee and credits the fee to the platform wallet in
// one transaction. The debit fails when the wallet is frozen by a dispute or
// the balance cannot cover amount+fee.
func (r *WalletRepository) CashOut(ctx context.Context, walletID uuid.UUID, amount, fee int64, platformWalletID uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT balance, holds FROM wallets WHERE wallet_id=$1 FOR UPDATE
	`, walletID)
	var balance int64
	var holds int
	if err := row.Scan(&balance, &holds); err != nil {
		if err == pgx.ErrNoRows {
			return wallet.ErrNotFound
		}
		return err
	}
	if holds > 0 {
		return wallet.ErrWalletHeld
	}
	if balance < amount+fee {
		return wallet.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `
		UPDATE wallets SET balance=balance-$1, updated_at=now() WHERE wallet_id=$2
	`, amount+fee, walletID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE wallets SET balance=balance+$1, updated_at=now() WHERE wallet_id=$2
	`, fee, platformWalletID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return wallet.ErrNotFound
	}
	return tx.Commit(ctx)
}

func scanWallet(row pgx.Row) (*wallet.Wallet, error) {
	var w wallet.Wallet
	if err := row.Scan(&w.ID, &w.OwnerRole, &w.Contact, &w.Balance, &w.Holds, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}
