package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peacelink/peacelink/internal/domain/peacelink"
	"github.com/peacelink/peacelink/internal/domain/wallet"
)

// PeaceLinkRepository implements peacelink.Repository and peacelink.Ledger.
type PeaceLinkRepository struct {
	pool *pgxpool.Pool
}

func NewPeaceLinkRepository(pool *pgxpool.Pool) *PeaceLinkRepository {
	return &PeaceLinkRepository{pool: pool}
}

const peaceLinkColumns = `peacelink_id, state, item_amount, delivery_amount, advance_amount, advance_enabled,
	merchant_rate_bps, merchant_fixed, dsp_rate_bps, advance_rate_bps, cashout_rate_bps,
	buyer_wallet_id, merchant_wallet_id, platform_wallet_id, dsp_wallet_id, otp_hash,
	held, dispute_id, created_at, expires_at, updated_at`

func (r *PeaceLinkRepository) Create(ctx context.Context, pl *peacelink.PeaceLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO peacelinks (`+peaceLinkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, pl.ID, pl.State, pl.Amounts.Item, pl.Amounts.Delivery, pl.Amounts.Advance, pl.AdvanceEnabled,
		pl.Schedule.MerchantRateBps, pl.Schedule.MerchantFixed, pl.Schedule.DSPRateBps,
		pl.Schedule.AdvanceRateBps, pl.Schedule.CashOutRateBps,
		pl.BuyerWalletID, pl.MerchantWallet, pl.PlatformWallet, pl.DSPWalletID, pl.OTPHash,
		pl.Held, pl.DisputeID, pl.CreatedAt, pl.ExpiresAt, pl.UpdatedAt)
	return err
}

func (r *PeaceLinkRepository) GetByID(ctx context.Context, id uuid.UUID) (*peacelink.PeaceLink, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+peaceLinkColumns+` FROM peacelinks WHERE peacelink_id=$1
	`, id)
	return scanPeaceLink(row)
}

func (r *PeaceLinkRepository) ListByState(ctx context.Context, state peacelink.State, limit, offset int) ([]*peacelink.PeaceLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+peaceLinkColumns+` FROM peacelinks
		WHERE state=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, state, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPeaceLinks(rows)
}

func (r *PeaceLinkRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*peacelink.PeaceLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+peaceLinkColumns+` FROM peacelinks
		WHERE state IN ('created','pending_approval') AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPeaceLinks(rows)
}

// CommitTransition applies one transition atomically: optimistic state
// update, idempotent wallet deltas, dispute bookkeeping and the audit row
// all land in the same transaction.
func (r *PeaceLinkRepository) CommitTransition(ctx context.Context, commit peacelink.Commit) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	pl := commit.PeaceLink
	rec := commit.Record
	tag, err := tx.Exec(ctx, `
		UPDATE peacelinks
		SET state=$1, dsp_wallet_id=$2, otp_hash=$3, held=$4, dispute_id=$5, updated_at=$6
		WHERE peacelink_id=$7 AND state=$8
	`, pl.State, pl.DSPWalletID, pl.OTPHash, pl.Held, pl.DisputeID, pl.UpdatedAt, pl.ID, rec.From)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, tx, pl.ID)
		if err != nil {
			return err
		}
		if !exists {
			return peacelink.ErrNotFound
		}
		return fmt.Errorf("%w: expected state %s", peacelink.ErrStaleState, rec.From)
	}

	// The effect gate makes delta application idempotent per target state:
	// a replayed commit re-records state and audit but never moves balances
	// twice.
	gate, err := tx.Exec(ctx, `
		INSERT INTO applied_effects (peacelink_id, to_state, applied_at)
		VALUES ($1,$2,$3) ON CONFLICT (peacelink_id, to_state) DO NOTHING
	`, pl.ID, rec.To, time.Now().UTC())
	if err != nil {
		return err
	}
	if gate.RowsAffected() == 1 {
		if err := applyDeltas(ctx, tx, rec.Deltas); err != nil {
			return err
		}
	}

	for _, id := range commit.HoldWallets {
		if _, err := tx.Exec(ctx, `
			UPDATE wallets SET holds=holds+1, updated_at=now() WHERE wallet_id=$1
		`, id); err != nil {
			return err
		}
	}
	for _, id := range commit.ReleaseWallets {
		if _, err := tx.Exec(ctx, `
			UPDATE wallets SET holds=GREATEST(holds-1,0), updated_at=now() WHERE wallet_id=$1
		`, id); err != nil {
			return err
		}
	}

	if d := commit.Dispute; d != nil {
		var decision []byte
		if d.Decision != nil {
			if decision, err = json.Marshal(d.Decision); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO disputes (dispute_id, peacelink_id, opened_by, opened_at, resolved_at, decision)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (dispute_id) DO UPDATE SET resolved_at=$5, decision=$6
		`, d.ID, d.PeaceLinkID, d.OpenedBy, d.OpenedAt, d.ResolvedAt, decision); err != nil {
			return err
		}
	}

	deltas, err := json.Marshal(rec.Deltas)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO transitions (transition_id, peacelink_id, from_state, to_state, trigger, actor, deltas, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.TransitionID, rec.PeaceLinkID, rec.From, rec.To, rec.Trigger, rec.Actor, deltas, rec.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// applyDeltas updates balances in ascending wallet-ID order so concurrent
// commits touching the same wallets never deadlock. A funds-checked debit
// that would go negative fails the whole transaction.
func applyDeltas(ctx context.Context, tx pgx.Tx, deltas []wallet.Delta) error {
	sorted := append([]wallet.Delta(nil), deltas...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].WalletID.String() < sorted[j].WalletID.String()
	})
	for _, d := range sorted {
		if d.CheckFunds {
			tag, err := tx.Exec(ctx, `
				UPDATE wallets SET balance=balance+$1, updated_at=now()
				WHERE wallet_id=$2 AND balance+$1 >= 0
			`, d.Amount, d.WalletID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				exists, err := walletExists(ctx, tx, d.WalletID)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("delta wallet %s: %w", d.WalletID, wallet.ErrNotFound)
				}
				return wallet.ErrInsufficientFunds
			}
			continue
		}
		tag, err := tx.Exec(ctx, `
			UPDATE wallets SET balance=balance+$1, updated_at=now() WHERE wallet_id=$2
		`, d.Amount, d.WalletID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("delta wallet %s: %w", d.WalletID, wallet.ErrNotFound)
		}
	}
	return nil
}

func (r *PeaceLinkRepository) ListTransitions(ctx context.Context, peaceLinkID uuid.UUID) ([]*peacelink.Transition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, transition_id, peacelink_id, from_state, to_state, trigger, actor, deltas, created_at
		FROM transitions WHERE peacelink_id=$1 ORDER BY id ASC
	`, peaceLinkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*peacelink.Transition
	for rows.Next() {
		var t peacelink.Transition
		var deltas []byte
		if err := rows.Scan(&t.ID, &t.TransitionID, &t.PeaceLinkID, &t.From, &t.To, &t.Trigger, &t.Actor, &deltas, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(deltas) > 0 {
			if err := json.Unmarshal(deltas, &t.Deltas); err != nil {
				return nil, err
			}
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *PeaceLinkRepository) exists(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	row := tx.QueryRow(ctx, `SELECT 1 FROM peacelinks WHERE peacelink_id=$1`, id)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func walletExists(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	row := tx.QueryRow(ctx, `SELECT 1 FROM wallets WHERE wallet_id=$1`, id)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func scanPeaceLink(row pgx.Row) (*peacelink.PeaceLink, error) {
	var pl peacelink.PeaceLink
	if err := row.Scan(&pl.ID, &pl.State, &pl.Amounts.Item, &pl.Amounts.Delivery, &pl.Amounts.Advance, &pl.AdvanceEnabled,
		&pl.Schedule.MerchantRateBps, &pl.Schedule.MerchantFixed, &pl.Schedule.DSPRateBps,
		&pl.Schedule.AdvanceRateBps, &pl.Schedule.CashOutRateBps,
		&pl.BuyerWalletID, &pl.MerchantWallet, &pl.PlatformWallet, &pl.DSPWalletID, &pl.OTPHash,
		&pl.Held, &pl.DisputeID, &pl.CreatedAt, &pl.ExpiresAt, &pl.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &pl, nil
}

func collectPeaceLinks(rows pgx.Rows) ([]*peacelink.PeaceLink, error) {
	var out []*peacelink.PeaceLink
	for rows.Next() {
		pl, err := scanPeaceLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}
