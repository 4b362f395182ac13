package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peacelink/peacelink/internal/domain/dispute"
)

// DisputeRepository implements dispute.Repository. Writes go through the
// escrow ledger.
type DisputeRepository struct {
	pool *pgxpool.Pool
}

func NewDisputeRepository(pool *pgxpool.Pool) *DisputeRepository {
	return &DisputeRepository{pool: pool}
}

const disputeColumns = `dispute_id, peacelink_id, opened_by, opened_at, resolved_at, decision`

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE dispute_id=$1
	`, id)
	return scanDispute(row)
}

func (r *DisputeRepository) GetByPeaceLinkID(ctx context.Context, peaceLinkID uuid.UUID) (*dispute.Dispute, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE peacelink_id=$1
	`, peaceLinkID)
	return scanDispute(row)
}

func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]*dispute.Dispute, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE resolved_at IS NULL ORDER BY opened_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*dispute.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDispute(row pgx.Row) (*dispute.Dispute, error) {
	var d dispute.Dispute
	var decision []byte
	if err := row.Scan(&d.ID, &d.PeaceLinkID, &d.OpenedBy, &d.OpenedAt, &d.ResolvedAt, &decision); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(decision) > 0 {
		d.Decision = &dispute.Decision{}
		if err := json.Unmarshal(decision, d.Decision); err != nil {
			return nil, err
		}
	}
	return &d, nil
}
