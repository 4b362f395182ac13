package dispute

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines read access to disputes. Creation and resolution are
// committed through the escrow ledger so they land in the same atomic unit
// as the owning transition.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	GetByPeaceLinkID(ctx context.Context, peaceLinkID uuid.UUID) (*Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]*Dispute, error)
}
