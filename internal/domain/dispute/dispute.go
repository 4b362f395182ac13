package dispute

import (
	"time"

	"github.com/google/uuid"
)

// Dispute freezes a PeaceLink's funds until an admin decision distributes
// them. Opening a dispute moves no money; all involved wallets are marked
// held and the escrowed total stays in place.
type Dispute struct {
	ID          uuid.UUID  `json:"disputeId"`
	PeaceLinkID uuid.UUID  `json:"peaceLinkId"`
	OpenedBy    string     `json:"openedBy"`
	OpenedAt    time.Time  `json:"openedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	Decision    *Decision  `json:"decision,omitempty"`
}

// Decision is the admin-directed distribution of the held total. The DSP
// payout is not part of the decision: it is computed by the resolver and
// cannot be overridden.
type Decision struct {
	BuyerShare    int64 `json:"buyerShare"`
	MerchantShare int64 `json:"merchantShare"`
	PlatformShare int64 `json:"platformShare"`
}

// New opens a dispute for the given PeaceLink.
func New(peaceLinkID uuid.UUID, openedBy string) *Dispute {
	return &Dispute{
		ID:          uuid.New(),
		PeaceLinkID: peaceLinkID,
		OpenedBy:    openedBy,
		OpenedAt:    time.Now().UTC(),
	}
}

// Open reports whether the dispute is still awaiting resolution.
func (d *Dispute) Open() bool {
	return d.ResolvedAt == nil
}

// Resolve records the admin decision.
func (d *Dispute) Resolve(decision Decision) {
	now := time.Now().UTC()
	d.ResolvedAt = &now
	copied := decision
	d.Decision = &copied
}
