package peacelink

import (
	"time"

	"github.com/google/uuid"

	"github.com/peacelink/peacelink/internal/domain/wallet"
)

// Transition is one immutable entry of a PeaceLink's audit trail: the edge
// taken, who triggered it and the wallet deltas it applied. Entries are
// append-only and totally ordered per PeaceLink.
type Transition struct {
	ID           int64          `json:"id"`
	TransitionID uuid.UUID      `json:"transitionId"`
	PeaceLinkID  uuid.UUID      `json:"peaceLinkId"`
	From         State          `json:"from"`
	To           State          `json:"to"`
	Trigger      Trigger        `json:"trigger"`
	Actor        Actor          `json:"actor"`
	Deltas       []wallet.Delta `json:"deltas,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// NewTransition builds an audit record for a committed edge.
func NewTransition(peaceLinkID uuid.UUID, from, to State, trigger Trigger, actor Actor, deltas []wallet.Delta) *Transition {
	return &Transition{
		TransitionID: uuid.New(),
		PeaceLinkID:  peaceLinkID,
		From:         from,
		To:           to,
		Trigger:      trigger,
		Actor:        actor,
		Deltas:       deltas,
		CreatedAt:    time.Now().UTC(),
	}
}
