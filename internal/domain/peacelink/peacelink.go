package peacelink

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/peacelink/peacelink/internal/domain/fees"
)

// State is the lifecycle state of a PeaceLink.
type State string

const (
	StateCreated         State = "created"
	StatePendingApproval State = "pending_approval"
	StateSPHActive       State = "sph_active"
	StateDSPAssigned     State = "dsp_assigned"
	StateDelivered       State = "delivered"
	StateCanceled        State = "canceled"
	StateDisputed        State = "disputed"
	StateResolved        State = "resolved"
	StateExpired         State = "expired"
)

// IsTerminal reports whether no further transitions are accepted.
func (s State) IsTerminal() bool {
	switch s {
	case StateDelivered, StateCanceled, StateResolved, StateExpired:
		return true
	default:
		return false
	}
}

// Valid reports whether the state is a member of the closed set.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StatePendingApproval, StateSPHActive, StateDSPAssigned,
		StateDelivered, StateCanceled, StateDisputed, StateResolved, StateExpired:
		return true
	default:
		return false
	}
}

// Trigger names the event that requests a transition.
type Trigger string

const (
	TriggerNotificationSent Trigger = "notification_sent"
	TriggerTimeout          Trigger = "timeout"
	TriggerBuyerApproved    Trigger = "buyer_approved"
	TriggerAssignDSP        Trigger = "assign_dsp"
	TriggerOTPVerified      Trigger = "otp_verified"
	TriggerDSPCanceled      Trigger = "dsp_canceled"
	TriggerCancel           Trigger = "cancel"
	TriggerOpenDispute      Trigger = "open_dispute"
	TriggerAdminResolved    Trigger = "admin_resolved"
)

// Actor is the role requesting a transition.
type Actor string

const (
	ActorBuyer    Actor = "buyer"
	ActorMerchant Actor = "merchant"
	ActorDSP      Actor = "dsp"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

// Valid reports whether the actor is a member of the closed set.
func (a Actor) Valid() bool {
	switch a {
	case ActorBuyer, ActorMerchant, ActorDSP, ActorAdmin, ActorSystem:
		return true
	default:
		return false
	}
}

// Typed errors returned by the state machine. User-triggerable kinds are
// recovered at the transition boundary; ErrInvariantViolation indicates a
// software defect and always aborts the transition with nothing committed.
var (
	ErrNotFound             = errors.New("peacelink not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrUnauthorizedActor    = errors.New("actor not authorized for transition")
	ErrTerminalState        = errors.New("peacelink already in terminal state")
	ErrOTPMismatch          = errors.New("otp verification failed")
	ErrInvalidActorForPhase = errors.New("no cancellation rule for phase and actor")
	ErrInvariantViolation   = errors.New("invariant violation")
	ErrStaleState           = errors.New("peacelink state changed concurrently")
)

// Rule is one edge of the transition table.
type Rule struct {
	From    State
	To      State
	Trigger Trigger
	Actors  []Actor
}

// Allows reports whether the actor may trigger this edge.
func (r Rule) Allows(actor Actor) bool {
	for _, a := range r.Actors {
		if a == actor {
			return true
		}
	}
	return false
}

// Transitions is the closed transition table. Exactly one rule exists per
// (from, trigger) pair; anything not listed is an invalid transition.
var Transitions = []Rule{
	{From: StateCreated, To: StatePendingApproval, Trigger: TriggerNotificationSent, Actors: []Actor{ActorSystem}},
	{From: StateCreated, To: StateExpired, Trigger: TriggerTimeout, Actors: []Actor{ActorSystem}},
	{From: StatePendingApproval, To: StateSPHActive, Trigger: TriggerBuyerApproved, Actors: []Actor{ActorBuyer}},
	{From: StatePendingApproval, To: StateExpired, Trigger: TriggerTimeout, Actors: []Actor{ActorSystem}},
	{From: StatePendingApproval, To: StateCanceled, Trigger: TriggerCancel, Actors: []Actor{ActorBuyer, ActorMerchant}},
	{From: StateSPHActive, To: StateDSPAssigned, Trigger: TriggerAssignDSP, Actors: []Actor{ActorMerchant}},
	{From: StateSPHActive, To: StateCanceled, Trigger: TriggerCancel, Actors: []Actor{ActorBuyer, ActorMerchant}},
	{From: StateDSPAssigned, To: StateDelivered, Trigger: TriggerOTPVerified, Actors: []Actor{ActorDSP}},
	{From: StateDSPAssigned, To: StateSPHActive, Trigger: TriggerDSPCanceled, Actors: []Actor{ActorDSP}},
	{From: StateDSPAssigned, To: StateCanceled, Trigger: TriggerCancel, Actors: []Actor{ActorBuyer, ActorMerchant}},
	{From: StateDSPAssigned, To: StateDisputed, Trigger: TriggerOpenDispute, Actors: []Actor{ActorBuyer, ActorMerchant, ActorDSP}},
	{From: StateDisputed, To: StateResolved, Trigger: TriggerAdminResolved, Actors: []Actor{ActorAdmin}},
}

// FindRule returns the table edge for (from, trigger), or nil if the
// transition is not defined.
func FindRule(from State, trigger Trigger) *Rule {
	for i := range Transitions {
		if Transitions[i].From == from && Transitions[i].Trigger == trigger {
			return &Transitions[i]
		}
	}
	return nil
}

// PeaceLink is a secure-payment-hold escrow transaction between buyer,
// merchant, delivery provider and platform. The fee schedule is frozen at
// creation; Held tracks the escrowed amount not yet distributed to any
// wallet.
type PeaceLink struct {
	ID             uuid.UUID     `json:"peaceLinkId"`
	State          State         `json:"state"`
	Amounts        fees.Amounts  `json:"amounts"`
	AdvanceEnabled bool          `json:"advanceEnabled"`
	Schedule       fees.Schedule `json:"feeSchedule"`
	BuyerWalletID  uuid.UUID     `json:"buyerWalletId"`
	MerchantWallet uuid.UUID     `json:"merchantWalletId"`
	PlatformWallet uuid.UUID     `json:"platformWalletId"`
	DSPWalletID    *uuid.UUID    `json:"dspWalletId,omitempty"`
	OTPHash        *string       `json:"-"`
	Held           int64         `json:"held"`
	DisputeID      *uuid.UUID    `json:"disputeId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// DSPAssigned reports whether a delivery provider is currently assigned.
func (p *PeaceLink) DSPAssigned() bool {
	return p.DSPWalletID != nil
}

// AdvanceAmount returns the advance paid to the merchant at escrow entry,
// zero when the advance option is disabled.
func (p *PeaceLink) AdvanceAmount() int64 {
	if !p.AdvanceEnabled {
		return 0
	}
	return p.Amounts.Advance
}

// Clone returns a copy safe to mutate without affecting the stored instance.
func (p *PeaceLink) Clone() *PeaceLink {
	if p == nil {
		return nil
	}
	clone := *p
	if p.DSPWalletID != nil {
		id := *p.DSPWalletID
		clone.DSPWalletID = &id
	}
	if p.OTPHash != nil {
		h := *p.OTPHash
		clone.OTPHash = &h
	}
	if p.DisputeID != nil {
		id := *p.DisputeID
		clone.DisputeID = &id
	}
	return &clone
}
