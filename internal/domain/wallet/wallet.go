package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role identifies the party that owns a wallet.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleMerchant Role = "merchant"
	RoleDSP      Role = "dsp"
	RolePlatform Role = "platform"
)

var (
	ErrNotFound          = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletHeld        = errors.New("wallet held pending dispute resolution")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Valid reports whether the role is one of the supported party roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleMerchant, RoleDSP, RolePlatform:
		return true
	default:
		return false
	}
}

// Wallet is a party balance in minor currency units. Balance is the spendable
// amount; Holds counts active dispute freezes (a wallet can participate in
// many PeaceLinks, each dispute adds one hold).
type Wallet struct {
	ID        uuid.UUID `json:"walletId"`
	OwnerRole Role      `json:"ownerRole"`
	Contact   string    `json:"contact"`
	Balance   int64     `json:"balance"`
	Holds     int       `json:"holds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Frozen reports whether any dispute currently holds this wallet.
func (w *Wallet) Frozen() bool {
	return w.Holds > 0
}

// New creates a wallet for the given party.
func New(role Role, contact string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.New(),
		OwnerRole: role,
		Contact:   contact,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Delta is a signed balance change applied to one wallet as part of a
// transition effect. CheckFunds marks the one debit that may legitimately
// fail on balance: the buyer debit at escrow entry. All later movements
// redistribute already-escrowed funds and must not fail on funds.
type Delta struct {
	WalletID   uuid.UUID `json:"walletId"`
	Amount     int64     `json:"amount"`
	Memo       string    `json:"memo"`
	CheckFunds bool      `json:"checkFunds,omitempty"`
}

// Sum returns the total of a delta set.
func Sum(deltas []Delta) int64 {
	var total int64
	for _, d := range deltas {
		total += d.Amount
	}
	return total
}
