package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/wallet"
)

// Service manages party wallets and withdrawals. Cash-out fees follow the
// live schedule, not a snapshot: only escrow transitions freeze fees.
type Service struct {
	wallets        wallet.Repository
	schedule       fees.Schedule
	platformWallet uuid.UUID
	logger         zerolog.Logger
}

func NewService(wallets wallet.Repository, schedule fees.Schedule, platformWallet uuid.UUID, logger zerolog.Logger) *Service {
	return &Service{
		wallets:        wallets,
		schedule:       schedule,
		platformWallet: platformWallet,
		logger:         logger.With().Str("service", "wallet").Logger(),
	}
}

// CreateWallet registers a wallet for the given party role.
func (s *Service) CreateWallet(ctx context.Context, role wallet.Role, contact string) (*wallet.Wallet, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown wallet role %q", role)
	}
	w := wallet.New(role, contact)
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info().Str("walletId", w.ID.String()).Str("role", string(role)).Msg("wallet created")
	return w, nil
}

// GetWallet returns the wallet or wallet.ErrNotFound.
func (s *Service) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, wallet.ErrNotFound
	}
	return w, nil
}

// CashOut withdraws amount from the wallet. The cash-out fee comes off the
// balance on top of the amount and lands in the platform wallet. Frozen
// wallets cannot withdraw until their disputes resolve.
func (s *Service) CashOut(ctx context.Context, id uuid.UUID, amount int64) (fee int64, err error) {
	if amount <= 0 {
		return 0, wallet.ErrInvalidAmount
	}
	fee = fees.CashOutFee(amount, s.schedule)
	if err := s.wallets.CashOut(ctx, id, amount, fee, s.platformWallet); err != nil {
		return 0, err
	}
	s.logger.Info().
		Str("walletId", id.String()).
		Int64("amount", amount).
		Int64("fee", fee).
		Msg("cash-out completed")
	return fee, nil
}
