package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/peacelink/peacelink/internal/domain/dispute"
	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/notify"
	"github.com/peacelink/peacelink/internal/domain/peacelink"
	"github.com/peacelink/peacelink/internal/domain/wallet"
	"github.com/peacelink/peacelink/internal/infrastructure/metrics"
)

// OTPCodec generates delivery codes and verifies presented ones.
type OTPCodec interface {
	Generate() (code string, hash string, err error)
	Verify(hash, presented string) bool
}

// Result is returned by every successful transition: the new state and the
// wallet deltas it applied.
type Result struct {
	PeaceLinkID uuid.UUID       `json:"peaceLinkId"`
	State       peacelink.State `json:"state"`
	Deltas      []wallet.Delta  `json:"deltas,omitempty"`
}

// CreateParams describes a merchant's PeaceLink request.
type CreateParams struct {
	BuyerWalletID    uuid.UUID
	MerchantWalletID uuid.UUID
	ItemAmount       int64
	DeliveryAmount   int64
	AdvanceEnabled   bool
	AdvanceAmount    int64
}

// Service is the escrow state machine. All external triggers funnel through
// its transition core: table validation, actor authorization, delta
// computation, invariant checks, then one atomic commit of state + ledger +
// audit. Transitions on the same PeaceLink serialize on a per-entity lock;
// notification delivery happens after commit, outside the lock.
type Service struct {
	links          peacelink.Repository
	ledger         peacelink.Ledger
	wallets        wallet.Repository
	disputes       dispute.Repository
	notifier       notify.Sender
	otp            OTPCodec
	schedule       fees.Schedule
	platformWallet uuid.UUID
	expiryWindow   time.Duration
	locks          keyMutex
	metrics        *metrics.Escrow
	logger         zerolog.Logger
	nowFn          func() time.Time
}

// NewService wires the state machine.
func NewService(
	links peacelink.Repository,
	ledger peacelink.Ledger,
	wallets wallet.Repository,
	disputes dispute.Repository,
	notifier notify.Sender,
	otp OTPCodec,
	schedule fees.Schedule,
	platformWallet uuid.UUID,
	expiryWindow time.Duration,
	m *metrics.Escrow,
	logger zerolog.Logger,
) *Service {
	return &Service{
		links:          links,
		ledger:         ledger,
		wallets:        wallets,
		disputes:       disputes,
		notifier:       notifier,
		otp:            otp,
		schedule:       schedule,
		platformWallet: platformWallet,
		expiryWindow:   expiryWindow,
		metrics:        m,
		logger:         logger.With().Str("service", "escrow").Logger(),
		nowFn:          func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time source. Intended for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	if now == nil {
		s.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	s.nowFn = now
}

func (s *Service) now() time.Time { return s.nowFn() }

// CreatePeaceLink registers a new escrow request for the merchant, snapshots
// the current fee schedule, and moves it to pending_approval once the buyer
// notification is dispatched.
func (s *Service) CreatePeaceLink(ctx context.Context, params CreateParams) (*peacelink.PeaceLink, error) {
	if params.ItemAmount <= 0 || params.DeliveryAmount <= 0 {
		return nil, fmt.Errorf("item and delivery amounts must be positive: %w", wallet.ErrInvalidAmount)
	}
	advance := params.AdvanceAmount
	if !params.AdvanceEnabled {
		advance = 0
	} else if advance <= 0 || advance > params.ItemAmount {
		return nil, fmt.Errorf("advance must be positive and at most the item amount: %w", wallet.ErrInvalidAmount)
	}

	buyer, err := s.requireWallet(ctx, params.BuyerWalletID, wallet.RoleBuyer)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireWallet(ctx, params.MerchantWalletID, wallet.RoleMerchant); err != nil {
		return nil, err
	}

	now := s.now()
	pl := &peacelink.PeaceLink{
		ID:    uuid.New(),
		State: peacelink.StateCreated,
		Amounts: fees.Amounts{
			Item:     params.ItemAmount,
			Delivery: params.DeliveryAmount,
			Advance:  advance,
		},
		AdvanceEnabled: params.AdvanceEnabled,
		Schedule:       s.schedule,
		BuyerWalletID:  params.BuyerWalletID,
		MerchantWallet: params.MerchantWalletID,
		PlatformWallet: s.platformWallet,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.expiryWindow),
		UpdatedAt:      now,
	}
	if err := s.links.Create(ctx, pl); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("peaceLinkId", pl.ID.String()).
		Int64("total", pl.Amounts.Total()).
		Msg("peacelink created")

	res, err := s.transition(ctx, pl.ID, peacelink.TriggerNotificationSent, peacelink.ActorSystem,
		func(*peacelink.PeaceLink) (*effect, error) {
			return &effect{}, nil
		})
	if err != nil {
		return nil, err
	}
	pl.State = res.State

	s.send(ctx, buyer.Contact, notify.TemplateApprovalRequest, map[string]string{
		"peacelink_id": pl.ID.String(),
		"total":        fmt.Sprintf("%d", pl.Amounts.Total()),
	})
	return pl, nil
}

// Approve commits the buyer's approval and payment: the full total is
// debited from the buyer (the only funds-checked debit in the lifecycle) and
// any advance is paid out to the merchant, net of the advance fee.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor peacelink.Actor) (*Result, error) {
	return s.transition(ctx, id, peacelink.TriggerBuyerApproved, actor,
		func(pl *peacelink.PeaceLink) (*effect, error) {
			total := pl.Amounts.Total()
			advance := pl.AdvanceAmount()
			breakdown := fees.Compute(pl.Amounts, pl.Schedule)

			deltas := []wallet.Delta{
				{WalletID: pl.BuyerWalletID, Amount: -total, Memo: "escrow hold", CheckFunds: true},
			}
			if advance > 0 {
				deltas = append(deltas,
					wallet.Delta{WalletID: pl.MerchantWallet, Amount: advance - breakdown.AdvanceFee, Memo: "advance payout"},
					wallet.Delta{WalletID: pl.PlatformWallet, Amount: breakdown.AdvanceFee, Memo: "advance fee"},
				)
			}
			return &effect{deltas: deltas, heldChange: total - advance}, nil
		})
}

// AssignDSP attaches the delivery provider's wallet and generates the
// delivery OTP. No balances move; the OTP is sent to the buyer after commit.
func (s *Service) AssignDSP(ctx context.Context, id uuid.UUID, dspWalletID uuid.UUID, actor peacelink.Actor) (*Result, error) {
	if _, err := s.requireWallet(ctx, dspWalletID, wallet.RoleDSP); err != nil {
		return nil, err
	}

	var code string
	var buyerWallet uuid.UUID
	res, err := s.transition(ctx, id, peacelink.TriggerAssignDSP, actor,
		func(pl *peacelink.PeaceLink) (*effect, error) {
			generated, hash, err := s.otp.Generate()
			if err != nil {
				return nil, fmt.Errorf("otp generation: %w", err)
			}
			code = generated
			buyerWallet = pl.BuyerWalletID
			return &effect{mutate: func(next *peacelink.PeaceLink) {
				dsp := dspWalletID
				next.DSPWalletID = &dsp
				next.OTPHash = &hash
			}}, nil
		})
	if err != nil {
		return nil, err
	}

	if buyer, werr := s.wallets.GetByID(ctx, buyerWallet); werr == nil && buyer != nil {
		s.send(ctx, buyer.Contact, notify.TemplateDeliveryOTP, map[string]string{
			"peacelink_id": id.String(),
			"otp":          code,
		})
	}
	return res, nil
}

// VerifyOTP settles the escrow on delivery. A matching code is conclusive
// proof of delivery and releases all funds; a mismatch changes nothing and
// may be retried.
func (s *Service) VerifyOTP(ctx context.Context, id uuid.UUID, code string, actor peacelink.Actor) (*Result, error) {
	return s.transition(ctx, id, peacelink.TriggerOTPVerified, actor,
		func(pl *peacelink.PeaceLink) (*effect, error) {
			if pl.OTPHash == nil {
				return nil, fmt.Errorf("%w: no otp issued", peacelink.ErrInvariantViolation)
			}
			if !s.otp.Verify(*pl.OTPHash, code) {
				return nil, peacelink.ErrOTPMismatch
			}

			advance := pl.AdvanceAmount()
			breakdown := fees.Compute(pl.Amounts, pl.Schedule)
			deltas := []wallet.Delta{
				{WalletID: pl.MerchantWallet, Amount: pl.Amounts.Item - breakdown.MerchantFee - advance, Memo: "escrow release"},
				{WalletID: *pl.DSPWalletID, Amount: pl.Amounts.Delivery - breakdown.DSPFee, Memo: "delivery payout"},
				{WalletID: pl.PlatformWallet, Amount: breakdown.MerchantFee + breakdown.DSPFee, Memo: "release fees"},
			}
			return &effect{deltas: deltas, heldChange: -(pl.Amounts.Total() - advance)}, nil
		})
}

// DSPCancel lets the assigned delivery provider withdraw, returning the
// PeaceLink to sph_active so the merchant can assign another DSP. The issued
// OTP is invalidated.
func (s *Service) DSPCancel(ctx context.Context, id uuid.UUID, actor peacelink.Actor) (*Result, error) {
	return s.transition(ctx, id, peacelink.TriggerDSPCanceled, actor,
		func(*peacelink.PeaceLink) (*effect, error) {
			return &effect{mutate: func(next *peacelink.PeaceLink) {
				next.DSPWalletID = nil
				next.OTPHash = nil
			}}, nil
		})
}

// Cancel resolves the cancellation matrix for the current phase and the
// initiating party and applies the resulting refunds and payouts.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, initiator peacelink.Actor) (*Result, error) {
	return s.transition(ctx, id, peacelink.TriggerCancel, initiator,
		func(pl *peacelink.PeaceLink) (*effect, error) {
			deltas, heldChange, err := cancellationDeltas(pl, initiator)
			if err != nil {
				return nil, err
			}
			return &effect{deltas: deltas, heldChange: heldChange}, nil
		})
}

// OpenDispute freezes the PeaceLink: every involved wallet is marked held
// and the escrowed total stays locked until an admin resolves.
func (s *Service) OpenDispute(ctx context.Context, id uuid.UUID, opener peacelink.Actor) (*Result, error) {
	res, err := s.transition(ctx, id, peacelink.TriggerOpenDispute, opener,
		func(pl *peacelink.PeaceLink) (*effect, error) {
			d := dispute.New(pl.ID, string(opener))
			return &effect{
				dispute: d,
				hold:    s.involvedWallets(pl),
				mutate: func(next *peacelink.PeaceLink) {
					next.DisputeID = &d.ID
				},
			}, nil
		})
	if err != nil {
		return nil, err
	}
	s.metrics.OpenDisputes.Inc()
	return res, nil
}

// ResolveDispute applies the admin decision. The DSP payout is computed
// here, never taken from the decision: the shares plus that payout must
// exactly drain the held total or the decision is rejected.
func (s *Service) ResolveDispute(ctx context.Context, id uuid.UUID, decision dispute.Decision, actor peacelink.Actor) (*Result, error) {
	res, err := s.transition(ctx, id, peacelink.TriggerAdminResolved, actor,
		func(pl *peacelink.PeaceLink) (*effect, error) {
			if pl.DisputeID == nil {
				return nil, fmt.Errorf("%w: disputed peacelink without dispute record", peacelink.ErrInvariantViolation)
			}
			d, err := s.disputes.GetByID(ctx, *pl.DisputeID)
			if err != nil {
				return nil, err
			}
			if d == nil {
				return nil, fmt.Errorf("%w: dispute record missing", peacelink.ErrInvariantViolation)
			}

			deltas, err := resolutionDeltas(pl, decision)
			if err != nil {
				return nil, err
			}
			d.Resolve(decision)
			return &effect{
				deltas:     deltas,
				heldChange: -pl.Held,
				dispute:    d,
				release:    s.involvedWallets(pl),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	s.metrics.OpenDisputes.Dec()
	return res, nil
}

// Expire forces a PeaceLink past its deadline into expired. Only valid
// before buyer approval; no funds were ever held.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (*Result, error) {
	return s.transition(ctx, id, peacelink.TriggerTimeout, peacelink.ActorSystem,
		func(pl *peacelink.PeaceLink) (*effect, error) {
			if s.now().Before(pl.ExpiresAt) {
				return nil, fmt.Errorf("%w: expiry deadline not reached", peacelink.ErrInvalidTransition)
			}
			return &effect{}, nil
		})
}

// GetPeaceLink returns the current entity.
func (s *Service) GetPeaceLink(ctx context.Context, id uuid.UUID) (*peacelink.PeaceLink, error) {
	pl, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		return nil, peacelink.ErrNotFound
	}
	return pl, nil
}

// GetState returns the current state.
func (s *Service) GetState(ctx context.Context, id uuid.UUID) (peacelink.State, error) {
	pl, err := s.GetPeaceLink(ctx, id)
	if err != nil {
		return "", err
	}
	return pl.State, nil
}

// GetAuditTrail returns the ordered transition history.
func (s *Service) GetAuditTrail(ctx context.Context, id uuid.UUID) ([]*peacelink.Transition, error) {
	return s.ledger.ListTransitions(ctx, id)
}

// ListByState lists PeaceLinks in the given state (admin dispute queue etc.).
func (s *Service) ListByState(ctx context.Context, state peacelink.State, limit, offset int) ([]*peacelink.PeaceLink, error) {
	return s.links.ListByState(ctx, state, limit, offset)
}

// effect is the computed side effect of one transition.
type effect struct {
	deltas     []wallet.Delta
	heldChange int64
	mutate     func(next *peacelink.PeaceLink)
	dispute    *dispute.Dispute
	hold       []uuid.UUID
	release    []uuid.UUID
}

// transition is the single path every state change takes: per-entity lock,
// table lookup, actor authorization, effect computation, invariant checks,
// atomic commit. Rejected requests leave the PeaceLink untouched.
func (s *Service) transition(
	ctx context.Context,
	id uuid.UUID,
	trigger peacelink.Trigger,
	actor peacelink.Actor,
	build func(pl *peacelink.PeaceLink) (*effect, error),
) (*Result, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	pl, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		return nil, peacelink.ErrNotFound
	}
	if pl.State.IsTerminal() {
		return nil, s.reject(fmt.Errorf("%w: %s", peacelink.ErrTerminalState, pl.State))
	}
	rule := peacelink.FindRule(pl.State, trigger)
	if rule == nil {
		return nil, s.reject(fmt.Errorf("%w: no edge from %s on %s", peacelink.ErrInvalidTransition, pl.State, trigger))
	}
	if !rule.Allows(actor) {
		return nil, s.reject(fmt.Errorf("%w: %s may not trigger %s from %s", peacelink.ErrUnauthorizedActor, actor, trigger, pl.State))
	}

	eff, err := build(pl)
	if err != nil {
		return nil, s.reject(err)
	}
	if err := checkInvariants(pl, rule, eff); err != nil {
		s.logger.Error().Err(err).
			Str("peaceLinkId", pl.ID.String()).
			Str("from", string(pl.State)).
			Str("to", string(rule.To)).
			Msg("transition aborted: invariant violation")
		return nil, s.reject(err)
	}

	next := pl.Clone()
	next.State = rule.To
	next.Held += eff.heldChange
	next.UpdatedAt = s.now()
	if eff.mutate != nil {
		eff.mutate(next)
	}

	record := peacelink.NewTransition(pl.ID, pl.State, rule.To, trigger, actor, eff.deltas)
	commit := peacelink.Commit{
		PeaceLink:      next,
		Record:         record,
		Dispute:        eff.dispute,
		HoldWallets:    eff.hold,
		ReleaseWallets: eff.release,
	}
	if err := s.ledger.CommitTransition(ctx, commit); err != nil {
		return nil, s.reject(err)
	}

	s.metrics.TransitionsTotal.WithLabelValues(string(rule.To)).Inc()
	s.logger.Info().
		Str("peaceLinkId", pl.ID.String()).
		Str("from", string(pl.State)).
		Str("to", string(rule.To)).
		Str("trigger", string(trigger)).
		Str("actor", string(actor)).
		Msg("transition committed")

	return &Result{PeaceLinkID: pl.ID, State: rule.To, Deltas: eff.deltas}, nil
}

// resolutionDeltas turns an admin decision into ledger deltas. The DSP
// payout, when a DSP is assigned, is fixed by the fee schedule and cannot be
// redirected by the decision.
func resolutionDeltas(pl *peacelink.PeaceLink, decision dispute.Decision) ([]wallet.Delta, error) {
	var dspPayout int64
	if pl.DSPAssigned() {
		breakdown := fees.Compute(pl.Amounts, pl.Schedule)
		dspPayout = pl.Amounts.Delivery - breakdown.DSPFee
	}
	if decision.BuyerShare < 0 || decision.MerchantShare < 0 || decision.PlatformShare < 0 {
		return nil, fmt.Errorf("%w: negative share in dispute decision", peacelink.ErrInvariantViolation)
	}
	if decision.BuyerShare+decision.MerchantShare+decision.PlatformShare+dspPayout != pl.Held {
		return nil, fmt.Errorf("%w: decision shares plus dsp payout must equal held total %d",
			peacelink.ErrInvariantViolation, pl.Held)
	}

	deltas := make([]wallet.Delta, 0, 4)
	if decision.BuyerShare > 0 {
		deltas = append(deltas, wallet.Delta{WalletID: pl.BuyerWalletID, Amount: decision.BuyerShare, Memo: "dispute resolution"})
	}
	if decision.MerchantShare > 0 {
		deltas = append(deltas, wallet.Delta{WalletID: pl.MerchantWallet, Amount: decision.MerchantShare, Memo: "dispute resolution"})
	}
	if decision.PlatformShare > 0 {
		deltas = append(deltas, wallet.Delta{WalletID: pl.PlatformWallet, Amount: decision.PlatformShare, Memo: "dispute resolution"})
	}
	if dspPayout > 0 {
		deltas = append(deltas, wallet.Delta{WalletID: *pl.DSPWalletID, Amount: dspPayout, Memo: "dsp payout on resolution"})
	}
	return deltas, nil
}

// checkInvariants guards every commit: deltas must balance against the
// escrow pot, the pot can never go negative, terminal states must drain it,
// and an assigned DSP must be credited on every terminal edge.
func checkInvariants(pl *peacelink.PeaceLink, rule *peacelink.Rule, eff *effect) error {
	if wallet.Sum(eff.deltas)+eff.heldChange != 0 {
		return fmt.Errorf("%w: deltas do not balance against held change", peacelink.ErrInvariantViolation)
	}
	held := pl.Held + eff.heldChange
	if held < 0 {
		return fmt.Errorf("%w: held amount would go negative", peacelink.ErrInvariantViolation)
	}
	if rule.To.IsTerminal() && held != 0 {
		return fmt.Errorf("%w: terminal state with %d still held", peacelink.ErrInvariantViolation, held)
	}
	if rule.To.IsTerminal() && pl.DSPAssigned() {
		var credited bool
		for _, d := range eff.deltas {
			if d.WalletID == *pl.DSPWalletID && d.Amount > 0 {
				credited = true
				break
			}
		}
		if !credited {
			return fmt.Errorf("%w: terminal transition drops dsp payout", peacelink.ErrInvariantViolation)
		}
	}
	return nil
}

func (s *Service) reject(err error) error {
	s.metrics.RejectedTotal.WithLabelValues(reasonFor(err)).Inc()
	return err
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, peacelink.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, peacelink.ErrUnauthorizedActor):
		return "unauthorized_actor"
	case errors.Is(err, peacelink.ErrTerminalState):
		return "terminal_state"
	case errors.Is(err, peacelink.ErrOTPMismatch):
		return "otp_mismatch"
	case errors.Is(err, peacelink.ErrInvalidActorForPhase):
		return "invalid_actor_for_phase"
	case errors.Is(err, peacelink.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, peacelink.ErrStaleState):
		return "stale_state"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "other"
	}
}

func (s *Service) involvedWallets(pl *peacelink.PeaceLink) []uuid.UUID {
	ids := []uuid.UUID{pl.BuyerWalletID, pl.MerchantWallet, pl.PlatformWallet}
	if pl.DSPAssigned() {
		ids = append(ids, *pl.DSPWalletID)
	}
	return ids
}

func (s *Service) requireWallet(ctx context.Context, id uuid.UUID, role wallet.Role) (*wallet.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%s wallet %s: %w", role, id, wallet.ErrNotFound)
	}
	if w.OwnerRole != role {
		return nil, fmt.Errorf("wallet %s has role %s, want %s: %w", id, w.OwnerRole, role, wallet.ErrNotFound)
	}
	return w, nil
}

// send delivers a notification outside the transition lock. Failures are
// logged, never retried synchronously, and never affect committed state.
func (s *Service) send(ctx context.Context, recipient string, template notify.Template, params map[string]string) {
	if err := s.notifier.Send(ctx, notify.Message{Recipient: recipient, Template: template, Params: params}); err != nil {
		s.logger.Warn().Err(err).
			Str("template", string(template)).
			Msg("notification delivery failed")
	}
}
