package escrow

import (
	"fmt"

	"github.com/peacelink/peacelink/internal/domain/fees"
	"github.com/peacelink/peacelink/internal/domain/peacelink"
	"github.com/peacelink/peacelink/internal/domain/wallet"
)

// cancellationDeltas resolves the cancellation matrix for the PeaceLink's
// current phase and the initiating party. It returns the wallet deltas and
// the change to the escrowed total. Phases past dsp_assigned have no row:
// cancel after delivered or during a dispute is not a policy this engine
// infers.
//
// Matrix:
//
//	phase            initiator  buyer refund      DSP payout        merchant            platform
//	pending_approval any        nothing held      -                 -                   -
//	sph_active       buyer/mer  full (item+del)   -                 returns advance     keeps advance fee
//	dsp_assigned     buyer      item only         delivery - fee    returns advance     keeps fees
//	dsp_assigned     merchant   full (item+del)   delivery - fee    pays delivery+adv   keeps fees
func cancellationDeltas(pl *peacelink.PeaceLink, initiator peacelink.Actor) ([]wallet.Delta, int64, error) {
	if initiator != peacelink.ActorBuyer && initiator != peacelink.ActorMerchant {
		return nil, 0, fmt.Errorf("%w: %s cancel in %s", peacelink.ErrInvalidActorForPhase, initiator, pl.State)
	}

	total := pl.Amounts.Total()
	advance := pl.AdvanceAmount()

	switch pl.State {
	case peacelink.StatePendingApproval:
		// No funds held before buyer approval.
		return nil, 0, nil

	case peacelink.StateSPHActive:
		// Full refund. The merchant returns any advance already paid; the
		// platform keeps the advance fee it earned.
		deltas := []wallet.Delta{
			{WalletID: pl.BuyerWalletID, Amount: total, Memo: "cancel refund"},
		}
		if advance > 0 {
			deltas = append(deltas, wallet.Delta{
				WalletID: pl.MerchantWallet, Amount: -advance, Memo: "advance returned on cancel",
			})
		}
		return deltas, -(total - advance), nil

	case peacelink.StateDSPAssigned:
		breakdown := fees.Compute(pl.Amounts, pl.Schedule)
		dspPayout := pl.Amounts.Delivery - breakdown.DSPFee

		switch initiator {
		case peacelink.ActorBuyer:
			// Buyer walks away after assignment: item refunded, the delivery
			// fee portion funds the DSP payout and platform fee.
			deltas := []wallet.Delta{
				{WalletID: pl.BuyerWalletID, Amount: pl.Amounts.Item, Memo: "cancel refund (item only)"},
				{WalletID: *pl.DSPWalletID, Amount: dspPayout, Memo: "dsp payout on buyer cancel"},
				{WalletID: pl.PlatformWallet, Amount: breakdown.DSPFee, Memo: "dsp fee retained"},
			}
			if advance > 0 {
				deltas = append(deltas, wallet.Delta{
					WalletID: pl.MerchantWallet, Amount: -advance, Memo: "advance returned on cancel",
				})
			}
			return deltas, -(total - advance), nil

		case peacelink.ActorMerchant:
			// Merchant cancels after assignment: buyer made whole, merchant
			// covers the DSP payout out of pocket and returns the advance.
			deltas := []wallet.Delta{
				{WalletID: pl.BuyerWalletID, Amount: total, Memo: "cancel refund (full)"},
				{WalletID: *pl.DSPWalletID, Amount: dspPayout, Memo: "dsp payout on merchant cancel"},
				{WalletID: pl.PlatformWallet, Amount: breakdown.DSPFee, Memo: "dsp fee retained"},
				{WalletID: pl.MerchantWallet, Amount: -(pl.Amounts.Delivery + advance), Memo: "merchant covers dsp payout"},
			}
			return deltas, -(total - advance), nil
		}
	}

	return nil, 0, fmt.Errorf("%w: %s cancel in %s", peacelink.ErrInvalidActorForPhase, initiator, pl.State)
}
