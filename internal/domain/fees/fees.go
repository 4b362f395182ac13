package fees

// Schedule defines the platform fee rates. Percentage rates are expressed in
// basis points, fixed components in minor currency units. A Schedule is
// snapshotted by value into every PeaceLink at creation; later changes to the
// platform schedule never affect in-flight transactions.
type Schedule struct {
	MerchantRateBps int64 `json:"merchantRateBps"`
	MerchantFixed   int64 `json:"merchantFixed"`
	DSPRateBps      int64 `json:"dspRateBps"`
	AdvanceRateBps  int64 `json:"advanceRateBps"`
	CashOutRateBps  int64 `json:"cashOutRateBps"`
}

// DefaultSchedule mirrors the production fee structure: merchant 0.5% + 2.00
// fixed, DSP 0.5% of the delivery fee, advance 0.5% with no fixed part,
// cash-out 1.5%.
func DefaultSchedule() Schedule {
	return Schedule{
		MerchantRateBps: 50,
		MerchantFixed:   200,
		DSPRateBps:      50,
		AdvanceRateBps:  50,
		CashOutRateBps:  150,
	}
}

// Amounts holds the monetary components of a PeaceLink in minor units.
type Amounts struct {
	Item     int64 `json:"item"`
	Delivery int64 `json:"delivery"`
	Advance  int64 `json:"advance"`
}

// Total is the full amount held from the buyer.
func (a Amounts) Total() int64 {
	return a.Item + a.Delivery
}

// Breakdown is the result of a fee computation.
type Breakdown struct {
	MerchantFee int64 `json:"merchantFee"`
	DSPFee      int64 `json:"dspFee"`
	AdvanceFee  int64 `json:"advanceFee"`
}

// Compute derives all escrow fees from the given amounts and schedule. The
// merchant fee (rate + fixed) applies to the item amount at final release
// only; the DSP fee applies to the delivery fee amount; the advance fee
// applies to the advance amount with no fixed component.
func Compute(amounts Amounts, schedule Schedule) Breakdown {
	return Breakdown{
		MerchantFee: MulBps(amounts.Item, schedule.MerchantRateBps) + schedule.MerchantFixed,
		DSPFee:      MulBps(amounts.Delivery, schedule.DSPRateBps),
		AdvanceFee:  MulBps(amounts.Advance, schedule.AdvanceRateBps),
	}
}

// CashOutFee returns the fee deducted from a withdrawal request.
func CashOutFee(amount int64, schedule Schedule) int64 {
	return MulBps(amount, schedule.CashOutRateBps)
}

// MulBps multiplies an amount by a basis-point rate in integer minor units
// using round-half-even. Every rate in the engine goes through this one
// helper so rounding stays uniform and transaction deltas sum exactly.
func MulBps(amount, bps int64) int64 {
	product := amount * bps
	quotient := product / 10_000
	remainder := product % 10_000
	if remainder < 0 {
		remainder = -remainder
	}
	double := remainder * 2
	if double > 10_000 || (double == 10_000 && quotient%2 != 0) {
		if product < 0 {
			quotient--
		} else {
			quotient++
		}
	}
	return quotient
}
