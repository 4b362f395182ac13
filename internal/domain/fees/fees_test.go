package fees

import "testing"

func TestMulBpsRoundHalfEven(t *testing.T) {
	cases := []struct {
		amount int64
		bps    int64
		want   int64
	}{
		{100000, 50, 500}, // 0.5% of 1000.00
		{10000, 50, 50},   // 0.5% of 100.00
		{100, 50, 0},      // 0.5 rounds to 0 (even)
		{300, 50, 2},      // 1.5 rounds to 2 (even)
		{500, 50, 2},      // 2.5 rounds to 2 (even)
		{700, 50, 4},      // 3.5 rounds to 4 (even)
		{101, 50, 1},      // 0.505 rounds to 1
		{0, 50, 0},
		{100000, 0, 0},
		{100000, 150, 1500}, // 1.5% cash-out
	}
	for _, c := range cases {
		if got := MulBps(c.amount, c.bps); got != c.want {
			t.Fatalf("MulBps(%d, %d) = %d, want %d", c.amount, c.bps, got, c.want)
		}
	}
}

func TestComputeReferenceScenario(t *testing.T) {
	// Item 1000.00, delivery 100.00, merchant 0.5%+2.00, DSP 0.5%.
	amounts := Amounts{Item: 100000, Delivery: 10000}
	b := Compute(amounts, DefaultSchedule())
	if b.MerchantFee != 700 {
		t.Fatalf("merchant fee = %d, want 700", b.MerchantFee)
	}
	if b.DSPFee != 50 {
		t.Fatalf("dsp fee = %d, want 50", b.DSPFee)
	}
	if b.AdvanceFee != 0 {
		t.Fatalf("advance fee = %d, want 0", b.AdvanceFee)
	}
}

func TestComputeAdvanceFeeNoFixedComponent(t *testing.T) {
	amounts := Amounts{Item: 100000, Delivery: 10000, Advance: 50000}
	b := Compute(amounts, DefaultSchedule())
	if b.AdvanceFee != 250 {
		t.Fatalf("advance fee = %d, want 250", b.AdvanceFee)
	}
}

func TestCashOutFee(t *testing.T) {
	if got := CashOutFee(10000, DefaultSchedule()); got != 150 {
		t.Fatalf("cash-out fee = %d, want 150", got)
	}
}

func TestScheduleIsValueSnapshot(t *testing.T) {
	schedule := DefaultSchedule()
	frozen := schedule
	schedule.MerchantRateBps = 900
	schedule.MerchantFixed = 5000

	b := Compute(Amounts{Item: 100000, Delivery: 10000}, frozen)
	if b.MerchantFee != 700 {
		t.Fatalf("frozen schedule affected by mutation: merchant fee = %d", b.MerchantFee)
	}
}
