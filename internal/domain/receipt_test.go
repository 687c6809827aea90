package domain

import (
	"testing"
	"time"
)

func TestFormatNaira(t *testing.T) {
	cases := map[int64]string{
		0:          "₦0.00",
		100:        "₦1.00",
		100000:     "₦1,000.00",
		101000:     "₦1,010.00",
		500000:     "₦5,000.00",
		50000000:   "₦500,000.00",
		200000000:  "₦2,000,000.00",
		123456789:  "₦1,234,567.89",
		-100000:    "-₦1,000.00",
	}
	for kobo, want := range cases {
		if got := FormatNaira(kobo); got != want {
			t.Fatalf("FormatNaira(%d) = %q, want %q", kobo, got, want)
		}
	}
}

func TestReceiptText(t *testing.T) {
	r := Receipt{
		Amount:        100000,
		RecipientName: "JOHN DOE",
		BankName:      "OPay",
		AccountNumber: "8104611794",
		Reference:     "TRF_1",
		Date:          time.Date(2025, 7, 3, 10, 0, 0, 0, time.UTC),
	}
	want := "✅ Transfer successful. ₦1,000.00 to JOHN DOE · OPay · 8104611794. Ref TRF_1 · 3 Jul 2025, 10:00."
	if got := r.Text(); got != want {
		t.Fatalf("receipt text = %q, want %q", got, want)
	}
}

func TestReceiptTextWithoutDate(t *testing.T) {
	r := Receipt{Amount: 100000, RecipientName: "JOHN DOE", BankName: "OPay", AccountNumber: "8104611794", Reference: "TRF_1"}
	want := "✅ Transfer successful. ₦1,000.00 to JOHN DOE · OPay · 8104611794. Ref TRF_1."
	if got := r.Text(); got != want {
		t.Fatalf("receipt text = %q, want %q", got, want)
	}
}

func TestReceiptTextOmitsBalance(t *testing.T) {
	r := Receipt{Amount: 100000, RecipientName: "JOHN DOE", BankName: "OPay", AccountNumber: "8104611794", Reference: "TRF_1"}
	if got := r.Text(); len(got) == 0 || containsAny(got, "balance", "Balance") {
		t.Fatalf("receipt body must not disclose balance: %q", got)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
	}
	return false
}

func TestCreditAlert(t *testing.T) {
	got := CreditAlert(500000, 1200000, "", "")
	want := "You received ₦5,000.00. New balance: ₦12,000.00."
	if got != want {
		t.Fatalf("credit alert = %q, want %q", got, want)
	}

	withSender := CreditAlert(500000, 1200000, "JANE ROE", "GTBank")
	wantSender := "You received ₦5,000.00 from JANE ROE · GTBank. New balance: ₦12,000.00."
	if withSender != wantSender {
		t.Fatalf("credit alert = %q, want %q", withSender, wantSender)
	}
}

func TestTransferFailedAlert(t *testing.T) {
	got := TransferFailedAlert(100000, "JOHN DOE", "insufficient funds")
	want := "❌ Transfer of ₦1,000.00 to JOHN DOE failed: insufficient funds. Your balance has been restored."
	if got != want {
		t.Fatalf("failure alert = %q, want %q", got, want)
	}
}

func TestTransferFee(t *testing.T) {
	// Default policy: flat ₦10, no percentage (kobo values).
	if got := TransferFee(100000, 1000, 0, 10000); got != 1000 {
		t.Fatalf("flat fee for ₦1,000 = %d, want 1000", got)
	}

	// With the 0.5% percentage enabled, the total is capped at ₦100.
	cases := []struct {
		amount, want int64
	}{
		{100000, 1500},    // ₦1,000 -> ₦10 + ₦5
		{10000, 1050},     // ₦100 -> ₦10 + ₦0.50
		{2000000, 10000},  // ₦20,000 -> ₦10 + ₦100 hits the cap
		{50000000, 10000}, // ₦500,000 -> capped
	}
	for _, c := range cases {
		if got := TransferFee(c.amount, 1000, 50, 10000); got != c.want {
			t.Fatalf("TransferFee(%d) = %d, want %d", c.amount, got, c.want)
		}
	}
}
