/**
 * @description
 * Receipt and notification text composition. These are pure functions over value
 * types so message copy can be unit-tested without a live chat channel. Receipts
 * never disclose the balance; the balance goes out as a separate follow-up.
 */

package domain

import (
	"fmt"
	"strings"
	"time"
)

// FormatNaira renders a kobo amount as a naira string with two decimal places
// and comma grouping, e.g. 500000 -> "₦5,000.00".
func FormatNaira(kobo int64) string {
	sign := ""
	if kobo < 0 {
		sign = "-"
		kobo = -kobo
	}
	naira := kobo / 100
	cents := kobo % 100

	digits := fmt.Sprintf("%d", naira)
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	return fmt.Sprintf("%s₦%s.%02d", sign, strings.Join(groups, ","), cents)
}

// Receipt is the value a settled transfer renders from.
type Receipt struct {
	Amount        int64 // in kobo
	RecipientName string
	BankName      string
	AccountNumber string
	Reference     string
	Date          time.Time
}

// Text renders the concise transfer receipt pushed to the chat channel. A zero
// Date is left out of the copy.
func (r Receipt) Text() string {
	tail := "Ref " + r.Reference
	if !r.Date.IsZero() {
		tail += " · " + r.Date.Format("2 Jan 2006, 15:04")
	}
	return fmt.Sprintf("✅ Transfer successful. %s to %s · %s · %s. %s.",
		FormatNaira(r.Amount), r.RecipientName, r.BankName, r.AccountNumber, tail)
}

// BalanceFollowUp renders the separate message that conveys the new balance.
func BalanceFollowUp(balance int64) string {
	return fmt.Sprintf("Your new balance is %s.", FormatNaira(balance))
}

// CreditAlert renders the notification for an inbound credit. Sender details are
// included when the webhook carried them.
func CreditAlert(amount, newBalance int64, senderName, senderBank string) string {
	if senderName != "" && senderBank != "" {
		return fmt.Sprintf("You received %s from %s · %s. New balance: %s.",
			FormatNaira(amount), senderName, senderBank, FormatNaira(newBalance))
	}
	return fmt.Sprintf("You received %s. New balance: %s.", FormatNaira(amount), FormatNaira(newBalance))
}

// TransferFailedAlert renders the notification for a failed transfer after the
// debit has been reversed. The reason is the provider's code already mapped to a
// friendly string.
func TransferFailedAlert(amount int64, recipientName, reason string) string {
	return fmt.Sprintf("❌ Transfer of %s to %s failed: %s. Your balance has been restored.",
		FormatNaira(amount), recipientName, reason)
}
