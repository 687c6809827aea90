/**
 * @description
 * Transaction-log and transfer state machine models. The transactions table is
 * append-only; the unique provider reference is the idempotency primitive that
 * suppresses duplicate credits and duplicate user notifications.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types.
const (
	TxTypeCredit = "credit"
	TxTypeDebit  = "debit"
	TxTypeFee    = "fee"
)

// Transaction statuses. Status transitions monotonically pending -> completed/failed.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction is one row of the append-only money-movement log.
type Transaction struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	Type                string    `json:"type"`      // credit | debit | fee
	Amount              int64     `json:"amount"`    // in kobo
	Fee                 int64     `json:"fee"`       // in kobo; the fee itself is booked as a separate row
	Status              string    `json:"status"`    // pending | completed | failed
	Reference           string    `json:"reference"` // provider reference, unique
	Narration           string    `json:"narration"`
	CounterpartyName    string    `json:"counterparty_name,omitempty"`
	CounterpartyAccount string    `json:"counterparty_account,omitempty"`
	CounterpartyBank    string    `json:"counterparty_bank,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Transfer request states. A request in awaiting_pin holds the only outstanding
// secure token for that request.
const (
	TransferAwaitingPIN = "awaiting_pin"
	TransferAuthorized  = "authorized"
	TransferSubmitted   = "submitted"
	TransferSettled     = "settled"
	TransferFailed      = "failed"
	TransferExpired     = "expired"
)

// TransferRequest is the multi-step state for one outbound transfer, created when
// the user confirms a resolved recipient and destroyed when terminal or expired.
type TransferRequest struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount"` // in kobo, excludes fee
	Fee           int64     `json:"fee"`    // in kobo
	AccountNumber string    `json:"account_number"`
	BankCode      string    `json:"bank_code"`
	BankName      string    `json:"bank_name"`
	AccountName   string    `json:"account_name"` // resolved holder name
	RecipientCode string    `json:"recipient_code,omitempty"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference,omitempty"` // provider transfer reference, set on submit
	Narration     string    `json:"narration,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the request's PIN window has lapsed.
func (t *TransferRequest) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TransferRecipient caches the provider-side recipient object per
// (account, bank) pair so repeat transfers skip recipient creation.
type TransferRecipient struct {
	UserID        uuid.UUID `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	BankCode      string    `json:"bank_code"`
	RecipientCode string    `json:"recipient_code"`
}

// TransferFee computes the fee for an outbound transfer amount: a flat part plus
// a percentage given in basis points, with the total capped. Kobo in, kobo out.
func TransferFee(amount, flat, percentBps, cap int64) int64 {
	fee := flat + amount*percentBps/10000
	if fee > cap {
		fee = cap
	}
	return fee
}
