/**
 * @description
 * This file defines the core user-facing domain models: the user record with
 * its cached wallet balance, the dedicated virtual account funding the wallet,
 * saved beneficiaries, conversation thread bindings, and PIN attempt state.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For UUID identifiers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the messaging surface a user converses on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
)

// User represents a registered account holder keyed by WhatsApp number.
type User struct {
	ID             uuid.UUID  `json:"id"`
	WhatsAppNumber string     `json:"whatsapp_number"`
	FullName       string     `json:"full_name"`
	Email          *string    `json:"email,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	CachedBalance  int64      `json:"cached_balance"`
	PINHash        *string    `json:"-"`
	CustomerCode   *string    `json:"paystack_customer_code,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasPIN reports whether the user has set a transaction PIN.
func (u *User) HasPIN() bool {
	return u.PINHash != nil && *u.PINHash != ""
}

// VirtualAccount is the dedicated NUBAN issued for funding a user's wallet.
type VirtualAccount struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	BankName      string    `json:"bank_name"`
	BankCode      string    `json:"bank_code"`
	AccountName   string    `json:"account_name"`
	CustomerCode  string    `json:"customer_code"`
	CreatedAt     time.Time `json:"created_at"`
}

// Beneficiary is a saved transfer destination addressable by nickname.
type Beneficiary struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Nickname      string    `json:"nickname"`
	AccountNumber string    `json:"account_number"`
	BankCode      string    `json:"bank_code"`
	BankName      string    `json:"bank_name"`
	AccountName   string    `json:"account_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationThread binds a user and channel to an assistant thread id.
type ConversationThread struct {
	UserID   uuid.UUID `json:"user_id"`
	Channel  Channel   `json:"channel"`
	ThreadID string    `json:"thread_id"`
}

// PINAttemptRecord tracks failed PIN verification attempts and lockout state.
type PINAttemptRecord struct {
	UserID         uuid.UUID  `json:"user_id"`
	FailedAttempts int        `json:"failed_attempts"`
	LastFailedAt   *time.Time `json:"last_failed_at,omitempty"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// Locked reports whether the record is under an active lockout at the given time.
func (p *PINAttemptRecord) Locked(now time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}
