/**
 * @description
 * This file contains the core business logic for the banking assistant. The
 * `Service` struct orchestrates wallet operations, coordinating between the
 * database repository, the Paystack API client, the WhatsApp sender, the
 * airtime vendor and the message broker.
 *
 * Key features:
 * - Balance, history and beneficiary operations backed by the repository.
 * - Account name resolution against Paystack with bank directory lookup.
 * - Transaction PIN lifecycle: set, verify with lockout, reset on success.
 * - Airtime purchases debited from the wallet with refund on vendor failure.
 * - Onboarding: user creation plus provider customer and virtual account.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/paystackclient, pkg/airtimeclient, pkg/rabbitmq: External services.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sofihq/sofi-backend/internal/domain"
	"github.com/sofihq/sofi-backend/internal/security"
	"github.com/sofihq/sofi-backend/internal/store"
	"github.com/sofihq/sofi-backend/internal/token"
	"github.com/sofihq/sofi-backend/pkg/airtimeclient"
	"github.com/sofihq/sofi-backend/pkg/paystackclient"
	"github.com/sofihq/sofi-backend/pkg/rabbitmq"
)

// PaystackAPI is the subset of the Paystack client the service depends on.
type PaystackAPI interface {
	CreateCustomer(ctx context.Context, email, firstName, lastName, phone string) (*paystackclient.Customer, error)
	CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*paystackclient.DedicatedAccount, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*paystackclient.ResolvedAccount, error)
	CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*paystackclient.TransferRecipient, error)
	InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amount int64) (*paystackclient.Transfer, error)
}

// Messenger is the subset of the WhatsApp client the service depends on.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendLinkButton(ctx context.Context, to, body, buttonText, buttonURL string) error
	MarkReadWithTyping(ctx context.Context, messageID string) error
}

// AirtimeVendor is the subset of the VTU client the service depends on.
type AirtimeVendor interface {
	BuyAirtime(ctx context.Context, network, phone string, amountNaira int64, requestID string) (*airtimeclient.Order, error)
}

// Limits bundles the transfer and PIN policy knobs from configuration.
type Limits struct {
	MinTransfer       int64
	MaxTransfer       int64
	MaxDailyAmount    int64
	MaxDailyTransfers int
	FeeFlat           int64
	FeeBps            int64
	FeeCap            int64
	PINMaxAttempts    int
	PINLockoutSeconds int
	TokenTTL          time.Duration
}

// Service provides the core business logic for the assistant's banking operations.
type Service struct {
	repo          store.Repository
	paystack      PaystackAPI
	messenger     Messenger
	airtime       AirtimeVendor
	tokens        *token.Manager
	hasher        *security.PINHasher
	eventProducer rabbitmq.Publisher
	limits        Limits
	baseURL       string

	now func() time.Time
}

// NewService creates a new service instance.
func NewService(repo store.Repository, paystack PaystackAPI, messenger Messenger, airtime AirtimeVendor, tokens *token.Manager, hasher *security.PINHasher, producer rabbitmq.Publisher, limits Limits, baseURL string) *Service {
	return &Service{
		repo:          repo,
		paystack:      paystack,
		messenger:     messenger,
		airtime:       airtime,
		tokens:        tokens,
		hasher:        hasher,
		eventProducer: producer,
		limits:        limits,
		baseURL:       strings.TrimRight(baseURL, "/"),
		now:           time.Now,
	}
}

// UserByWhatsAppNumber resolves the sender of an inbound message.
func (s *Service) UserByWhatsAppNumber(ctx context.Context, number string) (*domain.User, error) {
	return s.repo.FindUserByWhatsAppNumber(ctx, number)
}

// CheckBalance returns the user's current wallet balance in kobo. A negative
// cache means a write went wrong somewhere; the ledger is authoritative, so
// the cache is recomputed from it before answering.
func (s *Service) CheckBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.CachedBalance < 0 {
		log.Printf("level=warn component=service op=check_balance msg=\"negative cached balance; recomputing from ledger\" user_id=%s", userID)
		return s.repo.RecomputeBalance(ctx, userID)
	}
	return user.CachedBalance, nil
}

// VirtualAccount returns the user's funding account details.
func (s *Service) VirtualAccount(ctx context.Context, userID uuid.UUID) (*domain.VirtualAccount, error) {
	return s.repo.FindVirtualAccountByUserID(ctx, userID)
}

// ResolvedDestination is a verified transfer destination.
type ResolvedDestination struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code"`
}

// ResolveDestination verifies the registered holder name for an account number
// and a bank given by name, alias or code.
func (s *Service) ResolveDestination(ctx context.Context, accountNumber, bank string) (*ResolvedDestination, error) {
	entry, ok := domain.ResolveBank(bank)
	if !ok {
		return nil, domain.NewToolError(domain.ErrKindUnsupportedBank)
	}

	resolved, err := s.paystack.ResolveAccount(ctx, accountNumber, entry.Code)
	if err != nil {
		var apiErr *paystackclient.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return nil, domain.NewToolError(domain.ErrKindAccountNotFound)
		}
		log.Printf("level=error component=service op=resolve_destination bank_code=%s error=%q", entry.Code, err)
		return nil, domain.NewToolError(domain.ErrKindProviderUnavailable)
	}

	return &ResolvedDestination{
		AccountNumber: resolved.AccountNumber,
		AccountName:   resolved.AccountName,
		BankName:      entry.Name,
		BankCode:      entry.Code,
	}, nil
}

// TransferHistory returns the user's most recent ledger entries.
func (s *Service) TransferHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID, limit)
}

// SetTransactionPIN hashes and stores a new transaction PIN for the user.
// Changing an existing PIN requires the current one to verify first.
func (s *Service) SetTransactionPIN(ctx context.Context, userID uuid.UUID, pin, oldPIN string) error {
	if !security.ValidPINFormat(pin) {
		return &domain.ToolError{Kind: domain.ErrKindPINIncorrect, Message: "Your PIN must be exactly 4 digits."}
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPIN() {
		if oldPIN == "" {
			return &domain.ToolError{Kind: domain.ErrKindPINIncorrect, Message: "You already have a PIN. Tell me your current PIN to change it."}
		}
		if err := s.VerifyPIN(ctx, userID, oldPIN); err != nil {
			return err
		}
	}
	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPINHash(ctx, userID, hash); err != nil {
		return err
	}
	return s.repo.ResetPINAttempts(ctx, userID)
}

// VerifyPIN checks a PIN against the user's stored hash with lockout handling.
// The lockout check happens before any hashing so a locked account fails fast.
func (s *Service) VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	rec, err := s.repo.GetPINAttemptRecord(ctx, userID)
	if err != nil {
		return err
	}
	if rec.Locked(s.now()) {
		return domain.NewToolError(domain.ErrKindPINLocked)
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPIN() {
		return &domain.ToolError{Kind: domain.ErrKindPINIncorrect, Message: "You haven't set a transaction PIN yet."}
	}

	ok, err := s.hasher.Verify(pin, *user.PINHash)
	if err != nil {
		return err
	}
	if !ok {
		updated, recErr := s.repo.RecordFailedPINAttempt(ctx, userID, s.limits.PINMaxAttempts, s.limits.PINLockoutSeconds)
		if recErr != nil {
			return recErr
		}
		if updated.Locked(s.now()) {
			return domain.NewToolError(domain.ErrKindPINLocked)
		}
		remaining := s.limits.PINMaxAttempts - updated.FailedAttempts
		return &domain.ToolError{
			Kind:    domain.ErrKindPINIncorrect,
			Message: fmt.Sprintf("Incorrect PIN. You have %d attempt(s) left.", remaining),
		}
	}

	return s.repo.ResetPINAttempts(ctx, userID)
}

// SaveBeneficiary resolves and stores a transfer destination under a nickname.
func (s *Service) SaveBeneficiary(ctx context.Context, userID uuid.UUID, nickname, accountNumber, bank string) (*domain.Beneficiary, error) {
	dest, err := s.ResolveDestination(ctx, accountNumber, bank)
	if err != nil {
		return nil, err
	}

	b := &domain.Beneficiary{
		ID:            uuid.New(),
		UserID:        userID,
		Nickname:      strings.TrimSpace(nickname),
		AccountNumber: dest.AccountNumber,
		BankCode:      dest.BankCode,
		BankName:      dest.BankName,
		AccountName:   dest.AccountName,
	}
	if err := s.repo.SaveBeneficiary(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBeneficiaries returns the user's saved beneficiaries.
func (s *Service) ListBeneficiaries(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	return s.repo.FindBeneficiariesByUserID(ctx, userID)
}

// DeleteBeneficiary removes a saved beneficiary by nickname.
func (s *Service) DeleteBeneficiary(ctx context.Context, userID uuid.UUID, nickname string) error {
	return s.repo.DeleteBeneficiary(ctx, userID, nickname)
}

// FindBeneficiary looks up a saved beneficiary by nickname.
func (s *Service) FindBeneficiary(ctx context.Context, userID uuid.UUID, nickname string) (*domain.Beneficiary, error) {
	return s.repo.FindBeneficiaryByNickname(ctx, userID, nickname)
}

// BuyAirtime purchases airtime for a phone number out of the user's wallet.
// The wallet is debited first and refunded if the vendor rejects the order. A
// non-empty carrier overrides prefix inference, which is wrong for ported
// numbers.
func (s *Service) BuyAirtime(ctx context.Context, userID uuid.UUID, phone, carrier string, amount int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Airtime amount must be positive."}
	}
	if amount%100 != 0 {
		return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Airtime amount must be a whole naira value."}
	}

	var network string
	if carrier != "" {
		var ok bool
		network, ok = airtimeclient.NetworkForName(carrier)
		if !ok {
			return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "I don't recognize that network. Try MTN, Glo, Airtel or 9mobile."}
		}
	} else {
		var ok bool
		network, ok = airtimeclient.NetworkForPrefix(phone)
		if !ok {
			return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "I couldn't recognize the network for that phone number. Which network is it on?"}
		}
	}

	if _, err := s.repo.DebitBalance(ctx, userID, amount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return nil, domain.NewToolError(domain.ErrKindInsufficientFunds)
		}
		return nil, err
	}

	reference := "AIR_" + uuid.NewString()
	order, err := s.airtime.BuyAirtime(ctx, network, phone, amount/100, reference)
	if err != nil || !order.Successful() {
		if _, refundErr := s.repo.CreditBalance(ctx, userID, amount); refundErr != nil {
			log.Printf("level=error component=service op=buy_airtime msg=\"refund after vendor failure failed\" user_id=%s amount=%d error=%q", userID, amount, refundErr)
		}
		if err != nil {
			log.Printf("level=error component=service op=buy_airtime error=%q", err)
			return nil, domain.NewToolError(domain.ErrKindProviderUnavailable)
		}
		return nil, &domain.ToolError{Kind: domain.ErrKindProviderUnavailable, Message: "The airtime purchase was declined. You have not been charged."}
	}

	txn := &domain.Transaction{
		ID:                  uuid.New(),
		UserID:              userID,
		Type:                domain.TxTypeDebit,
		Amount:              amount,
		Status:              domain.TxStatusCompleted,
		Reference:           reference,
		Narration:           "Airtime top-up " + phone,
		CounterpartyAccount: phone,
	}
	if _, err := s.repo.AppendTransactionIfAbsent(ctx, txn); err != nil {
		log.Printf("level=error component=service op=buy_airtime msg=\"ledger append failed\" reference=%s error=%q", reference, err)
	}

	s.eventProducer.PublishWalletEvent(ctx, rabbitmq.RoutingAirtimePurchase, rabbitmq.WalletEvent{
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		Detail:    phone,
	})

	return txn, nil
}

// OnboardParams carries the details collected by the onboarding form.
type OnboardParams struct {
	WhatsAppNumber string
	FullName       string
	Email          string
	PIN            string
}

// Onboard registers a new user: a provider customer, a dedicated virtual
// account, and the local user row with their first transaction PIN.
func (s *Service) Onboard(ctx context.Context, params OnboardParams) (*domain.User, *domain.VirtualAccount, error) {
	if !security.ValidPINFormat(params.PIN) {
		return nil, nil, &domain.ToolError{Kind: domain.ErrKindPINIncorrect, Message: "Your PIN must be exactly 4 digits."}
	}
	fullName := strings.TrimSpace(params.FullName)
	if fullName == "" || params.Email == "" {
		return nil, nil, errors.New("full name and email are required")
	}

	if existing, err := s.repo.FindUserByWhatsAppNumber(ctx, params.WhatsAppNumber); err == nil {
		account, accErr := s.repo.FindVirtualAccountByUserID(ctx, existing.ID)
		if accErr != nil {
			return nil, nil, accErr
		}
		return existing, account, nil
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, nil, err
	}

	firstName, lastName := splitName(fullName)
	customer, err := s.paystack.CreateCustomer(ctx, params.Email, firstName, lastName, params.WhatsAppNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider customer: %w", err)
	}

	dva, err := s.paystack.CreateDedicatedAccount(ctx, customer.CustomerCode, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create virtual account: %w", err)
	}

	pinHash, err := s.hasher.Hash(params.PIN)
	if err != nil {
		return nil, nil, err
	}

	user := &domain.User{
		ID:             uuid.New(),
		WhatsAppNumber: params.WhatsAppNumber,
		FullName:       fullName,
		Email:          &params.Email,
		PINHash:        &pinHash,
		CustomerCode:   &customer.CustomerCode,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	account := &domain.VirtualAccount{
		ID:            uuid.New(),
		UserID:        user.ID,
		AccountNumber: dva.AccountNumber,
		BankName:      dva.Bank.Name,
		BankCode:      dva.Bank.Code,
		AccountName:   dva.AccountName,
		CustomerCode:  customer.CustomerCode,
	}
	if err := s.repo.CreateVirtualAccount(ctx, account); err != nil {
		return nil, nil, err
	}

	log.Printf("level=info component=service op=onboard user_id=%s account_number=%s", user.ID, account.AccountNumber)
	return user, account, nil
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], parts[0]
	}
	return parts[0], strings.Join(parts[1:], " ")
}
