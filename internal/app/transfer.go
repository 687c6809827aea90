/**
 * @description
 * This file implements the interbank transfer flow. A transfer starts as a
 * request awaiting PIN authorization, reachable only through a one-time secure
 * token link. Authorization verifies the PIN, consumes the token, debits the
 * wallet and submits the transfer to Paystack. Settlement and failure arrive
 * asynchronously over webhooks: settlement sends the receipt, failure reverses
 * the debit and tells the user their balance is restored.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store, internal/token: State and persistence.
 * - pkg/paystackclient, pkg/rabbitmq: External services.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/sofihq/sofi-backend/internal/domain"
	"github.com/sofihq/sofi-backend/internal/store"
	"github.com/sofihq/sofi-backend/internal/token"
	"github.com/sofihq/sofi-backend/pkg/paystackclient"
	"github.com/sofihq/sofi-backend/pkg/rabbitmq"
)

// PendingTransfer is what the send_money tool returns: a transfer parked in
// awaiting_pin plus the link the user must open to authorize it.
type PendingTransfer struct {
	TransferID  uuid.UUID `json:"transfer_id"`
	Amount      int64     `json:"amount"`
	Fee         int64     `json:"fee"`
	AccountName string    `json:"account_name"`
	BankName    string    `json:"bank_name"`
	AuthURL     string    `json:"auth_url"`
}

// BeginTransfer validates a transfer intent, parks it awaiting PIN entry, and
// returns the one-time authorization link. No money moves here.
func (s *Service) BeginTransfer(ctx context.Context, userID uuid.UUID, amount int64, accountNumber, bank, narration string) (*PendingTransfer, error) {
	if amount < s.limits.MinTransfer {
		return nil, &domain.ToolError{
			Kind:    domain.ErrKindTransferLimit,
			Message: fmt.Sprintf("The minimum transfer is %s.", domain.FormatNaira(s.limits.MinTransfer)),
		}
	}
	if amount > s.limits.MaxTransfer {
		return nil, &domain.ToolError{
			Kind:    domain.ErrKindTransferLimit,
			Message: fmt.Sprintf("The maximum per transfer is %s.", domain.FormatNaira(s.limits.MaxTransfer)),
		}
	}

	dailyAmount, dailyCount, err := s.repo.DailyDebitTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if dailyCount >= s.limits.MaxDailyTransfers {
		return nil, &domain.ToolError{
			Kind:    domain.ErrKindTransferLimit,
			Message: fmt.Sprintf("You've reached your limit of %d transfers today.", s.limits.MaxDailyTransfers),
		}
	}
	if dailyAmount+amount > s.limits.MaxDailyAmount {
		return nil, &domain.ToolError{
			Kind:    domain.ErrKindTransferLimit,
			Message: fmt.Sprintf("This would exceed your daily limit of %s.", domain.FormatNaira(s.limits.MaxDailyAmount)),
		}
	}

	fee := domain.TransferFee(amount, s.limits.FeeFlat, s.limits.FeeBps, s.limits.FeeCap)

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasPIN() {
		return nil, &domain.ToolError{Kind: domain.ErrKindPINIncorrect, Message: "You need to set a transaction PIN before sending money."}
	}
	if user.CachedBalance < amount+fee {
		return nil, &domain.ToolError{
			Kind: domain.ErrKindInsufficientFunds,
			Message: fmt.Sprintf("You need %s (including the %s fee) but your balance is %s.",
				domain.FormatNaira(amount+fee), domain.FormatNaira(fee), domain.FormatNaira(user.CachedBalance)),
		}
	}

	dest, err := s.ResolveDestination(ctx, accountNumber, bank)
	if err != nil {
		return nil, err
	}

	req := &domain.TransferRequest{
		ID:            uuid.New(),
		UserID:        userID,
		Amount:        amount,
		Fee:           fee,
		AccountNumber: dest.AccountNumber,
		BankCode:      dest.BankCode,
		BankName:      dest.BankName,
		AccountName:   dest.AccountName,
		Status:        domain.TransferAwaitingPIN,
		Narration:     narration,
		ExpiresAt:     s.now().Add(s.limits.TokenTTL),
	}
	if err := s.repo.CreateTransferRequest(ctx, req); err != nil {
		return nil, err
	}

	tok, err := s.tokens.Issue(req.ID, s.limits.TokenTTL)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveSecureToken(ctx, tok, req.ID, req.ExpiresAt); err != nil {
		return nil, err
	}

	log.Printf("level=info component=service op=begin_transfer transfer_id=%s amount=%d fee=%d bank_code=%s", req.ID, amount, fee, dest.BankCode)
	return &PendingTransfer{
		TransferID:  req.ID,
		Amount:      amount,
		Fee:         fee,
		AccountName: dest.AccountName,
		BankName:    dest.BankName,
		AuthURL:     s.baseURL + "/verify-pin?token=" + tok,
	}, nil
}

// PeekTransferForToken resolves the transfer behind a live token without
// spending it. Used to render the PIN entry form.
func (s *Service) PeekTransferForToken(ctx context.Context, tok string) (*domain.TransferRequest, error) {
	transferID, err := s.tokens.Peek(tok)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			// Another instance may have issued the token; the table decides.
			transferID, err = s.repo.PeekSecureToken(ctx, tok)
		}
		if err != nil {
			return nil, err
		}
	}
	req, err := s.repo.FindTransferRequestByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.TransferAwaitingPIN || req.Expired(s.now()) {
		return nil, token.ErrTokenExpired
	}
	return req, nil
}

// AuthorizeTransfer verifies the PIN behind a token and, if correct, consumes
// the token and executes the transfer. A wrong PIN leaves the token live so
// the user can retry on the same form until lockout.
func (s *Service) AuthorizeTransfer(ctx context.Context, tok, pin string) (*domain.TransferRequest, error) {
	req, err := s.PeekTransferForToken(ctx, tok)
	if err != nil {
		return nil, err
	}

	if err := s.VerifyPIN(ctx, req.UserID, pin); err != nil {
		return nil, err
	}

	// PIN accepted; spend the token. The table consume is the single-winner
	// gate across instances, the in-memory consume keeps the fast path warm.
	if _, err := s.repo.ConsumeSecureToken(ctx, tok); err != nil {
		return nil, token.ErrTokenUsed
	}
	s.tokens.Consume(tok)

	if err := s.repo.UpdateTransferRequestStatus(ctx, req.ID, domain.TransferAuthorized); err != nil {
		return nil, err
	}
	req.Status = domain.TransferAuthorized

	if err := s.executeTransfer(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// executeTransfer moves an authorized transfer through debit and provider
// submission. The wallet debit covers amount plus fee; a provider rejection
// reverses it immediately.
func (s *Service) executeTransfer(ctx context.Context, req *domain.TransferRequest) error {
	recipientCode, err := s.recipientCodeFor(ctx, req)
	if err != nil {
		s.repo.UpdateTransferRequestStatus(ctx, req.ID, domain.TransferFailed)
		return err
	}

	total := req.Amount + req.Fee
	if _, err := s.repo.DebitBalance(ctx, req.UserID, total); err != nil {
		s.repo.UpdateTransferRequestStatus(ctx, req.ID, domain.TransferFailed)
		if errors.Is(err, store.ErrInsufficientFunds) {
			return domain.NewToolError(domain.ErrKindInsufficientFunds)
		}
		return err
	}

	reference := "TRF_" + req.ID.String()
	debitRow := &domain.Transaction{
		ID:                  uuid.New(),
		UserID:              req.UserID,
		Type:                domain.TxTypeDebit,
		Amount:              req.Amount,
		Fee:                 req.Fee,
		Status:              domain.TxStatusPending,
		Reference:           reference,
		Narration:           req.Narration,
		CounterpartyName:    req.AccountName,
		CounterpartyAccount: req.AccountNumber,
		CounterpartyBank:    req.BankName,
	}
	if _, err := s.repo.AppendTransactionIfAbsent(ctx, debitRow); err != nil {
		log.Printf("level=error component=service op=execute_transfer msg=\"debit ledger append failed\" reference=%s error=%q", reference, err)
	}
	if req.Fee > 0 {
		feeRow := &domain.Transaction{
			ID:        uuid.New(),
			UserID:    req.UserID,
			Type:      domain.TxTypeFee,
			Amount:    req.Fee,
			Status:    domain.TxStatusCompleted,
			Reference: "FEE_" + req.ID.String(),
			Narration: "Transfer fee",
		}
		if _, err := s.repo.AppendTransactionIfAbsent(ctx, feeRow); err != nil {
			log.Printf("level=error component=service op=execute_transfer msg=\"fee ledger append failed\" reference=%s error=%q", feeRow.Reference, err)
		}
	}

	if err := s.repo.SetTransferRequestSubmitted(ctx, req.ID, reference); err != nil {
		return err
	}
	req.Status = domain.TransferSubmitted
	req.Reference = reference

	reason := req.Narration
	if reason == "" {
		reason = "Transfer"
	}
	if _, err := s.paystack.InitiateTransfer(ctx, recipientCode, reference, reason, req.Amount); err != nil {
		log.Printf("level=error component=service op=execute_transfer msg=\"provider rejected transfer\" reference=%s error=%q", reference, err)
		s.reverseTransfer(ctx, req, "The transfer could not be submitted.")
		var apiErr *paystackclient.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return &domain.ToolError{Kind: domain.ErrKindProviderUnavailable, Message: "The transfer was declined by the payment provider. You have not been charged."}
		}
		return domain.NewToolError(domain.ErrKindProviderUnavailable)
	}

	log.Printf("level=info component=service op=execute_transfer transfer_id=%s reference=%s amount=%d", req.ID, reference, req.Amount)
	return nil
}

// recipientCodeFor returns the provider recipient handle for the destination,
// creating and caching one on first use.
func (s *Service) recipientCodeFor(ctx context.Context, req *domain.TransferRequest) (string, error) {
	if code, err := s.repo.FindRecipientCode(ctx, req.AccountNumber, req.BankCode); err == nil {
		return code, nil
	} else if !errors.Is(err, store.ErrRecipientNotFound) {
		return "", err
	}

	created, err := s.paystack.CreateTransferRecipient(ctx, req.AccountName, req.AccountNumber, req.BankCode)
	if err != nil {
		log.Printf("level=error component=service op=recipient_code error=%q", err)
		return "", domain.NewToolError(domain.ErrKindProviderUnavailable)
	}

	if err := s.repo.SaveRecipientCode(ctx, &domain.TransferRecipient{
		UserID:        req.UserID,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		RecipientCode: created.RecipientCode,
	}); err != nil {
		log.Printf("level=warn component=service op=recipient_code msg=\"cache write failed\" error=%q", err)
	}
	return created.RecipientCode, nil
}

// HandleTransferSettled finalizes a submitted transfer after the provider
// confirms settlement: the ledger row completes and the user gets a receipt.
func (s *Service) HandleTransferSettled(ctx context.Context, reference string) error {
	req, err := s.repo.FindTransferRequestByReference(ctx, reference)
	if err != nil {
		return err
	}
	if req.Status == domain.TransferSettled {
		return nil
	}
	if req.Status != domain.TransferSubmitted {
		log.Printf("level=warn component=service op=transfer_settled msg=\"unexpected state\" reference=%s status=%s", reference, req.Status)
		return nil
	}

	if err := s.repo.UpdateTransferRequestStatus(ctx, req.ID, domain.TransferSettled); err != nil {
		return err
	}
	if err := s.repo.MarkTransactionCompleted(ctx, reference); err != nil {
		log.Printf("level=error component=service op=transfer_settled msg=\"ledger completion failed\" reference=%s error=%q", reference, err)
	}

	user, err := s.repo.FindUserByID(ctx, req.UserID)
	if err != nil {
		return err
	}

	receipt := domain.Receipt{
		Amount:        req.Amount,
		RecipientName: req.AccountName,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Reference:     reference,
		Date:          s.now(),
	}
	if err := s.messenger.SendText(ctx, user.WhatsAppNumber, receipt.Text()); err != nil {
		log.Printf("level=warn component=service op=transfer_settled msg=\"receipt send failed\" reference=%s error=%q", reference, err)
	}
	followUp := domain.BalanceFollowUp(user.CachedBalance) +
		"\n\nWant me to save " + req.AccountName + " as a beneficiary for next time? Just say the word."
	if err := s.messenger.SendText(ctx, user.WhatsAppNumber, followUp); err != nil {
		log.Printf("level=warn component=service op=transfer_settled msg=\"balance follow-up send failed\" reference=%s error=%q", reference, err)
	}

	s.eventProducer.PublishWalletEvent(ctx, rabbitmq.RoutingTransferSettled, rabbitmq.WalletEvent{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: reference,
	})
	return nil
}

// HandleTransferFailed reverses a submitted transfer after the provider
// reports failure: debit and fee come back and the user is told.
func (s *Service) HandleTransferFailed(ctx context.Context, reference, failureReason string) error {
	req, err := s.repo.FindTransferRequestByReference(ctx, reference)
	if err != nil {
		return err
	}
	if req.Status == domain.TransferFailed {
		return nil
	}
	if req.Status != domain.TransferSubmitted {
		log.Printf("level=warn component=service op=transfer_failed msg=\"unexpected state\" reference=%s status=%s", reference, req.Status)
		return nil
	}

	s.reverseTransfer(ctx, req, failureReason)
	return nil
}

// reverseTransfer refunds amount plus fee, fails the ledger rows and the
// request, and notifies the user.
func (s *Service) reverseTransfer(ctx context.Context, req *domain.TransferRequest, failureReason string) {
	if _, err := s.repo.CreditBalance(ctx, req.UserID, req.Amount+req.Fee); err != nil {
		log.Printf("level=error component=service op=reverse_transfer msg=\"refund failed\" transfer_id=%s error=%q", req.ID, err)
	}
	if err := s.repo.UpdateTransferRequestStatus(ctx, req.ID, domain.TransferFailed); err != nil {
		log.Printf("level=error component=service op=reverse_transfer msg=\"state update failed\" transfer_id=%s error=%q", req.ID, err)
	}
	if req.Reference != "" {
		if err := s.repo.MarkTransactionFailed(ctx, req.Reference); err != nil {
			log.Printf("level=warn component=service op=reverse_transfer msg=\"ledger fail mark skipped\" reference=%s error=%q", req.Reference, err)
		}
		// The fee row was booked completed at execution; the refund covers it,
		// so it must fail too or the ledger overstates fees by req.Fee.
		if req.Fee > 0 {
			feeRef := "FEE_" + req.ID.String()
			if err := s.repo.MarkTransactionFailed(ctx, feeRef); err != nil {
				log.Printf("level=warn component=service op=reverse_transfer msg=\"fee fail mark skipped\" reference=%s error=%q", feeRef, err)
			}
		}
	}

	user, err := s.repo.FindUserByID(ctx, req.UserID)
	if err != nil {
		log.Printf("level=error component=service op=reverse_transfer msg=\"user lookup failed\" transfer_id=%s error=%q", req.ID, err)
		return
	}
	if failureReason == "" {
		failureReason = "the receiving bank rejected it"
	}
	alert := domain.TransferFailedAlert(req.Amount, req.AccountName, failureReason)
	if err := s.messenger.SendText(ctx, user.WhatsAppNumber, alert); err != nil {
		log.Printf("level=warn component=service op=reverse_transfer msg=\"alert send failed\" transfer_id=%s error=%q", req.ID, err)
	}

	s.eventProducer.PublishWalletEvent(ctx, rabbitmq.RoutingTransferFailed, rabbitmq.WalletEvent{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: req.Reference,
		Detail:    failureReason,
	})
}

// HandleDeposit credits an inbound payment to the account owner, resolved by
// the provider customer code with the receiving virtual account number as
// fallback. The unique reference makes redelivered webhooks no-ops.
func (s *Service) HandleDeposit(ctx context.Context, reference, customerCode, accountNumber string, amount int64, senderName, senderBank string) error {
	user, err := s.depositOwner(ctx, customerCode, accountNumber)
	if err != nil {
		return err
	}

	creditRow := &domain.Transaction{
		ID:               uuid.New(),
		UserID:           user.ID,
		Type:             domain.TxTypeCredit,
		Amount:           amount,
		Status:           domain.TxStatusCompleted,
		Reference:        reference,
		Narration:        "Wallet deposit",
		CounterpartyName: senderName,
		CounterpartyBank: senderBank,
	}
	inserted, err := s.repo.AppendTransactionIfAbsent(ctx, creditRow)
	if err != nil {
		return err
	}
	if !inserted {
		log.Printf("level=info component=service op=handle_deposit msg=\"duplicate delivery ignored\" reference=%s", reference)
		return nil
	}

	newBalance, err := s.repo.CreditBalance(ctx, user.ID, amount)
	if err != nil {
		return err
	}

	alert := domain.CreditAlert(amount, newBalance, senderName, senderBank)
	if err := s.messenger.SendText(ctx, user.WhatsAppNumber, alert); err != nil {
		log.Printf("level=warn component=service op=handle_deposit msg=\"credit alert send failed\" reference=%s error=%q", reference, err)
	}

	s.eventProducer.PublishWalletEvent(ctx, rabbitmq.RoutingDepositReceived, rabbitmq.WalletEvent{
		UserID:    user.ID,
		Amount:    amount,
		Reference: reference,
		Detail:    senderName,
	})

	log.Printf("level=info component=service op=handle_deposit user_id=%s amount=%d reference=%s", user.ID, amount, reference)
	return nil
}

func (s *Service) depositOwner(ctx context.Context, customerCode, accountNumber string) (*domain.User, error) {
	if customerCode != "" {
		user, err := s.repo.FindUserByCustomerCode(ctx, customerCode)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
	}
	if accountNumber == "" {
		return nil, store.ErrUserNotFound
	}
	return s.repo.FindUserByVirtualAccountNumber(ctx, accountNumber)
}
