package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sofihq/sofi-backend/internal/domain"
	"github.com/sofihq/sofi-backend/internal/store"
	"github.com/sofihq/sofi-backend/pkg/airtimeclient"
	"github.com/sofihq/sofi-backend/pkg/paystackclient"
)

func TestVerifyPINLocksAfterMaxAttempts(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 100_000, "1234")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := svc.VerifyPIN(ctx, repo.user.ID, "0000")
		assertToolError(t, err, domain.ErrKindPINIncorrect)
	}

	// Third failure crosses the threshold and locks.
	err := svc.VerifyPIN(ctx, repo.user.ID, "0000")
	assertToolError(t, err, domain.ErrKindPINLocked)

	// Even the correct PIN is refused while locked.
	err = svc.VerifyPIN(ctx, repo.user.ID, "1234")
	assertToolError(t, err, domain.ErrKindPINLocked)
}

func TestVerifyPINResetsCounterOnSuccess(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 100_000, "1234")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	ctx := context.Background()
	if err := svc.VerifyPIN(ctx, repo.user.ID, "0000"); err == nil {
		t.Fatal("expected wrong PIN to fail")
	}
	if err := svc.VerifyPIN(ctx, repo.user.ID, "1234"); err != nil {
		t.Fatalf("correct PIN returned error: %v", err)
	}
	if repo.pinRec.FailedAttempts != 0 {
		t.Fatalf("failed attempts = %d, want 0 after success", repo.pinRec.FailedAttempts)
	}
}

func TestVerifyPINWrongAttemptMessageCountsDown(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 100_000, "1234")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	err := svc.VerifyPIN(context.Background(), repo.user.ID, "0000")
	toolErr, ok := err.(*domain.ToolError)
	if !ok {
		t.Fatalf("expected *domain.ToolError, got %T", err)
	}
	if !strings.Contains(toolErr.Message, "2 attempt(s) left") {
		t.Fatalf("message = %q, want remaining-attempts hint", toolErr.Message)
	}
}

func TestSetTransactionPINRejectsBadFormat(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 0, "1234")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	for _, pin := range []string{"123", "12345", "abcd", ""} {
		if err := svc.SetTransactionPIN(context.Background(), repo.user.ID, pin, ""); err == nil {
			t.Errorf("expected PIN %q to be rejected", pin)
		}
	}
}

func TestSetTransactionPINChangeRequiresCurrentPIN(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 0, "1111")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})
	ctx := context.Background()

	if err := svc.SetTransactionPIN(ctx, repo.user.ID, "2222", ""); err == nil {
		t.Fatal("changing an existing PIN without the current one must fail")
	}
	err := svc.SetTransactionPIN(ctx, repo.user.ID, "2222", "9999")
	assertToolError(t, err, domain.ErrKindPINIncorrect)

	if err := svc.SetTransactionPIN(ctx, repo.user.ID, "2222", "1111"); err != nil {
		t.Fatalf("valid PIN change returned error: %v", err)
	}
	if err := svc.VerifyPIN(ctx, repo.user.ID, "1111"); err == nil {
		t.Fatal("old PIN must stop verifying after a change")
	}
	if err := svc.VerifyPIN(ctx, repo.user.ID, "2222"); err != nil {
		t.Fatalf("new PIN failed to verify: %v", err)
	}
}

func TestCheckBalanceReconcilesNegativeCache(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 100_000, "1234")}
	repo.user.CachedBalance = -5_000
	repo.txns = []*domain.Transaction{
		{Type: domain.TxTypeCredit, Amount: 250_000, Status: domain.TxStatusCompleted},
		{Type: domain.TxTypeDebit, Amount: 100_000, Status: domain.TxStatusCompleted},
		{Type: domain.TxTypeDebit, Amount: 40_000, Status: domain.TxStatusPending},
	}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	balance, err := svc.CheckBalance(context.Background(), repo.user.ID)
	if err != nil {
		t.Fatalf("CheckBalance returned error: %v", err)
	}
	if balance != 150_000 {
		t.Fatalf("balance = %d, want 150000 from the completed ledger rows", balance)
	}
	if repo.recomputeCalls != 1 {
		t.Fatalf("recompute calls = %d, want 1", repo.recomputeCalls)
	}

	// A healthy cache answers without touching the ledger again.
	if _, err := svc.CheckBalance(context.Background(), repo.user.ID); err != nil {
		t.Fatalf("second CheckBalance returned error: %v", err)
	}
	if repo.recomputeCalls != 1 {
		t.Fatalf("recompute calls after reconcile = %d, want still 1", repo.recomputeCalls)
	}
}

func TestResolveDestinationMapsProviderErrors(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 0, "1234")}

	// 4xx means the account does not exist.
	pay := &paystackStub{resolveErr: &paystackclient.ErrorResponse{StatusCode: 422, Message: "Could not resolve account name"}}
	svc := newTestService(repo, pay, &messengerStub{}, &airtimeStub{})
	_, err := svc.ResolveDestination(context.Background(), "0000000000", "GTBank")
	assertToolError(t, err, domain.ErrKindAccountNotFound)

	// 5xx means the provider is down, not that the account is bad.
	pay = &paystackStub{resolveErr: &paystackclient.ErrorResponse{StatusCode: 503}}
	svc = newTestService(repo, pay, &messengerStub{}, &airtimeStub{})
	_, err = svc.ResolveDestination(context.Background(), "0000000000", "GTBank")
	assertToolError(t, err, domain.ErrKindProviderUnavailable)
}

func TestBeneficiaryRoundTrip(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 0, "1234")}
	svc := newTestService(repo, &paystackStub{resolveName: "JOHN DOE"}, &messengerStub{}, &airtimeStub{})
	ctx := context.Background()

	saved, err := svc.SaveBeneficiary(ctx, repo.user.ID, "mum", "8104611794", "opay")
	if err != nil {
		t.Fatalf("SaveBeneficiary returned error: %v", err)
	}
	if saved.AccountName != "JOHN DOE" || saved.BankCode != "999992" {
		t.Fatalf("saved beneficiary = %+v, want resolved name and OPay code", saved)
	}

	list, err := svc.ListBeneficiaries(ctx, repo.user.ID)
	if err != nil {
		t.Fatalf("ListBeneficiaries returned error: %v", err)
	}
	if len(list) != 1 || list[0].Nickname != "mum" {
		t.Fatalf("beneficiaries = %+v, want the saved entry", list)
	}

	found, err := svc.FindBeneficiary(ctx, repo.user.ID, "mum")
	if err != nil || found.AccountNumber != "8104611794" {
		t.Fatalf("FindBeneficiary = %+v, %v", found, err)
	}

	if err := svc.DeleteBeneficiary(ctx, repo.user.ID, "mum"); err != nil {
		t.Fatalf("DeleteBeneficiary returned error: %v", err)
	}
	if _, err := svc.FindBeneficiary(ctx, repo.user.ID, "mum"); !errors.Is(err, store.ErrBeneficiaryNotFound) {
		t.Fatalf("expected the beneficiary to be gone, got %v", err)
	}
}

func TestBuyAirtimeRefundsOnVendorFailure(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 200_000, "1234")}
	air := &airtimeStub{err: errors.New("vendor timeout")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, air)

	_, err := svc.BuyAirtime(context.Background(), repo.user.ID, "08031234567", "", 50_000)
	assertToolError(t, err, domain.ErrKindProviderUnavailable)
	if repo.user.CachedBalance != 200_000 {
		t.Fatalf("balance = %d, want refunded 200000", repo.user.CachedBalance)
	}
}

func TestBuyAirtimeDebitsAndRecordsLedger(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 200_000, "1234")}
	air := &airtimeStub{}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, air)

	txn, err := svc.BuyAirtime(context.Background(), repo.user.ID, "08031234567", "", 50_000)
	if err != nil {
		t.Fatalf("BuyAirtime returned error: %v", err)
	}
	if repo.user.CachedBalance != 150_000 {
		t.Fatalf("balance = %d, want 150000", repo.user.CachedBalance)
	}
	if txn.Type != domain.TxTypeDebit || txn.Status != domain.TxStatusCompleted {
		t.Fatalf("ledger row type=%s status=%s", txn.Type, txn.Status)
	}
	if air.calls != 1 {
		t.Fatalf("vendor calls = %d, want 1", air.calls)
	}
}

func TestBuyAirtimeRejectsInsufficientFunds(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 10_000, "1234")}
	air := &airtimeStub{}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, air)

	_, err := svc.BuyAirtime(context.Background(), repo.user.ID, "08031234567", "", 50_000)
	assertToolError(t, err, domain.ErrKindInsufficientFunds)
	if air.calls != 0 {
		t.Fatal("vendor must not be called when the debit fails")
	}
}

func TestBuyAirtimeRejectsUnknownNetwork(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 200_000, "1234")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	if _, err := svc.BuyAirtime(context.Background(), repo.user.ID, "01234", "", 50_000); err == nil {
		t.Fatal("expected unknown network prefix to be rejected")
	}
	if repo.debited != 0 {
		t.Fatal("no debit should happen for an unrecognized number")
	}
}

func TestBuyAirtimeCarrierOverridesPrefix(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 200_000, "1234")}
	air := &airtimeStub{}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, air)

	// 0803 is an MTN prefix, but a ported number keeps it; the stated carrier wins.
	if _, err := svc.BuyAirtime(context.Background(), repo.user.ID, "08031234567", "Airtel", 50_000); err != nil {
		t.Fatalf("BuyAirtime returned error: %v", err)
	}
	if air.lastNetwork != airtimeclient.NetworkAirtel {
		t.Fatalf("vendor network = %s, want %s", air.lastNetwork, airtimeclient.NetworkAirtel)
	}

	_, err := svc.BuyAirtime(context.Background(), repo.user.ID, "08031234567", "vodafone", 50_000)
	assertToolError(t, err, domain.ErrKindInternal)
	if air.calls != 1 {
		t.Fatal("vendor must not be called for an unknown carrier")
	}
}

type onboardRepoStub struct {
	transferRepoStub

	account        *domain.VirtualAccount
	created        *domain.User
	createdAccount *domain.VirtualAccount
}

func (s *onboardRepoStub) FindVirtualAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.VirtualAccount, error) {
	if s.account == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *onboardRepoStub) FindUserByWhatsAppNumber(ctx context.Context, number string) (*domain.User, error) {
	if s.user != nil && s.user.WhatsAppNumber == number {
		return s.user, nil
	}
	return nil, store.ErrUserNotFound
}

func (s *onboardRepoStub) CreateUser(ctx context.Context, user *domain.User) error {
	s.created = user
	return nil
}

func (s *onboardRepoStub) CreateVirtualAccount(ctx context.Context, account *domain.VirtualAccount) error {
	s.createdAccount = account
	return nil
}

func TestOnboardCreatesCustomerAccountAndUser(t *testing.T) {
	repo := &onboardRepoStub{}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	user, account, err := svc.Onboard(context.Background(), OnboardParams{
		WhatsAppNumber: "2348100000002",
		FullName:       "Ngozi Eze",
		Email:          "ngozi@example.com",
		PIN:            "4321",
	})
	if err != nil {
		t.Fatalf("Onboard returned error: %v", err)
	}
	if repo.created == nil || repo.created.ID != user.ID {
		t.Fatal("expected the user row to be created")
	}
	if !user.HasPIN() {
		t.Fatal("expected the PIN to be set during onboarding")
	}
	if user.CustomerCode == nil || *user.CustomerCode != "CUS_test" {
		t.Fatal("expected the provider customer code to be stored")
	}
	if account.AccountNumber != "9912345678" {
		t.Fatalf("account number = %s, want the issued NUBAN", account.AccountNumber)
	}
	if repo.createdAccount == nil {
		t.Fatal("expected the virtual account row to be created")
	}
	if account.BankName != "Wema Bank" || account.BankCode != "035" {
		t.Fatalf("bank = %s/%s, want the issuing bank name and code", account.BankName, account.BankCode)
	}
}

func TestOnboardIsIdempotentForExistingUser(t *testing.T) {
	existing := pinnedUser(t, 0, "1234")
	existing.WhatsAppNumber = "2348100000003"
	repo := &onboardRepoStub{
		transferRepoStub: transferRepoStub{user: existing},
		account:          &domain.VirtualAccount{UserID: existing.ID, AccountNumber: "9900000001"},
	}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	user, account, err := svc.Onboard(context.Background(), OnboardParams{
		WhatsAppNumber: "2348100000003",
		FullName:       "Ada Obi",
		Email:          "ada@example.com",
		PIN:            "1234",
	})
	if err != nil {
		t.Fatalf("Onboard returned error: %v", err)
	}
	if user.ID != existing.ID || account.AccountNumber != "9900000001" {
		t.Fatal("expected the existing user and account to be returned")
	}
	if repo.created != nil {
		t.Fatal("a second onboarding must not create a duplicate user")
	}
}
