package app

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sofihq/sofi-backend/internal/domain"
)

func TestDispatchUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	out := r.Dispatch(context.Background(), uuid.New(), "no_such_tool", nil)

	var payload domain.ToolError
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output is not a tool error payload: %v", err)
	}
	if payload.Kind != domain.ErrKindInternal {
		t.Fatalf("error kind = %s, want %s", payload.Kind, domain.ErrKindInternal)
	}
}

func TestDispatchSerializesDomainErrors(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 500, "1234")}
	svc := newTestService(repo, &paystackStub{resolveName: "JOHN DOE"}, &messengerStub{}, &airtimeStub{})
	r := BankingTools(svc)

	args := json.RawMessage(`{"amount_kobo":100000,"account_number":"8104611794","bank":"OPay"}`)
	out := r.Dispatch(context.Background(), repo.user.ID, "send_money", args)

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if payload.Error != string(domain.ErrKindInsufficientFunds) {
		t.Fatalf("error = %q, want %q", payload.Error, domain.ErrKindInsufficientFunds)
	}
	if payload.Message == "" {
		t.Fatal("expected a human-readable message for the assistant to relay")
	}
}

func TestDispatchCheckBalance(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 1_250_000, "1234")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})
	r := BankingTools(svc)

	out := r.Dispatch(context.Background(), repo.user.ID, "check_balance", json.RawMessage(`{}`))

	var payload struct {
		BalanceKobo int64  `json:"balance_kobo"`
		Balance     string `json:"balance"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if payload.BalanceKobo != 1_250_000 {
		t.Fatalf("balance_kobo = %d, want 1250000", payload.BalanceKobo)
	}
	if payload.Balance != "₦12,500.00" {
		t.Fatalf("balance = %q, want ₦12,500.00", payload.Balance)
	}
}

func TestDispatchSendMoneyReturnsAuthLink(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 500_000, "1234")}
	svc := newTestService(repo, &paystackStub{resolveName: "JOHN DOE"}, &messengerStub{}, &airtimeStub{})
	r := BankingTools(svc)

	args := json.RawMessage(`{"amount_kobo":100000,"account_number":"8104611794","bank":"opay","narration":"lunch"}`)
	out := r.Dispatch(context.Background(), repo.user.ID, "send_money", args)

	var payload struct {
		Status      string `json:"status"`
		AuthURL     string `json:"auth_url"`
		AccountName string `json:"account_name"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if payload.Status != "awaiting_pin" {
		t.Fatalf("status = %q, want awaiting_pin", payload.Status)
	}
	if !strings.HasPrefix(payload.AuthURL, "https://sofi.test/verify-pin?token=") {
		t.Fatalf("auth_url = %q", payload.AuthURL)
	}
	if payload.AccountName != "JOHN DOE" {
		t.Fatalf("account_name = %q, want JOHN DOE", payload.AccountName)
	}
}

func TestBankingToolsSchemasNameRequiredFields(t *testing.T) {
	repo := &transferRepoStub{user: pinnedUser(t, 0, "1234")}
	svc := newTestService(repo, &paystackStub{}, &messengerStub{}, &airtimeStub{})

	tools := BankingTools(svc).Tools()
	if len(tools) == 0 {
		t.Fatal("expected registered tools")
	}
	byName := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
		if tool.Parameters["type"] != "object" {
			t.Errorf("tool %s: schema type = %v, want object", tool.Name, tool.Parameters["type"])
		}
	}

	sendMoney, ok := byName["send_money"]
	if !ok {
		t.Fatal("send_money not registered")
	}
	required, _ := sendMoney.Parameters["required"].([]string)
	want := map[string]bool{"amount_kobo": true, "account_number": true, "bank": true}
	for _, field := range required {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("send_money required fields missing: %v", want)
	}
}
