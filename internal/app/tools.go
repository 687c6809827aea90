/**
 * @description
 * This file defines the function tools the assistant can call during a run and
 * the registry that dispatches them. Each tool carries a JSON Schema for its
 * arguments; handlers unmarshal the assistant-supplied arguments, call into the
 * service, and return a JSON payload. Domain failures serialize as structured
 * error objects so the assistant can phrase them for the user instead of the
 * run aborting.
 *
 * @dependencies
 * - context, encoding/json: Standard Go libraries.
 * - github.com/google/uuid: User identifiers.
 * - internal/domain: Tool error shapes and money formatting.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/sofihq/sofi-backend/internal/domain"
	"github.com/sofihq/sofi-backend/internal/store"
)

// ToolHandler executes one tool call for a user and returns a JSON-marshalable result.
type ToolHandler func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error)

// Tool is one callable function exposed to the assistant.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Handler     ToolHandler
}

// ToolRegistry holds the assistant's tools keyed by name.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice replaces the earlier entry.
func (r *ToolRegistry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Tools returns the registered tools in registration order.
func (r *ToolRegistry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Dispatch executes a named tool and returns its output as a JSON string.
// Domain errors become structured error payloads; anything else becomes a
// generic internal error so provider details never leak into the conversation.
func (r *ToolRegistry) Dispatch(ctx context.Context, userID uuid.UUID, name string, args json.RawMessage) string {
	tool, ok := r.tools[name]
	if !ok {
		return marshalToolError(&domain.ToolError{Kind: domain.ErrKindInternal, Message: fmt.Sprintf("Unknown tool %q.", name)})
	}

	result, err := tool.Handler(ctx, userID, args)
	if err != nil {
		var toolErr *domain.ToolError
		if errors.As(err, &toolErr) {
			return marshalToolError(toolErr)
		}
		log.Printf("level=error component=tools tool=%s error=%q", name, err)
		return marshalToolError(domain.NewToolError(domain.ErrKindInternal))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		log.Printf("level=error component=tools tool=%s msg=\"result marshal failed\" error=%q", name, err)
		return marshalToolError(domain.NewToolError(domain.ErrKindInternal))
	}
	return string(raw)
}

func marshalToolError(e *domain.ToolError) string {
	raw, err := json.Marshal(e)
	if err != nil {
		return `{"error":"internal","message":"Something went wrong."}`
	}
	return string(raw)
}

// Schema helpers for building JSON Schema definitions.

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func integerProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// BankingTools builds the registry of tools backed by the service.
func BankingTools(s *Service) *ToolRegistry {
	r := NewToolRegistry()

	r.Register(Tool{
		Name:        "check_balance",
		Description: "Get the user's current wallet balance.",
		Parameters:  objectSchema(map[string]interface{}{}),
		Handler: func(ctx context.Context, userID uuid.UUID, _ json.RawMessage) (any, error) {
			balance, err := s.CheckBalance(ctx, userID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"balance_kobo": balance,
				"balance":      domain.FormatNaira(balance),
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "get_account_details",
		Description: "Get the user's own virtual account number for receiving money.",
		Parameters:  objectSchema(map[string]interface{}{}),
		Handler: func(ctx context.Context, userID uuid.UUID, _ json.RawMessage) (any, error) {
			account, err := s.VirtualAccount(ctx, userID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"account_number": account.AccountNumber,
				"bank_name":      account.BankName,
				"account_name":   account.AccountName,
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "verify_account_name",
		Description: "Look up the registered holder name for a bank account before sending money.",
		Parameters: objectSchema(map[string]interface{}{
			"account_number": stringProperty("The 10-digit NUBAN account number."),
			"bank":           stringProperty("The bank name, common alias, or bank code."),
		}, "account_number", "bank"),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				AccountNumber string `json:"account_number"`
				Bank          string `json:"bank"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for verify_account_name."}
			}
			return s.ResolveDestination(ctx, in.AccountNumber, in.Bank)
		},
	})

	r.Register(Tool{
		Name:        "send_money",
		Description: "Start an interbank transfer. Returns a secure link the user must open to enter their PIN; money only moves after PIN entry.",
		Parameters: objectSchema(map[string]interface{}{
			"amount_kobo":    integerProperty("Transfer amount in kobo (naira times 100)."),
			"account_number": stringProperty("The recipient's 10-digit account number."),
			"bank":           stringProperty("The recipient's bank name, alias, or code."),
			"narration":      stringProperty("Optional short note attached to the transfer."),
		}, "amount_kobo", "account_number", "bank"),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				AmountKobo    int64  `json:"amount_kobo"`
				AccountNumber string `json:"account_number"`
				Bank          string `json:"bank"`
				Narration     string `json:"narration"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for send_money."}
			}
			pending, err := s.BeginTransfer(ctx, userID, in.AmountKobo, in.AccountNumber, in.Bank, in.Narration)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"status":       "awaiting_pin",
				"auth_url":     pending.AuthURL,
				"amount":       domain.FormatNaira(pending.Amount),
				"fee":          domain.FormatNaira(pending.Fee),
				"account_name": pending.AccountName,
				"bank_name":    pending.BankName,
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "get_transfer_history",
		Description: "List the user's recent transactions.",
		Parameters: objectSchema(map[string]interface{}{
			"limit": integerProperty("How many entries to return, at most 20. Defaults to 5."),
		}),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				Limit int `json:"limit"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for get_transfer_history."}
				}
			}
			if in.Limit <= 0 {
				in.Limit = 5
			}
			if in.Limit > 20 {
				in.Limit = 20
			}
			txns, err := s.TransferHistory(ctx, userID, in.Limit)
			if err != nil {
				return nil, err
			}
			entries := make([]map[string]any, 0, len(txns))
			for _, t := range txns {
				entries = append(entries, map[string]any{
					"type":         t.Type,
					"amount":       domain.FormatNaira(t.Amount),
					"status":       t.Status,
					"counterparty": t.CounterpartyName,
					"narration":    t.Narration,
					"date":         t.CreatedAt.Format("2 Jan 2006 15:04"),
				})
			}
			return map[string]any{"transactions": entries}, nil
		},
	})

	r.Register(Tool{
		Name:        "set_transaction_pin",
		Description: "Set or change the user's 4-digit transaction PIN. Changing an existing PIN requires the current one.",
		Parameters: objectSchema(map[string]interface{}{
			"pin":     stringProperty("The new 4-digit PIN."),
			"old_pin": stringProperty("The current PIN; required when one is already set."),
		}, "pin"),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				PIN    string `json:"pin"`
				OldPIN string `json:"old_pin"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for set_transaction_pin."}
			}
			if err := s.SetTransactionPIN(ctx, userID, in.PIN, in.OldPIN); err != nil {
				return nil, err
			}
			return map[string]any{"status": "pin_set"}, nil
		},
	})

	r.Register(Tool{
		Name:        "buy_airtime",
		Description: "Buy airtime for a Nigerian phone number from the user's wallet.",
		Parameters: objectSchema(map[string]interface{}{
			"phone":       stringProperty("The phone number to top up, e.g. 08031234567."),
			"amount_kobo": integerProperty("Airtime amount in kobo; must be a whole naira value."),
			"network":     stringProperty("The carrier (MTN, Glo, Airtel, 9mobile) when the user states it; needed for ported numbers."),
		}, "phone", "amount_kobo"),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				Phone      string `json:"phone"`
				AmountKobo int64  `json:"amount_kobo"`
				Network    string `json:"network"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for buy_airtime."}
			}
			txn, err := s.BuyAirtime(ctx, userID, in.Phone, in.Network, in.AmountKobo)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"status": "purchased",
				"amount": domain.FormatNaira(txn.Amount),
				"phone":  in.Phone,
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "save_beneficiary",
		Description: "Save a transfer destination under a nickname for future use.",
		Parameters: objectSchema(map[string]interface{}{
			"nickname":       stringProperty("The nickname to save the destination under, e.g. \"mum\"."),
			"account_number": stringProperty("The 10-digit account number."),
			"bank":           stringProperty("The bank name, alias, or code."),
		}, "nickname", "account_number", "bank"),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				Nickname      string `json:"nickname"`
				AccountNumber string `json:"account_number"`
				Bank          string `json:"bank"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for save_beneficiary."}
			}
			b, err := s.SaveBeneficiary(ctx, userID, in.Nickname, in.AccountNumber, in.Bank)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"status":       "saved",
				"nickname":     b.Nickname,
				"account_name": b.AccountName,
				"bank_name":    b.BankName,
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "get_user_beneficiaries",
		Description: "List the user's saved beneficiaries.",
		Parameters:  objectSchema(map[string]interface{}{}),
		Handler: func(ctx context.Context, userID uuid.UUID, _ json.RawMessage) (any, error) {
			list, err := s.ListBeneficiaries(ctx, userID)
			if err != nil {
				return nil, err
			}
			entries := make([]map[string]any, 0, len(list))
			for _, b := range list {
				entries = append(entries, map[string]any{
					"nickname":       b.Nickname,
					"account_name":   b.AccountName,
					"account_number": b.AccountNumber,
					"bank_name":      b.BankName,
				})
			}
			return map[string]any{"beneficiaries": entries}, nil
		},
	})

	r.Register(Tool{
		Name:        "get_beneficiary",
		Description: "Look up a saved beneficiary by nickname, e.g. before sending money to \"mum\".",
		Parameters: objectSchema(map[string]interface{}{
			"nickname": stringProperty("The beneficiary's nickname."),
		}, "nickname"),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				Nickname string `json:"nickname"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for get_beneficiary."}
			}
			b, err := s.FindBeneficiary(ctx, userID, in.Nickname)
			if err != nil {
				if errors.Is(err, store.ErrBeneficiaryNotFound) {
					return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: fmt.Sprintf("No beneficiary saved as %q.", in.Nickname)}
				}
				return nil, err
			}
			return map[string]any{
				"nickname":       b.Nickname,
				"account_name":   b.AccountName,
				"account_number": b.AccountNumber,
				"bank_name":      b.BankName,
				"bank_code":      b.BankCode,
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "delete_beneficiary",
		Description: "Delete a saved beneficiary by nickname.",
		Parameters: objectSchema(map[string]interface{}{
			"nickname": stringProperty("The beneficiary's nickname."),
		}, "nickname"),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			var in struct {
				Nickname string `json:"nickname"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: "Bad arguments for delete_beneficiary."}
			}
			if err := s.DeleteBeneficiary(ctx, userID, in.Nickname); err != nil {
				if errors.Is(err, store.ErrBeneficiaryNotFound) {
					return nil, &domain.ToolError{Kind: domain.ErrKindInternal, Message: fmt.Sprintf("No beneficiary saved as %q.", in.Nickname)}
				}
				return nil, err
			}
			return map[string]any{"status": "deleted"}, nil
		},
	})

	return r
}
