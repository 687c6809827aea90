/**
 * @description
 * This package provides a client for interacting with the Paystack API.
 * It encapsulates the logic for making authenticated HTTP requests to Paystack's
 * endpoints, handling request body construction, and parsing responses. It covers
 * customer and dedicated virtual account creation, account name resolution,
 * transfer recipients and outbound transfers.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package paystackclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ErrorResponse represents an error from the Paystack API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Status     bool   `json:"status"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack api error: %s", e.Message)
	}
	return fmt.Sprintf("paystack api error: status %d", e.StatusCode)
}

// Customer is the provider-side customer object.
type Customer struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
}

type customerResponse struct {
	Status  bool     `json:"status"`
	Message string   `json:"message"`
	Data    Customer `json:"data"`
}

// CreateCustomer registers a customer on Paystack ahead of virtual account issuance.
func (c *Client) CreateCustomer(ctx context.Context, email, firstName, lastName, phone string) (*Customer, error) {
	payload := map[string]string{
		"email":      email,
		"first_name": firstName,
		"last_name":  lastName,
		"phone":      phone,
	}
	var resp customerResponse
	if err := c.do(ctx, "POST", "/customer", payload, &resp, false); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// DedicatedAccount is the NUBAN Paystack issues against a customer.
type DedicatedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Bank          struct {
		Name string `json:"name"`
		Code string `json:"code"`
		Slug string `json:"slug"`
		ID   int64  `json:"id"`
	} `json:"bank"`
}

type dedicatedAccountResponse struct {
	Status  bool             `json:"status"`
	Message string           `json:"message"`
	Data    DedicatedAccount `json:"data"`
}

// CreateDedicatedAccount issues a dedicated virtual account for a customer.
func (c *Client) CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*DedicatedAccount, error) {
	if preferredBank == "" {
		preferredBank = "wema-bank"
	}
	payload := map[string]string{
		"customer":       customerCode,
		"preferred_bank": preferredBank,
	}
	var resp dedicatedAccountResponse
	if err := c.do(ctx, "POST", "/dedicated_account", payload, &resp, false); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ResolvedAccount is the holder name Paystack resolves for a NUBAN.
type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type resolveResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    ResolvedAccount `json:"data"`
}

// ResolveAccount looks up the registered holder name for an account number and
// bank code. Transient provider failures are retried once.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	path := "/bank/resolve?" + url.Values{
		"account_number": {accountNumber},
		"bank_code":      {bankCode},
	}.Encode()

	var resp resolveResponse
	if err := c.do(ctx, "GET", path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// TransferRecipient is the provider-side handle for a transfer destination.
type TransferRecipient struct {
	RecipientCode string `json:"recipient_code"`
}

type recipientResponse struct {
	Status  bool              `json:"status"`
	Message string            `json:"message"`
	Data    TransferRecipient `json:"data"`
}

// CreateTransferRecipient registers a NUBAN destination for transfers.
// Transient provider failures are retried once.
func (c *Client) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*TransferRecipient, error) {
	payload := map[string]string{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	}
	var resp recipientResponse
	if err := c.do(ctx, "POST", "/transferrecipient", payload, &resp, true); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Transfer is the provider-side record of an outbound transfer.
type Transfer struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
}

type transferResponse struct {
	Status  bool     `json:"status"`
	Message string   `json:"message"`
	Data    Transfer `json:"data"`
}

// InitiateTransfer moves money from the Paystack balance to a recipient.
// The caller supplies the reference so retries stay idempotent at the provider.
// Amount is in kobo.
func (c *Client) InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amount int64) (*Transfer, error) {
	payload := map[string]any{
		"source":    "balance",
		"amount":    amount,
		"recipient": recipientCode,
		"reference": reference,
		"reason":    reason,
	}
	var resp transferResponse
	if err := c.do(ctx, "POST", "/transfer", payload, &resp, false); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Bank is one entry of Paystack's bank directory.
type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type bankListResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    []Bank `json:"data"`
}

// ListBanks fetches the NGN bank directory from Paystack.
func (c *Client) ListBanks(ctx context.Context) ([]Bank, error) {
	var resp bankListResponse
	if err := c.do(ctx, "GET", "/bank?currency=NGN", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// do executes one API call, decoding into out. When retryOnce is set, a 5xx or
// transport error is retried a single time before giving up.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any, retryOnce bool) error {
	attempts := 1
	if retryOnce {
		attempts = 2
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if apiErr, ok := err.(*ErrorResponse); ok && apiErr.StatusCode < 500 {
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=paystack_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return errResp
		}
		log.Printf("level=warn component=paystack_client path=%s status=%d message=%q", path, resp.StatusCode, errResp.Message)
		return errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
