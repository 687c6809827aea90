/**
 * @description
 * This file contains the Paystack webhook handler. Every delivery is
 * authenticated by recomputing the HMAC-SHA512 of the raw body with the
 * webhook secret and comparing it to the x-paystack-signature header.
 * Recognized events are dispatched to the service layer; duplicates and
 * semantic failures still answer 200 so Paystack stops redelivering.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha512, encoding/hex: Signature verification.
 * - encoding/json, io, log, net/http: Standard Go libraries.
 * - internal/app: Deposit and transfer settlement logic.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
)

// paystackWebhookEvent mirrors the webhook envelope, trimmed to the fields
// the handler reads.
type paystackWebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference     string `json:"reference"`
		Amount        int64  `json:"amount"`
		Reason        string `json:"reason"`
		Customer      struct {
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
		Authorization struct {
			ReceiverBankAccountNumber string `json:"receiver_bank_account_number"`
			SenderName                string `json:"sender_name"`
			SenderBank                string `json:"sender_bank"`
		} `json:"authorization"`
	} `json:"data"`
}

// PaystackWebhookHandler verifies and dispatches Paystack webhook events.
func (h *Handlers) PaystackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !validPaystackSignature(h.paystackWebhookSecret, body, r.Header.Get("x-paystack-signature")) {
		log.Printf("level=warn component=paystack_handler msg=\"webhook signature rejected\"")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event paystackWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=paystack_handler msg=\"unparsable webhook body\" error=%q", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	switch event.Event {
	case "charge.success":
		err = h.service.HandleDeposit(
			ctx,
			event.Data.Reference,
			event.Data.Customer.CustomerCode,
			event.Data.Authorization.ReceiverBankAccountNumber,
			event.Data.Amount,
			event.Data.Authorization.SenderName,
			event.Data.Authorization.SenderBank,
		)
	case "transfer.success":
		err = h.service.HandleTransferSettled(ctx, event.Data.Reference)
	case "transfer.failed", "transfer.reversed":
		err = h.service.HandleTransferFailed(ctx, event.Data.Reference, event.Data.Reason)
	default:
		log.Printf("level=info component=paystack_handler msg=\"ignoring event\" event=%s", event.Event)
	}

	// Semantic failures are logged, not surfaced: a non-2xx would only make
	// Paystack redeliver an event we already cannot process.
	if err != nil {
		log.Printf("level=error component=paystack_handler msg=\"event handling failed\" event=%s reference=%s error=%q",
			event.Event, event.Data.Reference, err)
	}

	w.WriteHeader(http.StatusOK)
}

func validPaystackSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
