/**
 * @description
 * This file serves the PIN authorization page for pending transfers. The GET
 * handler renders a small form showing the transfer details behind a one-time
 * token; the POST endpoint verifies the PIN, consumes the token, and executes
 * the transfer. PIN submissions are rate limited per token.
 *
 * @dependencies
 * - html/template: Server-rendered form page.
 * - internal/app, internal/domain, internal/token: Authorization logic.
 */

package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sofihq/sofi-backend/internal/domain"
	"github.com/sofihq/sofi-backend/internal/token"
)

var pinFormTemplate = template.Must(template.New("pin").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Confirm transfer</title>
  <style>
    body { font-family: -apple-system, sans-serif; max-width: 22rem; margin: 3rem auto; padding: 0 1rem; color: #1a1a1a; }
    .card { border: 1px solid #e0e0e0; border-radius: 12px; padding: 1.5rem; }
    .amount { font-size: 1.6rem; font-weight: 700; }
    .recipient { color: #555; margin: 0.25rem 0 1rem; }
    input[type=password] { font-size: 1.4rem; letter-spacing: 0.6rem; text-align: center; width: 100%; padding: 0.5rem; box-sizing: border-box; }
    button { width: 100%; margin-top: 1rem; padding: 0.75rem; font-size: 1rem; border: 0; border-radius: 8px; background: #0a7d32; color: #fff; }
    .error { color: #c0392b; margin-top: 0.75rem; display: none; }
  </style>
</head>
<body>
  <div class="card">
    <div class="amount">{{.Amount}}</div>
    <div class="recipient">to {{.AccountName}} &middot; {{.BankName}}</div>
    <form id="pin-form">
      <input type="password" name="pin" inputmode="numeric" pattern="[0-9]{4}" maxlength="4" autocomplete="off" autofocus required>
      <button type="submit">Confirm transfer</button>
      <div class="error" id="error"></div>
    </form>
  </div>
  <script>
    document.getElementById("pin-form").addEventListener("submit", async function (e) {
      e.preventDefault();
      var errBox = document.getElementById("error");
      errBox.style.display = "none";
      var resp = await fetch("/api/verify-pin", {
        method: "POST",
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({ token: {{.Token}}, pin: e.target.pin.value })
      });
      var body = await resp.json();
      if (body.ok) {
        document.body.innerHTML = "<div class='card'><div class='amount'>Transfer on its way</div><div class='recipient'>You can close this page and return to WhatsApp.</div></div>";
      } else {
        errBox.textContent = body.message || body.reason;
        errBox.style.display = "block";
        e.target.pin.value = "";
      }
    });
  </script>
</body>
</html>
`))

type pinFormData struct {
	Token       string
	Amount      string
	AccountName string
	BankName    string
}

// PINFormHandler renders the PIN entry page for a pending transfer token.
func (h *Handlers) PINFormHandler(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	req, err := h.service.PeekTransferForToken(r.Context(), tok)
	if err != nil {
		http.Error(w, "This link has expired or was already used. Ask Sofi to start the transfer again.", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pinFormTemplate.Execute(w, pinFormData{
		Token:       tok,
		Amount:      domain.FormatNaira(req.Amount),
		AccountName: req.AccountName,
		BankName:    req.BankName,
	})
}

type verifyPINRequest struct {
	Token string `json:"token"`
	PIN   string `json:"pin"`
}

// verifyPINResponse carries a machine-readable reason code alongside the
// user-facing message the form displays.
type verifyPINResponse struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// VerifyPINHandler verifies a PIN against a pending transfer and executes it.
func (h *Handlers) VerifyPINHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, verifyPINResponse{Reason: "bad-request", Message: "Invalid request."})
		return
	}

	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "pin_verify", req.Token, h.pinVerifyRatePerMin, time.Minute)
	if err != nil {
		// Redis being down must not block transfers; the per-user PIN lockout
		// in the service still applies.
		log.Printf("level=warn component=pin_handler msg=\"rate limiter unavailable\" error=%q", err)
	} else if h.pinVerifyRatePerMin > 0 && count > h.pinVerifyRatePerMin {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, verifyPINResponse{
			Reason:  "rate-limited",
			Message: "Too many attempts. Please wait a moment and try again.",
		})
		return
	}

	if _, err := h.service.AuthorizeTransfer(r.Context(), req.Token, req.PIN); err != nil {
		reason, message := authorizeFailure(err)
		writeJSON(w, http.StatusOK, verifyPINResponse{Reason: reason, Message: message})
		return
	}

	writeJSON(w, http.StatusOK, verifyPINResponse{OK: true})
}

func authorizeFailure(err error) (reason, message string) {
	var toolErr *domain.ToolError
	if errors.As(err, &toolErr) {
		return string(toolErr.Kind), toolErr.Message
	}
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "token-expired", "This link has expired. Ask Sofi to start the transfer again."
	case errors.Is(err, token.ErrTokenUsed), errors.Is(err, token.ErrTokenNotFound):
		return "token-used", "This link was already used. Ask Sofi to start the transfer again."
	}
	return "internal-error", "Something went wrong. Please try again."
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
