/**
 * @description
 * This file serves the onboarding flow for new WhatsApp senders. The invite
 * link carries a signed token binding the sender's phone number and an expiry,
 * so the registration form cannot be replayed for a different number. The GET
 * handler renders the form; the POST endpoint creates the customer, the
 * dedicated virtual account, and the local user.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256: Onboarding token signing.
 * - html/template: Server-rendered form page.
 * - internal/app, internal/domain: Registration service logic.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sofihq/sofi-backend/internal/app"
	"github.com/sofihq/sofi-backend/internal/domain"
)

var errOnboardingToken = errors.New("invalid onboarding token")

// signOnboardingToken binds a WhatsApp number and an expiry into a compact
// signed token of the form base64(number).expiryUnix.hexSignature.
func signOnboardingToken(secret, whatsappNumber string, expiresAt time.Time) string {
	number := base64.RawURLEncoding.EncodeToString([]byte(whatsappNumber))
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	return number + "." + expiry + "." + onboardingSignature(secret, number, expiry)
}

// verifyOnboardingToken checks the signature and expiry of a token and
// returns the WhatsApp number it was issued for.
func verifyOnboardingToken(secret, tok string, now time.Time) (string, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return "", errOnboardingToken
	}
	expected := onboardingSignature(secret, parts[0], parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return "", errOnboardingToken
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || now.Unix() > expiry {
		return "", errOnboardingToken
	}
	number, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", errOnboardingToken
	}
	return string(number), nil
}

func onboardingSignature(secret, number, expiry string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", number, expiry)
	return hex.EncodeToString(mac.Sum(nil))
}

var onboardFormTemplate = template.Must(template.New("onboard").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Open your Sofi account</title>
  <style>
    body { font-family: -apple-system, sans-serif; max-width: 22rem; margin: 3rem auto; padding: 0 1rem; color: #1a1a1a; }
    .card { border: 1px solid #e0e0e0; border-radius: 12px; padding: 1.5rem; }
    h1 { font-size: 1.3rem; margin-top: 0; }
    label { display: block; margin-top: 0.75rem; font-size: 0.9rem; color: #555; }
    input { width: 100%; padding: 0.5rem; box-sizing: border-box; font-size: 1rem; }
    button { width: 100%; margin-top: 1.25rem; padding: 0.75rem; font-size: 1rem; border: 0; border-radius: 8px; background: #0a7d32; color: #fff; }
    .error { color: #c0392b; margin-top: 0.75rem; display: none; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Open your Sofi account</h1>
    <form id="onboard-form">
      <label>Full name<input name="full_name" autocomplete="name" required></label>
      <label>Email<input type="email" name="email" autocomplete="email" required></label>
      <label>Choose a 4-digit transaction PIN<input type="password" name="pin" inputmode="numeric" pattern="[0-9]{4}" maxlength="4" autocomplete="off" required></label>
      <button type="submit">Create account</button>
      <div class="error" id="error"></div>
    </form>
  </div>
  <script>
    document.getElementById("onboard-form").addEventListener("submit", async function (e) {
      e.preventDefault();
      var errBox = document.getElementById("error");
      errBox.style.display = "none";
      var resp = await fetch("/api/onboard", {
        method: "POST",
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({
          token: {{.Token}},
          full_name: e.target.full_name.value,
          email: e.target.email.value,
          pin: e.target.pin.value
        })
      });
      var body = await resp.json();
      if (body.ok) {
        document.body.innerHTML = "<div class='card'><h1>You're all set!</h1><p>Your account number is <strong>" + body.account_number + "</strong> (" + body.bank_name + "). Head back to WhatsApp and say hi to Sofi.</p></div>";
      } else {
        errBox.textContent = body.reason;
        errBox.style.display = "block";
      }
    });
  </script>
</body>
</html>
`))

type onboardFormData struct {
	Token string
}

// OnboardFormHandler renders the registration form behind a signed invite link.
func (h *Handlers) OnboardFormHandler(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if _, err := verifyOnboardingToken(h.onboardingSecret, tok, time.Now()); err != nil {
		http.Error(w, "This link has expired. Message Sofi on WhatsApp to get a fresh one.", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	onboardFormTemplate.Execute(w, onboardFormData{Token: tok})
}

type onboardRequest struct {
	Token    string `json:"token"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	PIN      string `json:"pin"`
}

type onboardResponse struct {
	OK            bool   `json:"ok"`
	AccountNumber string `json:"account_number,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// OnboardHandler creates a new user from a signed invite token.
func (h *Handlers) OnboardHandler(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, onboardResponse{Reason: "Invalid request."})
		return
	}

	number, err := verifyOnboardingToken(h.onboardingSecret, req.Token, time.Now())
	if err != nil {
		writeJSON(w, http.StatusGone, onboardResponse{Reason: "This link has expired. Message Sofi on WhatsApp to get a fresh one."})
		return
	}

	user, account, err := h.service.Onboard(r.Context(), app.OnboardParams{
		WhatsAppNumber: number,
		FullName:       req.FullName,
		Email:          req.Email,
		PIN:            req.PIN,
	})
	if err != nil {
		var toolErr *domain.ToolError
		if errors.As(err, &toolErr) {
			writeJSON(w, http.StatusUnprocessableEntity, onboardResponse{Reason: toolErr.Message})
			return
		}
		log.Printf("level=error component=onboard_handler msg=\"registration failed\" error=%q", err)
		writeJSON(w, http.StatusBadGateway, onboardResponse{Reason: "We couldn't open your account right now. Please try again shortly."})
		return
	}

	welcome := fmt.Sprintf("Welcome aboard, %s! Your Sofi account is ready.\n\nAccount number: %s\nBank: %s\n\nFund it with a transfer from any bank and I'll let you know the moment it lands.",
		firstNameOf(user.FullName), account.AccountNumber, account.BankName)
	if err := h.messenger.SendText(r.Context(), user.WhatsAppNumber, welcome); err != nil {
		log.Printf("level=warn component=onboard_handler msg=\"welcome message send failed\" user_id=%s error=%q", user.ID, err)
	}

	writeJSON(w, http.StatusOK, onboardResponse{
		OK:            true,
		AccountNumber: account.AccountNumber,
		BankName:      account.BankName,
	})
}

func firstNameOf(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
