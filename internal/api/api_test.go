package api

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func testHandlers() *Handlers {
	return NewHandlers(HandlersParams{
		WhatsAppVerifyToken:   "verify-secret",
		PaystackWebhookSecret: "paystack-secret",
		OnboardingSecret:      "onboard-secret",
		BaseURL:               "https://sofi.test",
		PINVerifyRatePerMin:   5,
	})
}

func TestHealthEndpoint(t *testing.T) {
	router := Routes(testHandlers())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "healthy" {
		t.Fatalf("expected body %q, got %q", "healthy", rec.Body.String())
	}
}

func TestWhatsAppVerifyEchoesChallenge(t *testing.T) {
	h := testHandlers()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil)
	h.WhatsAppVerifyHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %q", rec.Body.String())
	}
}

func TestWhatsAppVerifyRejectsWrongToken(t *testing.T) {
	h := testHandlers()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	h.WhatsAppVerifyHandler(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	h := testHandlers()
	body := `{"event":"charge.success","data":{"reference":"ref_1","amount":500000}}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/paystack", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", "deadbeef")
	h.PaystackWebhookHandler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestPaystackWebhookRejectsMissingSignature(t *testing.T) {
	h := testHandlers()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/paystack", strings.NewReader(`{"event":"x"}`))
	h.PaystackWebhookHandler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestPaystackWebhookAcceptsUnknownEvent(t *testing.T) {
	h := testHandlers()
	body := `{"event":"subscription.create","data":{}}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/paystack", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", signBody("paystack-secret", []byte(body)))
	h.PaystackWebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown event, got %d", rec.Code)
	}
}

func TestMarkMessageSeenDeduplicates(t *testing.T) {
	h := testHandlers()

	if !h.markMessageSeen("wamid.abc") {
		t.Fatal("first delivery should not be treated as duplicate")
	}
	if h.markMessageSeen("wamid.abc") {
		t.Fatal("second delivery of the same id should be dropped")
	}
	if !h.markMessageSeen("wamid.def") {
		t.Fatal("a different message id should pass")
	}
}

func TestEnqueueInboundKeepsPerSenderOrder(t *testing.T) {
	h := testHandlers()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		i := i
		h.enqueueInbound("2348100000001", func() {
			defer wg.Done()
			if i == 0 {
				// The first message is the slowest; later ones must still wait.
				time.Sleep(30 * time.Millisecond)
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("messages ran out of order: %v", got)
		}
	}

	// The chain entry is cleaned up once the sender goes quiet.
	deadline := time.Now().Add(time.Second)
	for {
		h.sendersMu.Lock()
		n := len(h.senderTails)
		h.sendersMu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sender chain not cleaned up, %d entries left", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueInboundDoesNotBlockAcrossSenders(t *testing.T) {
	h := testHandlers()

	release := make(chan struct{})
	done := make(chan struct{})
	h.enqueueInbound("2348100000001", func() {
		<-release
		close(done)
	})
	h.enqueueInbound("2348100000002", func() {
		close(release)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a busy sender must not stall other senders")
	}
}

func TestOnboardingTokenRoundTrip(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	tok := signOnboardingToken("onboard-secret", "2348012345678", expiry)

	number, err := verifyOnboardingToken("onboard-secret", tok, time.Now())
	if err != nil {
		t.Fatalf("expected valid token, got error: %v", err)
	}
	if number != "2348012345678" {
		t.Fatalf("expected number to round-trip, got %q", number)
	}
}

func TestOnboardingTokenRejectsTampering(t *testing.T) {
	tok := signOnboardingToken("onboard-secret", "2348012345678", time.Now().Add(time.Hour))

	tampered := strings.Replace(tok, ".", "x", 1)
	if _, err := verifyOnboardingToken("onboard-secret", tampered, time.Now()); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}

	if _, err := verifyOnboardingToken("wrong-secret", tok, time.Now()); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestOnboardingTokenRejectsExpired(t *testing.T) {
	tok := signOnboardingToken("onboard-secret", "2348012345678", time.Now().Add(-time.Minute))

	if _, err := verifyOnboardingToken("onboard-secret", tok, time.Now()); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestOnboardFormRejectsBadToken(t *testing.T) {
	h := testHandlers()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/onboard?token=not-a-token", nil)
	h.OnboardFormHandler(rec, req)

	if rec.Code != http.StatusGone {
		t.Fatalf("expected status 410, got %d", rec.Code)
	}
}
