/**
 * @description
 * This file wires the HTTP surface of the Sofi backend: webhook endpoints for
 * WhatsApp and Paystack, the browser-facing PIN and onboarding forms, and a
 * health check. Handlers holds the collaborators the endpoint handlers need.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: HTTP router and middleware.
 * - github.com/dgraph-io/ristretto: TTL cache for webhook deduplication.
 * - internal/app: Core business logic services.
 */

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sofihq/sofi-backend/internal/app"
)

// Handlers bundles the dependencies of the HTTP endpoint handlers.
type Handlers struct {
	service      *app.Service
	conversation *app.Conversation
	messenger    app.Messenger
	limiter      *app.RedisPINRateLimiter

	whatsappVerifyToken   string
	paystackWebhookSecret string
	onboardingSecret      string
	baseURL               string
	pinVerifyRatePerMin   int

	seenMessages *ristretto.Cache

	// senderTails chains inbound work per sender so one user's messages run
	// in arrival order while different senders proceed in parallel.
	sendersMu   sync.Mutex
	senderTails map[string]chan struct{}
}

// HandlersParams configures NewHandlers.
type HandlersParams struct {
	Service      *app.Service
	Conversation *app.Conversation
	Messenger    app.Messenger
	Limiter      *app.RedisPINRateLimiter

	WhatsAppVerifyToken   string
	PaystackWebhookSecret string
	OnboardingSecret      string
	BaseURL               string
	PINVerifyRatePerMin   int
}

// NewHandlers creates the handler set. The message dedup cache is sized for
// roughly ten minutes of webhook traffic; if it cannot be created the handlers
// still work, just without dedup.
func NewHandlers(params HandlersParams) *Handlers {
	cache, _ := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})

	return &Handlers{
		service:               params.Service,
		conversation:          params.Conversation,
		messenger:             params.Messenger,
		limiter:               params.Limiter,
		whatsappVerifyToken:   params.WhatsAppVerifyToken,
		paystackWebhookSecret: params.PaystackWebhookSecret,
		onboardingSecret:      params.OnboardingSecret,
		baseURL:               params.BaseURL,
		pinVerifyRatePerMin:   params.PINVerifyRatePerMin,
		seenMessages:          cache,
		senderTails:           make(map[string]chan struct{}),
	}
}

// Routes builds the HTTP handler for the whole service.
func Routes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Get("/webhook/whatsapp", h.WhatsAppVerifyHandler)
	r.Post("/webhook/whatsapp", h.WhatsAppInboundHandler)
	r.Post("/webhook/paystack", h.PaystackWebhookHandler)

	r.Get("/verify-pin", h.PINFormHandler)
	r.Post("/api/verify-pin", h.VerifyPINHandler)

	r.Get("/onboard", h.OnboardFormHandler)
	r.Post("/api/onboard", h.OnboardHandler)

	return r
}
