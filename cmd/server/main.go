/**
 * @description
 * This is the main entry point for the Sofi backend. It is responsible for
 * initializing all components of the service: configuration, the database
 * connection pool, external API clients (Paystack, WhatsApp Cloud API, the
 * assistant API, the airtime vendor), the RabbitMQ event producer, the Redis
 * rate limiter, the repository, the core application service, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/paystackclient, pkg/whatsappclient, pkg/assistantclient, pkg/airtimeclient,
 *   pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sofihq/sofi-backend/internal/api"
	"github.com/sofihq/sofi-backend/internal/app"
	"github.com/sofihq/sofi-backend/internal/config"
	"github.com/sofihq/sofi-backend/internal/security"
	"github.com/sofihq/sofi-backend/internal/store"
	"github.com/sofihq/sofi-backend/internal/token"
	"github.com/sofihq/sofi-backend/pkg/airtimeclient"
	"github.com/sofihq/sofi-backend/pkg/assistantclient"
	"github.com/sofihq/sofi-backend/pkg/paystackclient"
	"github.com/sofihq/sofi-backend/pkg/rabbitmq"
	"github.com/sofihq/sofi-backend/pkg/whatsappclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.PINPepper) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"pin pepper must be configured\" env=PIN_PEPPER")
	}
	if strings.TrimSpace(cfg.OnboardingSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"onboarding secret must be configured\" env=ONBOARDING_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting sofi-backend\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish wallet events. The service
	// works without it; events are dropped with a warning.
	var eventProducer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventProducer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the PIN verification rate limiter. Missing Redis degrades to
	// per-user lockout only.
	var pinLimiter *app.RedisPINRateLimiter
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; pin rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; pin rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; pin rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				pinLimiter = app.NewRedisPINRateLimiter(redisClient, "sofi:rate_limit")
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the external API clients.
	paystackClient := paystackclient.NewClient("", cfg.PaystackSecretKey)
	whatsappClient := whatsappclient.NewClient("", cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID)
	assistantAPI := assistantclient.NewClient("", cfg.AssistantAPIKey)
	airtimeVendor := airtimeclient.NewClient(cfg.AirtimeAPIBaseURL, cfg.AirtimeUserID, cfg.AirtimeAPIKey)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	service := app.NewService(
		repository,
		paystackClient,
		whatsappClient,
		airtimeVendor,
		token.NewManager(),
		security.NewPINHasher(cfg.PINPepper),
		eventProducer,
		app.Limits{
			MinTransfer:       cfg.MinTransferKobo,
			MaxTransfer:       cfg.MaxTransferKobo,
			MaxDailyAmount:    cfg.MaxDailyAmountKobo,
			MaxDailyTransfers: cfg.MaxDailyTransfers,
			FeeFlat:           cfg.TransferFeeFlatKobo,
			FeeBps:            cfg.TransferFeeBps,
			FeeCap:            cfg.TransferFeeCapKobo,
			PINMaxAttempts:    cfg.PINMaxAttempts,
			PINLockoutSeconds: cfg.PINLockoutSeconds,
			TokenTTL:          time.Duration(cfg.PINTokenTTLMinutes) * time.Minute,
		},
		cfg.BaseURL,
	)

	conversation := app.NewConversation(
		assistantAPI,
		cfg.AssistantID,
		app.BankingTools(service),
		repository,
		time.Duration(cfg.AssistantRunTimeoutSec)*time.Second,
	)

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(api.HandlersParams{
		Service:               service,
		Conversation:          conversation,
		Messenger:             whatsappClient,
		Limiter:               pinLimiter,
		WhatsAppVerifyToken:   cfg.WhatsAppVerifyToken,
		PaystackWebhookSecret: cfg.PaystackWebhookSecret,
		OnboardingSecret:      cfg.OnboardingSecret,
		BaseURL:               cfg.BaseURL,
		PINVerifyRatePerMin:   cfg.PINVerifyRatePerMin,
	})
	router := api.Routes(handlers)

	// Expire transfer requests whose PIN window lapsed without authorization.
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go expireStaleTransfers(janitorCtx, repository)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// expireStaleTransfers sweeps awaiting_pin transfer requests past their
// expiry once a minute until ctx is cancelled.
func expireStaleTransfers(ctx context.Context, repo store.Repository) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			expired, err := repo.ExpireStaleTransferRequests(sweepCtx)
			cancel()
			if err != nil {
				log.Printf("level=warn component=janitor msg=\"transfer expiry sweep failed\" err=%v", err)
				continue
			}
			if expired > 0 {
				log.Printf("level=info component=janitor msg=\"expired stale transfer requests\" count=%d", expired)
			}
		}
	}
}
