/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	PaystackSecretKey     string `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackWebhookSecret string `mapstructure:"PAYSTACK_WEBHOOK_SECRET"`

	WhatsAppAccessToken   string `mapstructure:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneNumberID string `mapstructure:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppVerifyToken   string `mapstructure:"WHATSAPP_VERIFY_TOKEN"`

	AssistantAPIKey string `mapstructure:"ASSISTANT_API_KEY"`
	AssistantID     string `mapstructure:"ASSISTANT_ID"`

	AirtimeAPIBaseURL string `mapstructure:"AIRTIME_API_BASE_URL"`
	AirtimeUserID     string `mapstructure:"AIRTIME_USER_ID"`
	AirtimeAPIKey     string `mapstructure:"AIRTIME_API_KEY"`

	// BaseURL is the public origin serving the PIN-entry and onboarding forms.
	BaseURL          string `mapstructure:"BASE_URL"`
	OnboardingSecret string `mapstructure:"ONBOARDING_SECRET"`
	PINPepper        string `mapstructure:"PIN_PEPPER"`

	// Transfer policy, kobo values unless noted.
	MinTransferKobo     int64 `mapstructure:"MIN_TRANSFER_KOBO"`
	MaxTransferKobo     int64 `mapstructure:"MAX_TRANSFER_KOBO"`
	MaxDailyAmountKobo  int64 `mapstructure:"MAX_DAILY_AMOUNT_KOBO"`
	MaxDailyTransfers   int   `mapstructure:"MAX_DAILY_TRANSFERS"`
	TransferFeeFlatKobo int64 `mapstructure:"TRANSFER_FEE_FLAT_KOBO"`
	TransferFeeBps      int64 `mapstructure:"TRANSFER_FEE_BPS"`
	TransferFeeCapKobo  int64 `mapstructure:"TRANSFER_FEE_CAP_KOBO"`

	PINMaxAttempts         int `mapstructure:"PIN_MAX_ATTEMPTS"`
	PINLockoutSeconds      int `mapstructure:"PIN_LOCKOUT_SECONDS"`
	PINTokenTTLMinutes     int `mapstructure:"PIN_TOKEN_TTL_MINUTES"`
	PINVerifyRatePerMin    int `mapstructure:"PIN_VERIFY_RATE_PER_MINUTE"`
	AssistantRunTimeoutSec int `mapstructure:"ASSISTANT_RUN_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("MIN_TRANSFER_KOBO", 10_000)          // ₦100
	viper.SetDefault("MAX_TRANSFER_KOBO", 50_000_000)      // ₦500,000
	viper.SetDefault("MAX_DAILY_AMOUNT_KOBO", 200_000_000) // ₦2,000,000
	viper.SetDefault("MAX_DAILY_TRANSFERS", 10)
	viper.SetDefault("TRANSFER_FEE_FLAT_KOBO", 1000) // ₦10
	viper.SetDefault("TRANSFER_FEE_BPS", 0)
	viper.SetDefault("TRANSFER_FEE_CAP_KOBO", 10_000) // ₦100
	viper.SetDefault("PIN_MAX_ATTEMPTS", 3)
	viper.SetDefault("PIN_LOCKOUT_SECONDS", 900)
	viper.SetDefault("PIN_TOKEN_TTL_MINUTES", 15)
	viper.SetDefault("PIN_VERIFY_RATE_PER_MINUTE", 10)
	viper.SetDefault("ASSISTANT_RUN_TIMEOUT_SECONDS", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal.
	for _, key := range []string{
		"SERVER_PORT", "PORT", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"PAYSTACK_SECRET_KEY", "PAYSTACK_WEBHOOK_SECRET",
		"WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "WHATSAPP_VERIFY_TOKEN",
		"ASSISTANT_API_KEY", "ASSISTANT_ID",
		"AIRTIME_API_BASE_URL", "AIRTIME_USER_ID", "AIRTIME_API_KEY",
		"BASE_URL", "ONBOARDING_SECRET", "PIN_PEPPER",
		"MIN_TRANSFER_KOBO", "MAX_TRANSFER_KOBO", "MAX_DAILY_AMOUNT_KOBO", "MAX_DAILY_TRANSFERS",
		"TRANSFER_FEE_FLAT_KOBO", "TRANSFER_FEE_BPS", "TRANSFER_FEE_CAP_KOBO",
		"TRANSFER_FEE_NAIRA", "TRANSFER_FEE_PERCENT",
		"PIN_MAX_ATTEMPTS", "PIN_LOCKOUT_SECONDS", "PIN_TOKEN_TTL_MINUTES",
		"PIN_VERIFY_RATE_PER_MINUTE", "ASSISTANT_RUN_TIMEOUT_SECONDS",
	} {
		_ = viper.BindEnv(key)
	}

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(viper.GetString("PORT")); port != "" {
		config.ServerPort = port
	}

	// Allow specifying the flat fee in whole naira via TRANSFER_FEE_NAIRA.
	if viper.IsSet("TRANSFER_FEE_NAIRA") {
		feeStr := strings.TrimSpace(viper.GetString("TRANSFER_FEE_NAIRA"))
		if feeStr != "" {
			feeValue, parseErr := strconv.ParseFloat(feeStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid TRANSFER_FEE_NAIRA\" value=%q err=%v", feeStr, parseErr)
			} else {
				config.TransferFeeFlatKobo = int64(math.Round(feeValue * 100))
			}
		}
	}

	// Allow specifying the percentage part as a percent value, e.g. 0.5.
	if viper.IsSet("TRANSFER_FEE_PERCENT") {
		pctStr := strings.TrimSpace(viper.GetString("TRANSFER_FEE_PERCENT"))
		if pctStr != "" {
			pctValue, parseErr := strconv.ParseFloat(pctStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid TRANSFER_FEE_PERCENT\" value=%q err=%v", pctStr, parseErr)
			} else {
				config.TransferFeeBps = int64(math.Round(pctValue * 100))
			}
		}
	}

	if config.TransferFeeFlatKobo < 0 {
		log.Printf("level=warn component=config msg=\"negative transfer fee configured; coercing to zero\" fee_kobo=%d", config.TransferFeeFlatKobo)
		config.TransferFeeFlatKobo = 0
	}
	if config.TransferFeeBps < 0 {
		config.TransferFeeBps = 0
	}
	if config.MinTransferKobo <= 0 {
		config.MinTransferKobo = 10_000
	}
	if config.MaxTransferKobo <= 0 {
		config.MaxTransferKobo = 50_000_000
	}
	if config.MaxDailyAmountKobo <= 0 {
		config.MaxDailyAmountKobo = 200_000_000
	}
	if config.MaxDailyTransfers <= 0 {
		config.MaxDailyTransfers = 10
	}
	if config.PINMaxAttempts <= 0 {
		config.PINMaxAttempts = 3
	}
	if config.PINLockoutSeconds <= 0 {
		config.PINLockoutSeconds = 900
	}
	if config.PINTokenTTLMinutes <= 0 {
		config.PINTokenTTLMinutes = 15
	}
	if config.AssistantRunTimeoutSec <= 0 {
		config.AssistantRunTimeoutSec = 30
	}
	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")

	return
}
