package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"TRANSFER_FEE_NAIRA", "TRANSFER_FEE_PERCENT", "MIN_TRANSFER_KOBO", "MAX_DAILY_TRANSFERS"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MinTransferKobo != 10_000 {
		t.Fatalf("expected default minimum transfer of 10000 kobo, got %d", cfg.MinTransferKobo)
	}
	if cfg.MaxTransferKobo != 50_000_000 {
		t.Fatalf("expected default per-transaction cap of 50000000 kobo, got %d", cfg.MaxTransferKobo)
	}
	if cfg.MaxDailyAmountKobo != 200_000_000 {
		t.Fatalf("expected default daily cap of 200000000 kobo, got %d", cfg.MaxDailyAmountKobo)
	}
	if cfg.MaxDailyTransfers != 10 {
		t.Fatalf("expected default of 10 transfers per day, got %d", cfg.MaxDailyTransfers)
	}
	if cfg.TransferFeeFlatKobo != 1000 {
		t.Fatalf("expected default flat fee of 1000 kobo, got %d", cfg.TransferFeeFlatKobo)
	}
	if cfg.TransferFeeBps != 0 {
		t.Fatalf("expected default fee percentage of 0 bps, got %d", cfg.TransferFeeBps)
	}
	if cfg.PINMaxAttempts != 3 || cfg.PINLockoutSeconds != 900 {
		t.Fatalf("unexpected PIN policy defaults: attempts=%d lockout=%d", cfg.PINMaxAttempts, cfg.PINLockoutSeconds)
	}
	if cfg.PINTokenTTLMinutes != 15 {
		t.Fatalf("expected default token TTL of 15 minutes, got %d", cfg.PINTokenTTLMinutes)
	}
}

func TestLoadConfig_FeeNairaAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_FEE_NAIRA", "25")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferFeeFlatKobo != 2500 {
		t.Fatalf("expected flat fee of 2500 kobo from naira alias, got %d", cfg.TransferFeeFlatKobo)
	}
}

func TestLoadConfig_FeePercentToBasisPoints(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_FEE_PERCENT", "0.5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferFeeBps != 50 {
		t.Fatalf("expected 50 bps from 0.5 percent, got %d", cfg.TransferFeeBps)
	}
}

func TestLoadConfig_TrimsBaseURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "BASE_URL", "https://sofi.example.com/ ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BaseURL != "https://sofi.example.com" {
		t.Fatalf("expected trimmed base URL, got %q", cfg.BaseURL)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
		}
	})
}
