package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.ZarinpalTimeout)
	assert.Equal(t, 10, cfg.MaxPriority)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ZARINPAL_API_BASE", "https://payment.zarinpal.com/")
	t.Setenv("PAYMENT_CHECK_DELAY", "5m")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "https://payment.zarinpal.com", cfg.ZarinpalAPIBase)
	assert.Equal(t, 5*time.Minute, cfg.PaymentCheckDelay)
	assert.Equal(t, 5, cfg.RateLimitBurst)
}

func TestSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(path, []byte("  s3cret\n"), 0o600))
	t.Setenv("JWT_SECRET_FILE", path)
	t.Setenv("JWT_SECRET", "ignored")

	assert.Equal(t, "s3cret", LoadConfig().JWTSecret)
}

func TestValidateProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "sqlite")

	err := LoadConfig().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "ZARINPAL_MERCHANT_ID")
}
