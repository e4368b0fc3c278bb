package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"PROPLEDGER_APP_NAME",
	"PROPLEDGER_APP_ENV",
	"PROPLEDGER_APP_PORT",
	"PROPLEDGER_DATABASE_HOST",
	"PROPLEDGER_DATABASE_PORT",
	"PROPLEDGER_DATABASE_PASSWORD",
	"PROPLEDGER_DATABASE_SSLMODE",
	"PROPLEDGER_DATABASE_MAX_OPEN_CONNS",
	"PROPLEDGER_DATABASE_MAX_IDLE_CONNS",
	"PROPLEDGER_DATABASE_AUTO_MIGRATE",
	"PROPLEDGER_SETTLEMENT_PLAN_CACHE_TTL",
	"PROPLEDGER_SETTLEMENT_MAX_PARALLEL_PLANS",
	"PROPLEDGER_SETTLEMENT_CURRENCY",
	"PROPLEDGER_SETTLEMENT_LOCALE",
	"PROPLEDGER_SETTLEMENT_DOWNLOAD_URL_TTL",
	"PROPLEDGER_STORAGE_BUCKET",
	"PROPLEDGER_STORAGE_ACCESS_KEY_ID",
	"PROPLEDGER_STORAGE_SECRET_ACCESS_KEY",
	"PROPLEDGER_TELEMETRY_SAMPLING_RATIO",
	"PROPLEDGER_TELEMETRY_DB_LOG_FULL_SQL",
	"PROPLEDGER_TELEMETRY_LOGS_ENABLED",
}

// clearEnv unsets every key the tests touch; t.Setenv restores them afterwards
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "propledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "propledger", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, 10*time.Minute, cfg.Settlement.PlanCacheTTL)
		assert.Equal(t, 4, cfg.Settlement.MaxParallelPlans)
		assert.Equal(t, "USD", cfg.Settlement.Currency)
		assert.Equal(t, "en-US", cfg.Settlement.Locale)
		assert.Equal(t, "statements", cfg.Settlement.ExportPrefix)
		assert.Equal(t, 15*time.Minute, cfg.Settlement.DownloadURLTTL)
		assert.False(t, cfg.Database.AutoMigrate)
		assert.False(t, cfg.Telemetry.LogsEnabled)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("loads values from environment variables with PROPLEDGER prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROPLEDGER_APP_NAME", "ledger-test")
		t.Setenv("PROPLEDGER_APP_PORT", "9000")
		t.Setenv("PROPLEDGER_DATABASE_HOST", "testdb.local")
		t.Setenv("PROPLEDGER_DATABASE_PORT", "5433")
		t.Setenv("PROPLEDGER_SETTLEMENT_PLAN_CACHE_TTL", "90s")
		t.Setenv("PROPLEDGER_SETTLEMENT_MAX_PARALLEL_PLANS", "8")
		t.Setenv("PROPLEDGER_SETTLEMENT_CURRENCY", "EUR")
		t.Setenv("PROPLEDGER_SETTLEMENT_LOCALE", "de-DE")
		t.Setenv("PROPLEDGER_SETTLEMENT_DOWNLOAD_URL_TTL", "1h")
		t.Setenv("PROPLEDGER_DATABASE_AUTO_MIGRATE", "true")
		t.Setenv("PROPLEDGER_TELEMETRY_LOGS_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledger-test", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 90*time.Second, cfg.Settlement.PlanCacheTTL)
		assert.Equal(t, 8, cfg.Settlement.MaxParallelPlans)
		assert.Equal(t, "EUR", cfg.Settlement.Currency)
		assert.Equal(t, "de-DE", cfg.Settlement.Locale)
		assert.Equal(t, time.Hour, cfg.Settlement.DownloadURLTTL)
		assert.True(t, cfg.Database.AutoMigrate)
		assert.True(t, cfg.Telemetry.LogsEnabled)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROPLEDGER_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("PROPLEDGER_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects a malformed currency code", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROPLEDGER_SETTLEMENT_CURRENCY", "DOLLAR")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "settlement.currency")
	})

	t.Run("rejects negative parallelism", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROPLEDGER_SETTLEMENT_MAX_PARALLEL_PLANS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_parallel_plans")
	})

	t.Run("storage keys must come in pairs", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROPLEDGER_STORAGE_BUCKET", "statements")
		t.Setenv("PROPLEDGER_STORAGE_ACCESS_KEY_ID", "AKIA")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set together")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROPLEDGER_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROPLEDGER_APP_ENV", "production")
		t.Setenv("PROPLEDGER_DATABASE_PASSWORD", "secure-password")
		t.Setenv("PROPLEDGER_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("PROPLEDGER_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("PROPLEDGER_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("forbids full SQL logging in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("PROPLEDGER_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
