package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INGEST_SERVICE_TOKEN", "svc-token")
	t.Setenv("ADMIN_TOKEN", "admin-token")
	t.Setenv("DASHBOARD_ALLOWED_ORIGINS", "https://dashboard.example.com")
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, 3306, cfg.DBPort)
		assert.Equal(t, 7, cfg.RollupWindowDays)
		assert.Equal(t, []string{"https://dashboard.example.com"}, cfg.AllowedOrigins)
	})

	t.Run("MissingServiceToken", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("INGEST_SERVICE_TOKEN", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "INGEST_SERVICE_TOKEN")
	})

	t.Run("WindowLengthLocked", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ROLLUP_WINDOW_DAYS", "14")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locked to 7")
	})

	t.Run("ExplicitSevenAccepted", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ROLLUP_WINDOW_DAYS", "7")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.RollupWindowDays)
	})
}

func TestParseTokenMap(t *testing.T) {
	t.Run("MultipleEntries", func(t *testing.T) {
		tokens, err := ParseTokenMap("tok-a:user-1, tok-b:user-2,tok-admin:*")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"tok-a":     "user-1",
			"tok-b":     "user-2",
			"tok-admin": "*",
		}, tokens)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		tokens, err := ParseTokenMap("")
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("MissingSeparator", func(t *testing.T) {
		_, err := ParseTokenMap("tok-a")
		require.Error(t, err)
	})

	t.Run("EmptyUser", func(t *testing.T) {
		_, err := ParseTokenMap("tok-a:")
		require.Error(t, err)
	})
}
