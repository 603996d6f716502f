package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPAddress, cfg.HTTPAddress)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, defaultDatabaseDSN, cfg.DatabaseDSN)
	assert.Equal(t, defaultCookieName, cfg.AuthCookieName)
	assert.Equal(t, 30*time.Second, cfg.ResyncInterval)
	assert.Equal(t, defaultJoinRatePerMinute, cfg.JoinRatePerMinute)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, time.UTC, cfg.AnalyticsLocation)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("HOSTFLOW_AUTH_SIGNING_SECRET", "env-secret")
	t.Setenv("HOSTFLOW_DATABASE_DRIVER", "Postgres")
	t.Setenv("HOSTFLOW_DATABASE_DSN", "postgres://localhost/hostflow")
	t.Setenv("HOSTFLOW_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HOSTFLOW_TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("HOSTFLOW_REALTIME_RESYNC_INTERVAL", "45s")
	t.Setenv("HOSTFLOW_HTTP_TRUSTED_PROXIES", "10.0.0.1,10.0.0.0/8")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.AuthSigningSecret)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "postgres://localhost/hostflow", cfg.DatabaseDSN)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "AC1", cfg.TwilioAccountSID)
	assert.Equal(t, 45*time.Second, cfg.ResyncInterval)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.0/8"}, cfg.TrustedProxies)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	testCases := map[string]func(map[string]any){
		"missing secret":   func(values map[string]any) { delete(values, "auth.signing_secret") },
		"unknown driver":   func(values map[string]any) { values["database.driver"] = "oracle" },
		"unknown timezone": func(values map[string]any) { values["analytics.timezone"] = "Mars/Olympus" },
		"zero join rate":   func(values map[string]any) { values["kiosk.join_rate_per_minute"] = 0 },
	}
	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			values := map[string]any{"auth.signing_secret": "secret"}
			mutate(values)
			configViper := NewViper()
			for key, value := range values {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), false))
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), true))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HOSTFLOW_TEST_ENV_FILE_KEY=from-file\n"), 0o600))
	t.Setenv("HOSTFLOW_TEST_ENV_FILE_KEY", "")
	require.NoError(t, os.Unsetenv("HOSTFLOW_TEST_ENV_FILE_KEY"))

	require.NoError(t, LoadEnvFile(path, true))
	assert.Equal(t, "from-file", os.Getenv("HOSTFLOW_TEST_ENV_FILE_KEY"))
}
