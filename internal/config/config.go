package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "HOSTFLOW"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = "sqlite"
	defaultDatabaseDSN        = "hostflow.db"
	defaultLogLevel           = "info"
	defaultAuthIssuer         = "hostflow-idp"
	defaultCookieName         = "hostflow_session"
	defaultAppURL             = "http://localhost:3000"
	defaultAnalyticsTimezone  = "UTC"
	defaultResyncInterval     = 30 * time.Second
	defaultJoinRatePerMinute  = 10
	defaultAllowedCORSOrigins = "http://localhost:3000"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabaseDSN    string
	LogLevel       string

	AuthSigningSecret string
	AuthIssuer        string
	AuthCookieName    string

	StripeSecretKey     string
	StripeWebhookSecret string
	AppURL              string

	TwilioAccountSID          string
	TwilioAuthToken           string
	TwilioMessagingServiceSID string
	TwilioBaseURL             string

	AnalyticsLocation  *time.Location
	ResyncInterval     time.Duration
	JoinRatePerMinute  int
	CORSAllowedOrigins []string
	TrustedProxies     []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("app.url", defaultAppURL)
	configViper.SetDefault("analytics.timezone", defaultAnalyticsTimezone)
	configViper.SetDefault("realtime.resync_interval", defaultResyncInterval)
	configViper.SetDefault("kiosk.join_rate_per_minute", defaultJoinRatePerMinute)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedCORSOrigins)
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing default file is not an error.
func LoadEnvFile(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return godotenv.Load(path)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	timezone := strings.TrimSpace(configViper.GetString("analytics.timezone"))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("analytics.timezone: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:               configViper.GetString("http.address"),
		DatabaseDriver:            strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:               configViper.GetString("database.dsn"),
		LogLevel:                  configViper.GetString("log.level"),
		AuthSigningSecret:         configViper.GetString("auth.signing_secret"),
		AuthIssuer:                configViper.GetString("auth.issuer"),
		AuthCookieName:            configViper.GetString("auth.cookie_name"),
		StripeSecretKey:           configViper.GetString("stripe.secret_key"),
		StripeWebhookSecret:       configViper.GetString("stripe.webhook_secret"),
		AppURL:                    configViper.GetString("app.url"),
		TwilioAccountSID:          configViper.GetString("twilio.account_sid"),
		TwilioAuthToken:           configViper.GetString("twilio.auth_token"),
		TwilioMessagingServiceSID: configViper.GetString("twilio.messaging_service_sid"),
		TwilioBaseURL:             configViper.GetString("twilio.base_url"),
		AnalyticsLocation:         location,
		ResyncInterval:            configViper.GetDuration("realtime.resync_interval"),
		JoinRatePerMinute:         configViper.GetInt("kiosk.join_rate_per_minute"),
		CORSAllowedOrigins:        splitList(configViper.GetStringSlice("cors.allowed_origins")),
		TrustedProxies:            splitList(configViper.GetStringSlice("http.trusted_proxies")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.ResyncInterval <= 0 {
		return fmt.Errorf("realtime.resync_interval must be positive")
	}
	if c.JoinRatePerMinute <= 0 {
		return fmt.Errorf("kiosk.join_rate_per_minute must be positive")
	}
	return nil
}

// splitList accepts both list values and a single comma separated string.
func splitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
