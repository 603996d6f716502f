package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/auth"
	"github.com/MarcoPoloResearchLab/hostflow/internal/billing"
	"github.com/MarcoPoloResearchLab/hostflow/internal/config"
	"github.com/MarcoPoloResearchLab/hostflow/internal/database"
	"github.com/MarcoPoloResearchLab/hostflow/internal/logging"
	"github.com/MarcoPoloResearchLab/hostflow/internal/notify"
	"github.com/MarcoPoloResearchLab/hostflow/internal/server"
	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultEnvFile  = ".env"
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hostflow-api",
		Short: "Restaurant waitlist backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "Path to a KEY=VALUE environment file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Host session signing secret (overrides env)")
	cmd.PersistentFlags().String("analytics-timezone", defaults.GetString("analytics.timezone"), "IANA timezone for analytics days and hours")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "analytics.timezone", "analytics-timezone")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runMigrations() error {
	logger, err := logging.NewLogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: viper.GetString("database.driver"),
		DSN:    viper.GetString("database.dsn"),
	}, logger)
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	smsSender := notify.NewTwilioSender(notify.TwilioConfig{
		AccountSID:          appConfig.TwilioAccountSID,
		AuthToken:           appConfig.TwilioAuthToken,
		MessagingServiceSID: appConfig.TwilioMessagingServiceSID,
		BaseURL:             appConfig.TwilioBaseURL,
	})
	if !smsSender.Configured() {
		logger.Warn("sms gateway not configured; guest notifications disabled")
	}
	notifications := notify.NewDispatcher(notify.DispatcherConfig{
		Sender: smsSender,
		Logger: logger,
	})
	go notifications.Run(signalCtx)

	realtime := server.NewRealtimeDispatcher()
	waitlistService, err := waitlist.NewService(waitlist.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: waitlist.NewUUIDProvider(),
		Logger:     logger,
		Publisher:  realtime,
		Notifier:   notifications,
	})
	if err != nil {
		return err
	}

	var paymentProvider billing.PaymentProvider
	if strings.TrimSpace(appConfig.StripeSecretKey) != "" {
		stripeProvider, err := billing.NewStripeProvider(appConfig.StripeSecretKey)
		if err != nil {
			return err
		}
		paymentProvider = stripeProvider
	} else {
		logger.Warn("payment provider not configured; checkout disabled")
	}
	billingService, err := billing.NewService(billing.ServiceConfig{
		Database:      db,
		Provider:      paymentProvider,
		WebhookSecret: appConfig.StripeWebhookSecret,
		AppURL:        appConfig.AppURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator:  sessionValidator,
		Waitlist:          waitlistService,
		Billing:           billingService,
		SMS:               smsSender,
		Realtime:          realtime,
		Logger:            logger,
		AllowedOrigins:    appConfig.CORSAllowedOrigins,
		TrustedProxies:    appConfig.TrustedProxies,
		JoinRatePerMinute: appConfig.JoinRatePerMinute,
		ResyncInterval:    appConfig.ResyncInterval,
		AnalyticsLocation: appConfig.AnalyticsLocation,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end with the process signal instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return signalCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
