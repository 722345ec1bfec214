package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/admin"
	"github.com/kushal2060/SpeakFutbol/backend/internal/auth"
	"github.com/kushal2060/SpeakFutbol/backend/internal/config"
	"github.com/kushal2060/SpeakFutbol/backend/internal/database"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"github.com/kushal2060/SpeakFutbol/backend/internal/identity"
	"github.com/kushal2060/SpeakFutbol/backend/internal/logging"
	"github.com/kushal2060/SpeakFutbol/backend/internal/seed"
	"github.com/kushal2060/SpeakFutbol/backend/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "speakfootball-api",
		Short: "Speak Football backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the sample user and sample events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
	rootCmd.AddCommand(seedCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("google-userinfo-url", defaults.GetString("google.userinfo_url"), "Google userinfo endpoint")
	cmd.PersistentFlags().Int("google-timeout-seconds", defaults.GetInt("google.timeout_seconds"), "Google userinfo request timeout in seconds")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session cookie TTL in minutes")
	cmd.PersistentFlags().Bool("secure-cookie", defaults.GetBool("session.secure_cookie"), "Mark the session cookie Secure")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "CORS allowed origins")
	cmd.PersistentFlags().Bool("link-by-email", defaults.GetBool("auth.link_by_email"), "Link first Google logins to an existing account with the same email")
	cmd.PersistentFlags().Bool("refresh-profile-on-login", defaults.GetBool("auth.refresh_profile_on_login"), "Refresh names and claims from Google on every login")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "google.userinfo_url", "google-userinfo-url")
	bindFlag(cmd, "google.timeout_seconds", "google-timeout-seconds")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.secure_cookie", "secure-cookie")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "auth.link_by_email", "link-by-email")
	bindFlag(cmd, "auth.refresh_profile_on_login", "refresh-profile-on-login")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

func openDatabase(path string, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.OpenSQLite(path, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func runSeed(ctx context.Context) error {
	appConfig, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	store, err := accounts.NewStore(accounts.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	eventService, err := events.NewService(events.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	seeder, err := seed.New(seed.Config{Accounts: store, Events: eventService, Logger: logger})
	if err != nil {
		return err
	}
	_, err = seeder.Run(ctx)
	return err
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

	db, closeDB, err := openDatabase(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	store, err := accounts.NewStore(accounts.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	dispatcher := server.NewRosterDispatcher()
	eventService, err := events.NewService(events.ServiceConfig{
		Database:  db,
		Clock:     time.Now,
		Logger:    logger,
		Publisher: dispatcher,
	})
	if err != nil {
		return err
	}

	registry, err := admin.NewRegistry(admin.RegistryConfig{
		Database: db,
		Users:    store,
		Events:   eventService,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	userInfoClient, err := auth.NewGoogleUserInfoClient(auth.GoogleUserInfoConfig{
		UserInfoURL: appConfig.GoogleUserInfoURL,
		Timeout:     appConfig.GoogleTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	sessionIssuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TTL:           appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	identityService, err := identity.NewService(identity.ServiceConfig{
		Store:    store,
		Provider: userInfoClient,
		Sessions: sessionIssuer,
		Options: identity.Options{
			LinkExistingByEmail:   appConfig.LinkByEmail,
			RefreshProfileOnLogin: appConfig.RefreshProfileOnLogin,
		},
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	registryMetrics := prometheus.NewRegistry()
	registryMetrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Identity:           identityService,
		Accounts:           store,
		Events:             eventService,
		Admin:              registry,
		Sessions:           sessionValidator,
		Realtime:           dispatcher,
		Metrics:            registryMetrics,
		AllowedOrigins:     appConfig.AllowedOrigins,
		SecureCookies:      appConfig.SecureCookies,
		LoginRatePerMinute: appConfig.LoginRatePerMinute,
		TokenCacheSize:     appConfig.TokenCacheSize,
		TokenCacheTTL:      appConfig.TokenCacheTTL,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
