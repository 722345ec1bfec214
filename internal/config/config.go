package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "SPEAKFOOTBALL"
	defaultHTTPAddress         = "0.0.0.0:8000"
	defaultDatabasePath        = "speakfootball.db"
	defaultLogLevel            = "info"
	defaultCookieName          = "sf_session"
	defaultSessionTTLMinutes   = 60 * 24 * 14
	defaultGoogleUserInfoURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	defaultGoogleTimeoutSecond = 5
	defaultLoginRatePerMinute  = 30
	defaultTokenCacheSize      = 1024
	defaultTokenCacheTTLSecond = 60
)

// AppConfig captures runtime configuration for the API server and the seeder.
type AppConfig struct {
	HTTPAddress           string
	DatabasePath          string
	LogLevel              string
	SigningSecret         string
	SessionCookieName     string
	SessionTTL            time.Duration
	SecureCookies         bool
	GoogleUserInfoURL     string
	GoogleTimeout         time.Duration
	LoginRatePerMinute    int
	LinkByEmail           bool
	RefreshProfileOnLogin bool
	AllowedOrigins        []string
	TokenCacheSize        int
	TokenCacheTTL         time.Duration
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("session.secure_cookie", false)
	configViper.SetDefault("google.userinfo_url", defaultGoogleUserInfoURL)
	configViper.SetDefault("google.timeout_seconds", defaultGoogleTimeoutSecond)
	configViper.SetDefault("auth.login_rate_per_minute", defaultLoginRatePerMinute)
	configViper.SetDefault("auth.link_by_email", false)
	configViper.SetDefault("auth.refresh_profile_on_login", false)
	configViper.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	configViper.SetDefault("token.cache_size", defaultTokenCacheSize)
	configViper.SetDefault("token.cache_ttl_seconds", defaultTokenCacheTTLSecond)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		DatabasePath:          configViper.GetString("database.path"),
		LogLevel:              configViper.GetString("log.level"),
		SigningSecret:         configViper.GetString("auth.signing_secret"),
		SessionCookieName:     configViper.GetString("session.cookie_name"),
		SessionTTL:            time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SecureCookies:         configViper.GetBool("session.secure_cookie"),
		GoogleUserInfoURL:     configViper.GetString("google.userinfo_url"),
		GoogleTimeout:         time.Duration(configViper.GetInt("google.timeout_seconds")) * time.Second,
		LoginRatePerMinute:    configViper.GetInt("auth.login_rate_per_minute"),
		LinkByEmail:           configViper.GetBool("auth.link_by_email"),
		RefreshProfileOnLogin: configViper.GetBool("auth.refresh_profile_on_login"),
		AllowedOrigins:        normalizeOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		TokenCacheSize:        configViper.GetInt("token.cache_size"),
		TokenCacheTTL:         time.Duration(configViper.GetInt("token.cache_ttl_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the keys required to open the database, for commands that never serve HTTP.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return AppConfig{}, fmt.Errorf("database.path is required")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.GoogleUserInfoURL) == "" {
		return fmt.Errorf("google.userinfo_url is required")
	}
	if c.GoogleTimeout <= 0 {
		return fmt.Errorf("google.timeout_seconds must be positive")
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("auth.login_rate_per_minute must be positive")
	}
	if c.TokenCacheSize <= 0 {
		return fmt.Errorf("token.cache_size must be positive")
	}
	return nil
}

func normalizeOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
