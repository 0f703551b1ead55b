package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "SECT"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "sect.db"
	defaultLogLevel        = "info"
	defaultTokenTTLMinutes = 60 * 24
	defaultRefreshSeconds  = 300
	defaultArchiveHour     = 0
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	TokenTTL        time.Duration
	RefreshInterval time.Duration
	ArchiveHour     int
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
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("ranking.refresh_interval_s", defaultRefreshSeconds)
	configViper.SetDefault("ranking.archive_hour", defaultArchiveHour)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenTTL:        time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		RefreshInterval: time.Duration(configViper.GetInt("ranking.refresh_interval_s")) * time.Second,
		ArchiveHour:     configViper.GetInt("ranking.archive_hour"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
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
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("ranking.refresh_interval_s must be positive")
	}
	if c.ArchiveHour < 0 || c.ArchiveHour > 23 {
		return fmt.Errorf("ranking.archive_hour must be between 0 and 23")
	}
	return nil
}
