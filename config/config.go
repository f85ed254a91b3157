// Package config loads publisher settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Storage    StorageConfig `mapstructure:"storage"`
	Source     SourceConfig  `mapstructure:"source"`
	X          XConfig       `mapstructure:"x"`
	Email      EmailConfig   `mapstructure:"email"`
	Port       string        `mapstructure:"port"`
	MinGapDays int           `mapstructure:"min_gap_days"`
	DryRun     bool          `mapstructure:"dry_run"`
}

// StorageConfig selects where posts and media are read from.
type StorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	LocalPath string `mapstructure:"local_path"`
}

// SourceConfig describes the candidate pool.
type SourceConfig struct {
	PostsPrefix  string   `mapstructure:"posts_prefix"`
	PageSelector string   `mapstructure:"page_selector"`
	Pages        []string `mapstructure:"pages"`
	DisablePosts bool     `mapstructure:"disable_posts"`
}

// XConfig holds X API credentials.
type XConfig struct {
	UserID       string        `mapstructure:"user_id"`
	Account      string        `mapstructure:"account"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RefreshToken string        `mapstructure:"refresh_token"`
	AccessToken  string        `mapstructure:"access_token"`
	TokenKey     string        `mapstructure:"token_key"` // Storage key of the rotated refresh token
	BaseURL      string        `mapstructure:"base_url"`
	MaxPages     int           `mapstructure:"max_pages"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// EmailConfig controls operator notifications. An empty Provider disables mail.
type EmailConfig struct {
	Provider              string `mapstructure:"provider"` // gmail, brevo or mock
	To                    string `mapstructure:"to"`
	From                  string `mapstructure:"from"`
	FromName              string `mapstructure:"from_name"`
	BrevoAPIKey           string `mapstructure:"brevo_api_key"`
	GoogleCredentialsJSON string `mapstructure:"google_credentials_json"`
	NotifyWarnings        bool   `mapstructure:"notify_warnings"`
}

// keys maps configuration keys to environment variables.
var keys = map[string]string{
	"min_gap_days":                  "MIN_GAP_DAYS",
	"dry_run":                       "DRY_RUN",
	"port":                          "PORT",
	"storage.bucket":                "STORAGE_BUCKET",
	"storage.local_path":            "LOCAL_STORAGE",
	"source.posts_prefix":           "POSTS_PREFIX",
	"source.pages":                  "SOURCE_PAGES",
	"source.page_selector":          "SOURCE_PAGE_SELECTOR",
	"source.disable_posts":          "DISABLE_POSTS",
	"x.user_id":                     "X_USER_ID",
	"x.account":                     "X_ACCOUNT",
	"x.client_id":                   "X_CLIENT_ID",
	"x.client_secret":               "X_CLIENT_SECRET",
	"x.refresh_token":               "X_REFRESH_TOKEN",
	"x.access_token":                "X_ACCESS_TOKEN",
	"x.token_key":                   "X_TOKEN_KEY",
	"x.base_url":                    "X_BASE_URL",
	"x.max_pages":                   "X_MAX_PAGES",
	"x.timeout":                     "X_TIMEOUT",
	"email.provider":                "EMAIL_PROVIDER",
	"email.to":                      "EMAIL_TO",
	"email.from":                    "EMAIL_FROM",
	"email.from_name":               "EMAIL_FROM_NAME",
	"email.brevo_api_key":           "BREVO_API_KEY",
	"email.google_credentials_json": "GOOGLE_CREDENTIALS_JSON",
	"email.notify_warnings":         "EMAIL_NOTIFY_WARNINGS",
}

// Load reads configuration. A .env file in the working directory is loaded
// first when present; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("min_gap_days", 3)
	v.SetDefault("port", "8080")
	v.SetDefault("source.posts_prefix", "_posts/")
	v.SetDefault("x.max_pages", 32)
	v.SetDefault("x.token_key", "state/x_refresh_token")
	v.SetDefault("x.timeout", 30*time.Second)
	v.SetDefault("email.from_name", "Tweet Publisher")

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Default to local development mode if no bucket specified
	if cfg.Storage.Bucket == "" && cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	cfg.Source.Pages = compact(cfg.Source.Pages)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error
	if c.MinGapDays < 0 {
		errs = append(errs, fmt.Errorf("min_gap_days must not be negative, got %d", c.MinGapDays))
	}
	if c.X.UserID == "" {
		errs = append(errs, errors.New("x.user_id (X_USER_ID) is required"))
	}
	if c.X.AccessToken == "" && c.X.RefreshToken == "" {
		errs = append(errs, errors.New("x.access_token or x.refresh_token is required"))
	}
	if c.X.RefreshToken != "" && c.X.ClientID == "" {
		errs = append(errs, errors.New("x.client_id is required with a refresh token"))
	}
	if c.Source.DisablePosts && len(c.Source.Pages) == 0 {
		errs = append(errs, errors.New("no candidate source configured"))
	}
	switch c.Email.Provider {
	case "", "mock":
	case "gmail":
		if c.Email.To == "" {
			errs = append(errs, errors.New("email.to is required for gmail"))
		}
	case "brevo":
		if c.Email.To == "" || c.Email.From == "" || c.Email.BrevoAPIKey == "" {
			errs = append(errs, errors.New("email.to, email.from and email.brevo_api_key are required for brevo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown email provider %q", c.Email.Provider))
	}
	return errors.Join(errs...)
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
