package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Catalog backends.
const (
	BackendDynamo = "dynamo"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Public origin the provider calls back
	BaseURL string `mapstructure:"base-url"`
	Port    int    `mapstructure:"port"`

	// Catalog store
	CatalogBackend string `mapstructure:"catalog-backend"`
	DynamoTable    string `mapstructure:"dynamo-table"`
	SQLitePath     string `mapstructure:"sqlite-path"`

	// Object store
	Bucket        string `mapstructure:"bucket"`
	S3Endpoint    string `mapstructure:"s3-endpoint"`
	S3Region      string `mapstructure:"s3-region"`
	PublicBaseURL string `mapstructure:"public-base-url"`

	// Downscaling
	ImgproxyURL     string `mapstructure:"imgproxy-url"`
	ImgproxyKey     string `mapstructure:"imgproxy-key"`
	ImgproxySalt    string `mapstructure:"imgproxy-salt"`
	DownscaleWidth  int    `mapstructure:"downscale-width"`
	DownscaleHeight int    `mapstructure:"downscale-height"`

	// Image provider
	ReplicateAPIToken   string        `mapstructure:"replicate-api-token"`
	ReplicateTokenParam string        `mapstructure:"replicate-token-param"`
	ReplicateBaseURL    string        `mapstructure:"replicate-base-url"`
	GenerationModel     string        `mapstructure:"generation-model"`
	UpscaleVersion      string        `mapstructure:"upscale-version"`
	WebhookSecret       string        `mapstructure:"webhook-secret"`
	WebhookSecretParam  string        `mapstructure:"webhook-secret-param"`
	UpscaleAckTimeout   time.Duration `mapstructure:"upscale-ack-timeout"`

	// Prompt composition
	GeminiAPIKey   string `mapstructure:"gemini-api-key"`
	GeminiKeyParam string `mapstructure:"gemini-key-param"`
	GeminiModel    string `mapstructure:"gemini-model"`

	// Catalog read cache (disabled when RedisAddr is empty)
	RedisAddr     string        `mapstructure:"redis-addr"`
	RedisPassword string        `mapstructure:"redis-password"`
	RedisDB       int           `mapstructure:"redis-db"`
	CacheTTL      time.Duration `mapstructure:"cache-ttl"`

	// Finalization events (disabled when empty)
	EventBusName string `mapstructure:"event-bus-name"`

	AdminToken string `mapstructure:"admin-token"`
	FreeRatio  int    `mapstructure:"free-ratio"`
}

// SetDefaults registers every key with its default on v so that environment
// overrides are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base-url", "")
	v.SetDefault("port", 8080)
	v.SetDefault("catalog-backend", BackendDynamo)
	v.SetDefault("dynamo-table", "")
	v.SetDefault("sqlite-path", "wallpapers.db")
	v.SetDefault("bucket", "")
	v.SetDefault("s3-endpoint", "")
	v.SetDefault("s3-region", "auto")
	v.SetDefault("public-base-url", "")
	v.SetDefault("imgproxy-url", "")
	v.SetDefault("imgproxy-key", "")
	v.SetDefault("imgproxy-salt", "")
	v.SetDefault("downscale-width", 336)
	v.SetDefault("downscale-height", 720)
	v.SetDefault("replicate-api-token", "")
	v.SetDefault("replicate-token-param", "")
	v.SetDefault("replicate-base-url", "https://api.replicate.com/v1")
	v.SetDefault("generation-model", "black-forest-labs/flux-pro")
	v.SetDefault("upscale-version", "philz1337x/clarity-upscaler:dfad41707589d68ecdccd1dfa600d55a208f9310748e44bfe35b4a6291453d5e")
	v.SetDefault("webhook-secret", "")
	v.SetDefault("webhook-secret-param", "")
	v.SetDefault("upscale-ack-timeout", 2*time.Second)
	v.SetDefault("gemini-api-key", "")
	v.SetDefault("gemini-key-param", "")
	v.SetDefault("gemini-model", "gemini-2.5-flash")
	v.SetDefault("redis-addr", "")
	v.SetDefault("redis-password", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("cache-ttl", 60*time.Second)
	v.SetDefault("event-bus-name", "")
	v.SetDefault("admin-token", "")
	v.SetDefault("free-ratio", 4)
}

// Load reads configuration from environment, config file, and defaults.
// A nil v uses the global viper instance, which the CLI binds flags to.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	// Environment variables (WALLPAPER_BASE_URL, etc.)
	v.SetEnvPrefix("WALLPAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.wallpaper-ai")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CatalogBackend = strings.ToLower(strings.TrimSpace(cfg.CatalogBackend))
	return &cfg, nil
}

// Validate checks configuration needed to serve the pipeline.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base-url cannot be empty")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base-url must be an absolute URL, got %q", c.BaseURL)
	}
	switch c.CatalogBackend {
	case BackendDynamo:
		if c.DynamoTable == "" {
			return fmt.Errorf("dynamo-table cannot be empty with catalog-backend %s", BackendDynamo)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path cannot be empty with catalog-backend %s", BackendSQLite)
		}
	default:
		return fmt.Errorf("catalog-backend must be %q or %q, got %q", BackendDynamo, BackendSQLite, c.CatalogBackend)
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	if c.ReplicateAPIToken == "" && c.ReplicateTokenParam == "" {
		return fmt.Errorf("replicate-api-token or replicate-token-param is required")
	}
	if c.DownscaleWidth <= 0 || c.DownscaleHeight <= 0 {
		return fmt.Errorf("downscale-width and downscale-height must be positive")
	}
	if c.UpscaleAckTimeout <= 0 {
		return fmt.Errorf("upscale-ack-timeout must be positive")
	}
	if c.FreeRatio <= 0 {
		return fmt.Errorf("free-ratio must be positive")
	}
	if c.RedisAddr != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache-ttl must be positive when redis-addr is set")
	}
	return nil
}

// Secrets lists the SSM parameters that still need resolving: a parameter
// path is returned only when the matching direct value is empty.
func (c *Config) Secrets() map[string]string {
	out := map[string]string{}
	if c.ReplicateAPIToken == "" && c.ReplicateTokenParam != "" {
		out["replicate-api-token"] = c.ReplicateTokenParam
	}
	if c.WebhookSecret == "" && c.WebhookSecretParam != "" {
		out["webhook-secret"] = c.WebhookSecretParam
	}
	if c.GeminiAPIKey == "" && c.GeminiKeyParam != "" {
		out["gemini-api-key"] = c.GeminiKeyParam
	}
	return out
}

// SetSecret stores a resolved secret under its config key.
func (c *Config) SetSecret(key, value string) {
	switch key {
	case "replicate-api-token":
		c.ReplicateAPIToken = value
	case "webhook-secret":
		c.WebhookSecret = value
	case "gemini-api-key":
		c.GeminiAPIKey = value
	}
}
