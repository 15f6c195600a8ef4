// Package config provides configuration management for the remedy
// client.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Modes. Demo mode is the single switch for every simulation path;
// nothing infers it from missing credentials or error text.
const (
	ModeStrict = "strict"
	ModeDemo   = "demo"
)

// Config holds the client configuration.
type Config struct {
	Mode     string         `mapstructure:"mode"`
	Identity IdentityConfig `mapstructure:"identity"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Buckets  []BucketConfig `mapstructure:"buckets"`
	Poll     PollConfig     `mapstructure:"poll"`
	Download DownloadConfig `mapstructure:"download"`
	History  HistoryConfig  `mapstructure:"history"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// IdentityConfig holds credential-resolution settings.
type IdentityConfig struct {
	Region         string `mapstructure:"region"`
	IdentityPoolID string `mapstructure:"identity_pool_id"`
	// ProviderKey is the identity provider's issuer URL, used as the
	// login-map key on the federated tier.
	ProviderKey    string `mapstructure:"provider_key"`
	AllowAnonymous bool   `mapstructure:"allow_anonymous"`
	// Static developer credentials, highest-priority tier. Local
	// development only.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// QuotaConfig holds the usage-tracking endpoint settings.
type QuotaConfig struct {
	APIURL string `mapstructure:"api_url"`
}

// BucketConfig describes one storage target and its key layout.
type BucketConfig struct {
	Key              string `mapstructure:"key"`
	BucketName       string `mapstructure:"bucket_name"`
	Region           string `mapstructure:"region"`
	UploadFolder     string `mapstructure:"upload_folder"`
	OutputFolder     string `mapstructure:"output_folder"`
	OutputPrefix     string `mapstructure:"output_prefix"`
	OutputExtension  string `mapstructure:"output_extension"`
	ReplaceExtension bool   `mapstructure:"replace_extension"`
}

// PollConfig holds completion-polling settings.
type PollConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	TimeoutMinutes  int `mapstructure:"timeout_minutes"`
	MaxAttempts     int `mapstructure:"max_attempts"`
}

// DownloadConfig holds download-URL settings.
type DownloadConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// HistoryConfig holds the local job-history settings.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeStrict,
		Identity: IdentityConfig{
			Region: "us-east-1",
		},
		Poll: PollConfig{
			IntervalSeconds: 30,
			TimeoutMinutes:  20,
			MaxAttempts:     40,
		},
		Download: DownloadConfig{
			TTLSeconds: 3600,
		},
		History: HistoryConfig{
			Path: "./data/history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from environment variables and config file.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	// Set defaults
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("identity.region", cfg.Identity.Region)
	v.SetDefault("identity.identity_pool_id", "")
	v.SetDefault("identity.provider_key", "")
	v.SetDefault("identity.allow_anonymous", false)
	v.SetDefault("identity.access_key", "")
	v.SetDefault("identity.secret_key", "")
	v.SetDefault("quota.api_url", "")
	v.SetDefault("poll.interval_seconds", cfg.Poll.IntervalSeconds)
	v.SetDefault("poll.timeout_minutes", cfg.Poll.TimeoutMinutes)
	v.SetDefault("poll.max_attempts", cfg.Poll.MaxAttempts)
	v.SetDefault("download.ttl_seconds", cfg.Download.TTLSeconds)
	v.SetDefault("history.path", cfg.History.Path)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	// Enable environment variables
	v.SetEnvPrefix("REMEDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/remedy")
	v.AddConfigPath("$HOME/.remedy")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks mode and credential-tier consistency at startup.
// Strict mode must be able to reach real storage; demo mode must be
// asked for explicitly, never implied by missing credentials.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStrict, ModeDemo:
	default:
		return fmt.Errorf("invalid mode %q (want %q or %q)", c.Mode, ModeStrict, ModeDemo)
	}

	if c.Mode == ModeDemo {
		return nil
	}

	hasStatic := c.Identity.AccessKey != "" && c.Identity.SecretKey != ""
	hasPool := c.Identity.IdentityPoolID != ""
	if !hasStatic && !hasPool && !c.Identity.AllowAnonymous {
		return fmt.Errorf("strict mode needs static credentials, an identity pool, or allow_anonymous; set mode %q for credential-less simulation", ModeDemo)
	}
	if len(c.Buckets) == 0 {
		return fmt.Errorf("strict mode needs at least one bucket")
	}
	for _, b := range c.Buckets {
		if b.Key == "" || b.BucketName == "" {
			return fmt.Errorf("bucket entry needs both key and bucket_name")
		}
	}
	if c.Quota.APIURL == "" {
		return fmt.Errorf("strict mode needs quota.api_url")
	}
	return nil
}

// Demo reports whether the explicit demo switch is set.
func (c *Config) Demo() bool {
	return c.Mode == ModeDemo
}
