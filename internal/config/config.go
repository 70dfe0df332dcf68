// Package config loads fleetver's process configuration.
//
// Sources are merged with the precedence: command-line flags (bound by
// the cmd package) > FLEETVER_* environment variables > TOML config
// file > built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variable names recognized by Load.
const (
	EnvListen          = "FLEETVER_LISTEN"
	EnvRepoOwner       = "FLEETVER_REPO_OWNER"
	EnvRepoName        = "FLEETVER_REPO_NAME"
	EnvGitHubToken     = "FLEETVER_GITHUB_TOKEN"
	EnvCacheTTL        = "FLEETVER_CACHE_TTL"
	EnvAPITimeout      = "FLEETVER_API_TIMEOUT"
	EnvDocumentTimeout = "FLEETVER_DOCUMENT_TIMEOUT"
	EnvChangelogURL    = "FLEETVER_CHANGELOG_URL"
	EnvHashSuffix      = "FLEETVER_HASH_SUFFIX"
	EnvRateLimitRPS    = "FLEETVER_RATE_LIMIT_RPS"
	EnvRateLimitBurst  = "FLEETVER_RATE_LIMIT_BURST"
	EnvTelegramToken   = "FLEETVER_TELEGRAM_TOKEN"
	EnvTelegramChatID  = "FLEETVER_TELEGRAM_CHAT_ID"
)

// Defaults.
const (
	DefaultListen          = ":8080"
	DefaultCacheTTL        = 30 * time.Minute
	DefaultAPITimeout      = 5 * time.Second
	DefaultDocumentTimeout = 10 * time.Second
	DefaultHashSuffix      = ".md5"
	DefaultRateLimitRPS    = 5.0
	DefaultRateLimitBurst  = 10
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "30m" or "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Repo identifies the upstream release repository.
type Repo struct {
	Owner string `toml:"owner"`
	Name  string `toml:"name"`
	Token string `toml:"token"`
}

// RateLimit configures the per-client token bucket of the HTTP layer.
type RateLimit struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// Telegram configures the error-report sink. Both fields must be set
// for the report pipeline to be enabled.
type Telegram struct {
	Token  string `toml:"token"`
	ChatID string `toml:"chat_id"`
}

// Config is the merged process configuration.
type Config struct {
	Listen          string    `toml:"listen"`
	Repo            Repo      `toml:"repo"`
	CacheTTL        Duration  `toml:"cache_ttl"`
	APITimeout      Duration  `toml:"api_timeout"`
	DocumentTimeout Duration  `toml:"document_timeout"`
	ChangelogURL    string    `toml:"changelog_url"`
	HashSuffix      string    `toml:"hash_suffix"`
	RateLimit       RateLimit `toml:"rate_limit"`
	Telegram        Telegram  `toml:"telegram"`
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Listen:          DefaultListen,
		CacheTTL:        Duration{DefaultCacheTTL},
		APITimeout:      Duration{DefaultAPITimeout},
		DocumentTimeout: Duration{DefaultDocumentTimeout},
		HashSuffix:      DefaultHashSuffix,
		RateLimit: RateLimit{
			RPS:   DefaultRateLimitRPS,
			Burst: DefaultRateLimitBurst,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path
// (skipped when path is empty or the file does not exist), and the
// environment. Flags are bound on top by the cmd package.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(EnvListen, &c.Listen)
	envString(EnvRepoOwner, &c.Repo.Owner)
	envString(EnvRepoName, &c.Repo.Name)
	envString(EnvGitHubToken, &c.Repo.Token)
	envString(EnvChangelogURL, &c.ChangelogURL)
	envString(EnvHashSuffix, &c.HashSuffix)
	envString(EnvTelegramToken, &c.Telegram.Token)
	envString(EnvTelegramChatID, &c.Telegram.ChatID)

	envDuration(EnvCacheTTL, &c.CacheTTL.Duration)
	envDuration(EnvAPITimeout, &c.APITimeout.Duration)
	envDuration(EnvDocumentTimeout, &c.DocumentTimeout.Duration)

	if v := os.Getenv(EnvRateLimitRPS); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			c.RateLimit.RPS = rps
		} else {
			fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, keeping %v\n", EnvRateLimitRPS, v, c.RateLimit.RPS)
		}
	}
	if v := os.Getenv(EnvRateLimitBurst); v != "" {
		if burst, err := strconv.Atoi(v); err == nil && burst > 0 {
			c.RateLimit.Burst = burst
		} else {
			fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, keeping %v\n", EnvRateLimitBurst, v, c.RateLimit.Burst)
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, keeping %v\n", name, v, *dst)
		return
	}
	*dst = parsed
}

// ReportEnabled reports whether the error-report pipeline has the
// credentials it needs.
func (c *Config) ReportEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != ""
}

// Validate checks the fields required to serve.
func (c *Config) Validate() error {
	if c.Repo.Owner == "" || c.Repo.Name == "" {
		return errors.New("release repository owner and name must be configured")
	}
	if c.CacheTTL.Duration <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %v", c.CacheTTL.Duration)
	}
	if c.APITimeout.Duration <= 0 || c.DocumentTimeout.Duration <= 0 {
		return errors.New("timeouts must be positive")
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == "") {
		return errors.New("telegram token and chat ID must be set together")
	}
	return nil
}
