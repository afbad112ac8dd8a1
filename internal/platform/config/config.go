// Package config loads process configuration from an optional config file,
// a .env file and FLOWGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is threaded explicitly into every component at construction.
type Config struct {
	Server           ServerConfig           `mapstructure:"server"`
	Log              LogConfig              `mapstructure:"log"`
	Database         DatabaseConfig         `mapstructure:"database"`
	Redis            RedisConfig            `mapstructure:"redis"`
	Kafka            KafkaConfig            `mapstructure:"kafka"`
	SourceRegistry   BackendConfig          `mapstructure:"source_registry"`
	ConsentAuthority ConsentAuthorityConfig `mapstructure:"consent_authority"`
	Auth             AuthConfig             `mapstructure:"auth"`
	Subject          SubjectConfig          `mapstructure:"subject"`
	Flow             FlowConfig             `mapstructure:"flow"`
	Messages         MessagesConfig         `mapstructure:"messages"`
	Outbox           OutboxConfig           `mapstructure:"outbox"`
	RateLimit        RateLimitConfig        `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig selects the source catalog cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CatalogTTL   time.Duration `mapstructure:"catalog_ttl"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	ControlTopic   string        `mapstructure:"control_topic"`
	ClientID       string        `mapstructure:"client_id"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
}

// BackendConfig describes an OAuth2-protected backend reached with the
// client-credentials grant.
type BackendConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ConsentAuthorityConfig struct {
	BackendConfig    `mapstructure:",squash"`
	ConfirmationPage string `mapstructure:"confirmation_page"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	// BootstrapClientID and BootstrapClientSecret seed one super client
	// with every scope when both are set.
	BootstrapClientID     string `mapstructure:"bootstrap_client_id"`
	BootstrapClientSecret string `mapstructure:"bootstrap_client_secret"`
}

// SubjectConfig names the headers an authenticating proxy sets for the
// subject and where unauthenticated subjects are sent.
type SubjectConfig struct {
	UserHeader string `mapstructure:"user_header"`
	IDHeader   string `mapstructure:"id_header"`
	LoginURL   string `mapstructure:"login_url"`
}

type FlowConfig struct {
	CodeTTL      time.Duration `mapstructure:"code_ttl"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
}

type MessagesConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type OutboxConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	BatchSize        int           `mapstructure:"batch_size"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

var defaults = map[string]any{
	"server.addr":                         ":8080",
	"server.public_base_url":              "http://localhost:8080",
	"server.request_timeout":              30 * time.Second,
	"server.shutdown_grace":               10 * time.Second,
	"log.level":                           "info",
	"database.url":                        "",
	"database.max_open_conns":             25,
	"database.max_idle_conns":             5,
	"database.conn_max_lifetime":          30 * time.Minute,
	"database.connect_timeout":            5 * time.Second,
	"redis.url":                           "",
	"redis.pool_size":                     10,
	"redis.min_idle_conns":                2,
	"redis.dial_timeout":                  2 * time.Second,
	"redis.read_timeout":                  time.Second,
	"redis.write_timeout":                 time.Second,
	"redis.catalog_ttl":                   5 * time.Minute,
	"kafka.brokers":                       []string{"localhost:9092"},
	"kafka.control_topic":                 "control",
	"kafka.client_id":                     "flowgate",
	"kafka.publish_timeout":               5 * time.Second,
	"kafka.fetch_timeout":                 5 * time.Second,
	"source_registry.base_url":            "http://localhost:8081",
	"source_registry.token_url":           "http://localhost:8081/oauth2/token/",
	"source_registry.client_id":           "",
	"source_registry.client_secret":       "",
	"source_registry.timeout":             5 * time.Second,
	"consent_authority.base_url":          "http://localhost:8082",
	"consent_authority.token_url":         "http://localhost:8082/oauth2/token/",
	"consent_authority.client_id":         "",
	"consent_authority.client_secret":     "",
	"consent_authority.timeout":           5 * time.Second,
	"consent_authority.confirmation_page": "http://localhost:8082/v1/consents/confirm/",
	"auth.signing_key":                    "dev-secret-key-change-in-production",
	"auth.issuer":                         "flowgate",
	"auth.token_ttl":                      time.Hour,
	"auth.bootstrap_client_id":            "",
	"auth.bootstrap_client_secret":        "",
	"subject.user_header":                 "X-Authenticated-User",
	"subject.id_header":                   "X-Subject-ID",
	"subject.login_url":                   "/saml2/login/",
	"flow.code_ttl":                       30 * time.Minute,
	"flow.default_limit":                  50,
	"flow.max_limit":                      100,
	"messages.default_limit":              5,
	"messages.max_limit":                  10,
	"outbox.poll_interval":                5 * time.Second,
	"outbox.grace_period":                 30 * time.Second,
	"outbox.batch_size":                   50,
	"outbox.failure_threshold":            5,
	"outbox.cooldown":                     30 * time.Second,
	"rate_limit.requests_per_second":      20.0,
	"rate_limit.burst":                    40,
}

// Load reads configuration. Every key has a default so a bare environment
// starts a development server on in-memory stores.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigName("flowgate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("FLOWGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required")
	}
	if c.Messages.DefaultLimit <= 0 || c.Messages.MaxLimit < c.Messages.DefaultLimit {
		return errors.New("messages limits must satisfy 0 < default_limit <= max_limit")
	}
	if c.Flow.CodeTTL <= 0 {
		return errors.New("flow.code_ttl must be positive")
	}
	return nil
}
