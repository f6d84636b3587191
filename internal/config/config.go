// Package config loads runtime configuration from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverAuto     = "auto"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

// Rate limiting algorithms.
const (
	AlgorithmSliding = "sliding"
	AlgorithmToken   = "token"
	AlgorithmRedis   = "redis"
)

// Payment policies for the invoice lifecycle.
const (
	PaymentPolicyOverwrite = "overwrite"
	PaymentPolicyGuarded   = "guarded"
)

// ConfigFileEnv names the variable pointing at an optional YAML file.
const ConfigFileEnv = "PAYME_CONFIG"

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Tempo     TempoConfig     `yaml:"tempo"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Invoices  InvoiceConfig   `yaml:"invoices"`
	Logging   LoggingConfig   `yaml:"logging"`
	Platform  PlatformConfig  `yaml:"platform"`

	FrontendBaseURL    string `env:"FRONTEND_BASE_URL" yaml:"frontend_base_url"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"HOST,default=0.0.0.0" yaml:"host"`
	Port            int           `env:"PORT,default=8080" yaml:"port"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s" yaml:"read_timeout"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s" yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and tunes the record store.
type DatabaseConfig struct {
	Driver         string        `env:"STORE_DRIVER,default=auto" yaml:"driver"`
	URL            string        `env:"DATABASE_URL" yaml:"url"`
	Path           string        `env:"DB_PATH,default=payme.db" yaml:"path"`
	BoltPath       string        `env:"BOLT_PATH,default=payme.bolt" yaml:"bolt_path"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT,default=10s" yaml:"connect_timeout"`
	MaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS,default=10" yaml:"max_open_conns"`
	MaxIdleConns   int           `env:"DB_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
}

// TempoConfig is the chain metadata snapshotted onto each invoice.
type TempoConfig struct {
	ChainID        string `env:"TEMPO_CHAIN_ID,default=42431" yaml:"chain_id"`
	RPCURL         string `env:"TEMPO_RPC_URL,default=https://rpc.moderato.tempo.xyz" yaml:"rpc_url"`
	StablecoinName string `env:"STABLECOIN_NAME,default=USD Stablecoin" yaml:"stablecoin_name"`
}

// RateLimitConfig configures per-client traffic shaping.
type RateLimitConfig struct {
	Requests          int           `env:"RATE_LIMIT_REQUESTS,default=60" yaml:"requests"`
	Window            time.Duration `env:"RATE_LIMIT_WINDOW,default=60s" yaml:"window"`
	Algorithm         string        `env:"RATE_LIMIT_ALGORITHM,default=sliding" yaml:"algorithm"`
	MaxClients        int           `env:"RATE_LIMIT_MAX_CLIENTS,default=10000" yaml:"max_clients"`
	IdleTTL           time.Duration `env:"RATE_LIMIT_IDLE_TTL" yaml:"idle_ttl"`
	RedisURL          string        `env:"REDIS_URL" yaml:"redis_url"`
	TrustProxyHeaders bool          `env:"TRUST_PROXY_HEADERS,default=false" yaml:"trust_proxy_headers"`
}

// InvoiceConfig configures the invoice lifecycle.
type InvoiceConfig struct {
	PaymentPolicy string        `env:"PAYMENT_POLICY,default=overwrite" yaml:"payment_policy"`
	TTL           time.Duration `env:"INVOICE_TTL" yaml:"ttl"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
}

// PlatformConfig describes the hosting environment.
type PlatformConfig struct {
	Vercel    string `env:"VERCEL" yaml:"vercel"`
	VercelURL string `env:"VERCEL_URL" yaml:"vercel_url"`
	NowRegion string `env:"NOW_REGION" yaml:"now_region"`
}

// Serverless reports whether the process runs on a read-only serverless host.
func (p PlatformConfig) Serverless() bool {
	return p.Vercel != "" || p.NowRegion != ""
}

// Load decodes the environment, applies the optional YAML file named by
// PAYME_CONFIG, fills derived values and validates the result. A variable
// set in the environment wins over the same key in the file; the file wins
// over tag defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a YAML file onto a zero config. Keys absent from the file
// keep their zero value; Load is the entry point for full resolution.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFile overlays keys present in the YAML file onto cfg, except those
// whose environment variable is set.
func (c *Config) applyFile(path string) error {
	merged := *c
	if err := decodeFile(path, &merged); err != nil {
		return err
	}
	keepEnv(reflect.ValueOf(&merged).Elem(), reflect.ValueOf(c).Elem())
	*c = merged
	return nil
}

func decodeFile(path string, into *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// keepEnv copies into dst every field of env whose variable is set. An empty
// variable counts as unset, as it does for envdecode.
func keepEnv(dst, env reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Struct {
			keepEnv(dst.Field(i), env.Field(i))
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("env"), ",")
		if name != "" && os.Getenv(name) != "" {
			dst.Field(i).Set(env.Field(i))
		}
	}
}

func (c *Config) applyDerived() {
	c.FrontendBaseURL = strings.TrimRight(strings.TrimSpace(c.FrontendBaseURL), "/")
	if c.FrontendBaseURL == "" {
		if host := strings.TrimSpace(c.Platform.VercelURL); host != "" {
			c.FrontendBaseURL = "https://" + host
		} else {
			c.FrontendBaseURL = "http://localhost:5173"
		}
	}

	if c.Database.Driver == "" || c.Database.Driver == DriverAuto {
		if c.Database.URL != "" {
			c.Database.Driver = DriverPostgres
		} else {
			c.Database.Driver = DriverSQLite
		}
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)

	c.RateLimit.Algorithm = strings.ToLower(strings.TrimSpace(c.RateLimit.Algorithm))
	if c.RateLimit.IdleTTL <= 0 {
		c.RateLimit.IdleTTL = 5 * c.RateLimit.Window
	}
	c.Invoices.PaymentPolicy = strings.ToLower(strings.TrimSpace(c.Invoices.PaymentPolicy))
}

// Validate rejects configurations the runtime cannot honour.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate limit requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window)
	}
	switch c.RateLimit.Algorithm {
	case AlgorithmSliding, AlgorithmToken:
	case AlgorithmRedis:
		if c.RateLimit.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis rate limit algorithm")
		}
	default:
		return fmt.Errorf("unknown rate limit algorithm %q", c.RateLimit.Algorithm)
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite, DriverBolt, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Database.Driver)
	}
	switch c.Invoices.PaymentPolicy {
	case PaymentPolicyOverwrite, PaymentPolicyGuarded:
	default:
		return fmt.Errorf("unknown payment policy %q", c.Invoices.PaymentPolicy)
	}
	if c.Invoices.TTL < 0 {
		return fmt.Errorf("invoice ttl must not be negative, got %s", c.Invoices.TTL)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AllowedOrigins returns the CORS allow list: the frontend, the local Vite
// dev server and any extra origins from CORS_ALLOWED_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	origins := []string{c.FrontendBaseURL, "http://localhost:5173", "http://127.0.0.1:5173"}
	for _, part := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
