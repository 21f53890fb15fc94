// Package config loads service configuration.
//
// Values are layered: Default, then an optional YAML file, then EVERTAG_*
// environment variables. The result is checked against an embedded CUE
// schema before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "EVERTAG_"

// Config is the full service configuration.
type Config struct {
	HTTP          HTTPConfig      `yaml:"http" json:"http" envPrefix:"HTTP_"`
	Database      DatabaseConfig  `yaml:"database" json:"database" envPrefix:"DATABASE_"`
	Gateway       GatewayConfig   `yaml:"gateway" json:"gateway" envPrefix:"GATEWAY_"`
	Pool          PoolConfig      `yaml:"pool" json:"pool" envPrefix:"POOL_"`
	Mail          MailConfig      `yaml:"mail" json:"mail" envPrefix:"MAIL_"`
	Admin         AdminConfig     `yaml:"admin" json:"admin" envPrefix:"ADMIN_"`
	Log           LogConfig       `yaml:"log" json:"log" envPrefix:"LOG_"`
	Telemetry     TelemetryConfig `yaml:"telemetry" json:"telemetry" envPrefix:"TELEMETRY_"`
	PublicBaseURL string          `yaml:"public_base_url" json:"public_base_url" env:"PUBLIC_BASE_URL"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" json:"addr" env:"ADDR"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" json:"path" env:"PATH"`
}

type GatewayConfig struct {
	BaseURL       string        `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	SecretKey     string        `yaml:"secret_key" json:"secret_key" env:"SECRET_KEY"`
	WebhookSecret string        `yaml:"webhook_secret" json:"webhook_secret" env:"WEBHOOK_SECRET"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
	Tolerance     time.Duration `yaml:"tolerance" json:"tolerance" env:"TOLERANCE"`
}

type PoolConfig struct {
	MaxAttempts     int    `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
	CandidateBatch  int    `yaml:"candidate_batch" json:"candidate_batch" env:"CANDIDATE_BATCH"`
	SyntheticPrefix string `yaml:"synthetic_prefix" json:"synthetic_prefix" env:"SYNTHETIC_PREFIX"`
}

// MailConfig configures confirmation delivery. An empty APIURL logs
// confirmations instead of sending them.
type MailConfig struct {
	APIURL      string        `yaml:"api_url" json:"api_url" env:"API_URL"`
	APIKey      string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	From        string        `yaml:"from" json:"from" env:"FROM"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
}

// AdminConfig guards the admin endpoints. An empty JWTSecret disables them.
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" json:"issuer" env:"ISSUER"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" env:"LEVEL"`
	Format string `yaml:"format" json:"format" env:"FORMAT"`
}

// TelemetryConfig enables tracing when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" json:"service_name" env:"SERVICE_NAME"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "evertag.db"},
		Gateway: GatewayConfig{
			BaseURL:     "https://api.stripe.com",
			Timeout:     5 * time.Second,
			MaxAttempts: 3,
			Tolerance:   5 * time.Minute,
		},
		Pool: PoolConfig{
			MaxAttempts:     8,
			CandidateBatch:  4,
			SyntheticPrefix: "SYN",
		},
		Mail: MailConfig{
			From:        "orders@evertag.example",
			Timeout:     5 * time.Second,
			MaxAttempts: 3,
		},
		Admin:     AdminConfig{Issuer: "evertag"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{ServiceName: "evertag"},
	}
}

// Options controls Load. Environment, when non-nil, replaces os.Environ.
type Options struct {
	Path        string
	Environment map[string]string
}

// Load builds the configuration from defaults, the YAML file at opts.Path
// (if any) and the environment, then validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := loadFile(opts.Path, &cfg); err != nil {
			return Config{}, err
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
	}
	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file is a valid, empty override.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
