package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	AdminAddr       string        `mapstructure:"admin_addr"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the host:port the public listener binds to.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// RPCConfig holds Solana RPC configuration
type RPCConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Commitment string        `mapstructure:"commitment"`
}

// CORSConfig holds the cross-origin policy applied to every public route
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds rate limiting configuration. A zero RequestsPerMinute disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

// Enabled reports whether the limiter should be installed.
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerMinute > 0
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string   `mapstructure:"level"`
	Environment string   `mapstructure:"environment"`
	OutputPaths []string `mapstructure:"output_paths"`
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.admin_addr", "")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("rpc.endpoint", "https://api.devnet.solana.com")
	v.SetDefault("rpc.timeout", 30*time.Second)
	v.SetDefault("rpc.commitment", "finalized")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE"})
	v.SetDefault("cors.allowed_headers", []string{"*"})

	v.SetDefault("rate_limit.requests_per_minute", 0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.environment", "development")
	v.SetDefault("logging.output_paths", []string{"stdout"})
}

// envAliases keeps the flat variable names operators already use.
var envAliases = map[string]string{
	"rpc.endpoint":         "SOLANA_RPC_ENDPOINT",
	"rpc.timeout":          "SOLANA_RPC_TIMEOUT",
	"rpc.commitment":       "SOLANA_RPC_COMMITMENT",
	"logging.environment":  "LOG_ENVIRONMENT",
	"logging.level":        "LOG_LEVEL",
	"logging.output_paths": "LOG_OUTPUT_PATHS",
}

// Load reads configuration from defaults, an optional YAML file and the environment,
// in increasing order of precedence. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig loads configuration from the environment with defaults
func LoadConfig() (*Config, error) {
	return Load("")
}

// Validate checks the values the server cannot start without
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.RPC.Endpoint) == "" {
		errs = append(errs, errors.New("rpc.endpoint must not be empty"))
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}
	if !validCommitments[c.RPC.Commitment] {
		errs = append(errs, fmt.Errorf("rpc.commitment %q must be one of processed, confirmed, finalized", c.RPC.Commitment))
	}
	// An unbounded or too long upstream call would hit the write deadline, and the client would see a dropped connection instead of a 500
	if c.RPC.Timeout <= 0 {
		errs = append(errs, errors.New("rpc.timeout must be positive"))
	} else if c.Server.WriteTimeout > 0 && c.RPC.Timeout >= c.Server.WriteTimeout {
		errs = append(errs, fmt.Errorf("rpc.timeout %s must be shorter than server.write_timeout %s", c.RPC.Timeout, c.Server.WriteTimeout))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must not be negative"))
	}

	return errors.Join(errs...)
}
