package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Nginx    NginxConfig    `mapstructure:"nginx"`
	ACME     ACMEConfig     `mapstructure:"acme"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Workers  WorkersConfig  `mapstructure:"workers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds authentication and encryption configuration.
type AuthConfig struct {
	// MasterSecret derives the session signing key and the credential
	// encryption key. Required; set via AURAOPS_AUTH_MASTER_SECRET.
	MasterSecret string `mapstructure:"master_secret"`

	// SessionTTL is how long a login token stays valid.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// NginxConfig holds reverse proxy configuration.
type NginxConfig struct {
	// ConfDir is where per-host server blocks are written.
	ConfDir string `mapstructure:"conf_dir"`

	// WebrootDir serves ACME HTTP-01 challenge files.
	WebrootDir string `mapstructure:"webroot_dir"`

	// CertDir holds issued certificate and key files.
	CertDir string `mapstructure:"cert_dir"`

	// Bin is the nginx binary path, "nginx" when empty.
	Bin string `mapstructure:"bin"`
}

// ACMEConfig holds certificate issuance configuration.
type ACMEConfig struct {
	// DirectoryURL overrides the ACME directory, Let's Encrypt
	// production when empty.
	DirectoryURL string `mapstructure:"directory_url"`

	// Email is the ACME account contact, optional.
	Email string `mapstructure:"email"`
}

// DeployConfig holds deployment pipeline configuration.
type DeployConfig struct {
	// MaxConcurrent caps deployments running across all projects.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// HealthTimeout is how long a deployment waits for containers
	// to report healthy before failing.
	HealthTimeout time.Duration `mapstructure:"health_timeout"`

	// StopTimeout is the grace period when stopping containers.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// RetryBase is the backoff unit between image acquisition retries.
	RetryBase time.Duration `mapstructure:"retry_base"`

	// WorkDir holds git clones and build contexts.
	WorkDir string `mapstructure:"work_dir"`
}

// WorkersConfig holds background worker configuration.
type WorkersConfig struct {
	// RenewInterval is the time between certificate renewal sweeps.
	RenewInterval time.Duration `mapstructure:"renew_interval"`

	// RenewWindow is how close to expiry a certificate must be to renew.
	RenewWindow time.Duration `mapstructure:"renew_window"`

	// HealthInterval is the time between container health sweeps.
	HealthInterval time.Duration `mapstructure:"health_interval"`

	// HealthMaxConcurrent caps projects checked concurrently per sweep.
	HealthMaxConcurrent int `mapstructure:"health_max_concurrent"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/auraops.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.master_secret", "")
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("nginx.conf_dir", "./data/nginx")
	v.SetDefault("nginx.webroot_dir", "./data/webroot")
	v.SetDefault("nginx.cert_dir", "./data/certs")
	v.SetDefault("nginx.bin", "")
	v.SetDefault("acme.directory_url", "")
	v.SetDefault("acme.email", "")
	v.SetDefault("deploy.max_concurrent", 3)
	v.SetDefault("deploy.health_timeout", "2m")
	v.SetDefault("deploy.stop_timeout", "10s")
	v.SetDefault("deploy.retry_base", "5s")
	v.SetDefault("deploy.work_dir", "./data/builds")
	v.SetDefault("workers.renew_interval", "12h")
	v.SetDefault("workers.renew_window", "720h")
	v.SetDefault("workers.health_interval", "60s")
	v.SetDefault("workers.health_max_concurrent", 5)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("AURAOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
