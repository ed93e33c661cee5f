package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the relay configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Relay  RelayConfig  `yaml:"relay"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

// RelayConfig represents sync relay configuration
type RelayConfig struct {
	AccessKey      string `yaml:"access_key"`
	QueueSize      int    `yaml:"queue_size"`
	MaxMessageSize int64  `yaml:"max_message_size"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			AllowedOrigins:    []string{"*"},
		},
		Relay: RelayConfig{
			QueueSize:      1024,
			MaxMessageSize: 64 << 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory, and the environment, in
// increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = n
	}

	if key := os.Getenv("ACCESS_KEY"); key != "" {
		cfg.Relay.AccessKey = key
	}

	if size := os.Getenv("MAX_MESSAGE_SIZE"); size != "" {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_MESSAGE_SIZE %q: %w", size, err)
		}
		cfg.Relay.MaxMessageSize = n
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureAccessKey generates a random key when none is configured and
// reports whether it did so.
func (c *Config) EnsureAccessKey() bool {
	if c.Relay.AccessKey != "" {
		return false
	}
	c.Relay.AccessKey = uuid.NewString()
	return true
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	if c.Relay.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", c.Relay.QueueSize)
	}
	if c.Relay.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive, got %d", c.Relay.MaxMessageSize)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
