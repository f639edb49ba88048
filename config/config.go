// Package config handles loading and managing application configuration
// from YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration is returned when the configuration cannot be used to start
// the service. It is always fatal.
var ErrConfiguration = errors.New("configuration error")

// ModelConfig describes the image-to-image model endpoint.
type ModelConfig struct {
	Name    string   `yaml:"name"`
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// UploadConfig describes the public image host.
type UploadConfig struct {
	Endpoint string   `yaml:"endpoint"`
	ClientID string   `yaml:"client_id"`
	Timeout  Duration `yaml:"timeout"`
	TempDir  string   `yaml:"temp_dir"`
}

// Config holds all application configuration values. It is read once at
// startup and must not be modified afterwards.
type Config struct {
	Port     int          `yaml:"port"`
	LogLevel string       `yaml:"log_level"`
	Device   string       `yaml:"device"`
	FontDir  string       `yaml:"font_dir"`
	QRSize   int          `yaml:"qr_size"`
	MaxSide  int          `yaml:"max_side"`
	Model    ModelConfig  `yaml:"model"`
	Upload   UploadConfig `yaml:"upload"`
}

// Duration is a wrapper around time.Duration that supports YAML unmarshalling
// from human-readable strings like "30s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Defaults returns a Config populated with sensible default values. The
// upload client id has no default.
func Defaults() *Config {
	return &Config{
		Port:     8560,
		LogLevel: "info",
		Device:   "auto",
		FontDir:  "fonts",
		QRSize:   256,
		MaxSide:  768,
		Model: ModelConfig{
			Name:    "instruction-tuning-sd/cartoonizer",
			BaseURL: "http://localhost:7860/v1",
			Timeout: Duration{5 * time.Minute},
		},
		Upload: UploadConfig{
			Endpoint: "https://api.imgur.com/3/upload",
			Timeout:  Duration{30 * time.Second},
		},
	}
}

// Load reads configuration from the YAML file at path, falling back to
// defaults if the file does not exist. Variables from envFile (usually
// ".env") are exported first without overriding the real environment, then
// environment variables override file and default values. The result is
// validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies IMGUR_CLIENT_ID and CARTOON_* environment
// variable overrides to cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IMGUR_CLIENT_ID"); v != "" {
		cfg.Upload.ClientID = strings.TrimSpace(v)
	}
	if v := os.Getenv("CARTOON_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("CARTOON_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CARTOON_DEVICE"); v != "" {
		cfg.Device = strings.ToLower(v)
	}
	if v := os.Getenv("CARTOON_FONT_DIR"); v != "" {
		cfg.FontDir = v
	}
	if v := os.Getenv("CARTOON_QR_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QRSize = n
		}
	}
	if v := os.Getenv("CARTOON_MAX_SIDE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSide = n
		}
	}
	if v := os.Getenv("CARTOON_MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("CARTOON_MODEL_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("CARTOON_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("CARTOON_MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Model.Timeout = Duration{d}
		}
	}
	if v := os.Getenv("CARTOON_UPLOAD_URL"); v != "" {
		cfg.Upload.Endpoint = v
	}
	if v := os.Getenv("CARTOON_UPLOAD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upload.Timeout = Duration{d}
		}
	}
	if v := os.Getenv("CARTOON_TEMP_DIR"); v != "" {
		cfg.Upload.TempDir = v
	}
}

// Validate reports an ErrConfiguration when a required value is missing or
// a value is out of range.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upload.ClientID) == "" {
		return fmt.Errorf("%w: IMGUR_CLIENT_ID is missing, add it to the environment or the .env file", ErrConfiguration)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrConfiguration, c.Port)
	}
	switch c.Device {
	case "auto", "cuda", "cpu", "mps":
	default:
		return fmt.Errorf("%w: unknown device %q", ErrConfiguration, c.Device)
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return fmt.Errorf("%w: model name is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.Model.BaseURL) == "" {
		return fmt.Errorf("%w: model base_url is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.Upload.Endpoint) == "" {
		return fmt.Errorf("%w: upload endpoint is required", ErrConfiguration)
	}
	if c.QRSize < 64 {
		return fmt.Errorf("%w: qr_size must be at least 64, got %d", ErrConfiguration, c.QRSize)
	}
	if c.MaxSide < 0 {
		return fmt.Errorf("%w: max_side must not be negative", ErrConfiguration)
	}
	return nil
}
