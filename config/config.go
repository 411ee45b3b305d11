// Package config loads the service configuration.
//
// Values are read in this order, later sources winning:
//  1. built-in defaults
//  2. the YAML file
//  3. a .env file in the working directory (never overrides the real environment)
//  4. FIREQUEST_* environment variables
//
// The result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"firequest/events"
	"firequest/logging"
	"firequest/ml"
	"firequest/session"
)

const envPrefix = "FIREQUEST"

// Config is the whole service configuration.
type Config struct {
	HTTP     HTTPConfig         `yaml:"http" envconfig:"HTTP"`
	ML       ml.ModelConfig     `yaml:"ml" envconfig:"ML"`
	Database DatabaseConfig     `yaml:"database" envconfig:"DATABASE"`
	Log      logging.Config     `yaml:"log" envconfig:"LOG"`
	Session  session.Config     `yaml:"session" envconfig:"SESSION"`
	Kafka    events.KafkaConfig `yaml:"kafka" envconfig:"KAFKA"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Port           int           `yaml:"port" split_words:"true" validate:"min=1,max=65535"`
	Timeout        time.Duration `yaml:"timeout" split_words:"true" validate:"gte=0"`
	AllowedOrigins []string      `yaml:"allowed_origins" split_words:"true"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" split_words:"true" validate:"gte=0"`
}

// DatabaseConfig configures the prediction audit log. An empty path disables
// it.
type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// Default is the configuration used when no file or environment overrides
// a value.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		ML: ml.ModelConfig{
			ModelType:  "softmax",
			ModelPath:  "models/fire_model.json",
			ScalerPath: "models/scaler.json",
		},
		Log:     logging.Config{Level: "info"},
		Session: session.DefaultConfig(),
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath returns path when it exists, or "" when it is the default
// file name and simply absent.
func ResolvePath(path, defaultPath string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && path == defaultPath {
			return "", nil
		}
		return "", err
	}
	return path, nil
}
