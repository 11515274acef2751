package core

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

const (
	defaultPreviewWidth = 480
	defaultCacheTTL     = 15 * time.Minute
)

// Duration wraps time.Duration so yaml values like "15m" decode directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// RedisConfig locates the optional render cache. An empty addr disables
// memoization entirely.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServiceConfig struct {
	Port             int         `yaml:"port" validate:"required,min=1,max=65535"`
	ImagesDir        string      `yaml:"imagesDir" validate:"required"`
	FontPath         string      `yaml:"fontPath"`
	DefaultPriceBook string      `yaml:"defaultPriceBook"`
	PreviewWidth     int         `yaml:"previewWidth" validate:"min=1"`
	CacheTTL         Duration    `yaml:"cacheTTL"`
	Redis            RedisConfig `yaml:"redis"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	applyDefaults(&config)

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

func applyDefaults(config *ServiceConfig) {
	if config.PreviewWidth == 0 {
		config.PreviewWidth = defaultPreviewWidth
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = Duration(defaultCacheTTL)
	}
}
