package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/imagesort/pkg/converter"
)

// FileNames are the config files looked up in the repository root, in order.
var FileNames = []string{"imagesort.toml", "imagesort.yaml", "imagesort.yml"}

// Config holds the application configuration
type Config struct {
	Convert ConvertConfig `toml:"convert" yaml:"convert"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Serve   ServeConfig   `toml:"serve" yaml:"serve"`
}

// ConvertConfig holds encoder settings
type ConvertConfig struct {
	MaxPixels int64 `toml:"max_pixels" yaml:"max_pixels"`
	Quality   int   `toml:"quality" yaml:"quality"`
	Lossless  bool  `toml:"lossless" yaml:"lossless"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// ServeConfig holds settings for the random image server
type ServeConfig struct {
	Addr     string `toml:"addr" yaml:"addr"`
	BaseURL  string `toml:"base_url" yaml:"base_url"`
	CacheTTL string `toml:"cache_ttl" yaml:"cache_ttl"`
}

// Default returns a configuration with default values
func Default() *Config {
	conv := converter.DefaultConfig()
	return &Config{
		Convert: ConvertConfig{
			MaxPixels: conv.MaxPixels,
			Quality:   conv.Quality,
			Lossless:  conv.Lossless,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Serve: ServeConfig{
			Addr:     ":8080",
			BaseURL:  "",
			CacheTTL: "10m",
		},
	}
}

// Load reads the first config file found in root. When none exists the
// defaults are returned with an empty path.
func Load(root string) (*Config, string, error) {
	for _, name := range FileNames {
		path := filepath.Join(root, name)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("stat config: %w", err)
		}

		cfg, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	cfg := Default()
	return cfg, "", cfg.Validate()
}

// LoadFromFile loads configuration from a TOML or YAML file, picked by
// extension. Missing keys keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Serve.Addr = strings.TrimSpace(c.Serve.Addr)
	c.Serve.BaseURL = strings.TrimRight(strings.TrimSpace(c.Serve.BaseURL), "/")
	c.Serve.CacheTTL = strings.TrimSpace(c.Serve.CacheTTL)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Convert.MaxPixels <= 0 {
		return fmt.Errorf("convert.max_pixels must be positive")
	}

	if c.Convert.Quality < 0 || c.Convert.Quality > 100 {
		return fmt.Errorf("convert.quality must be between 0 and 100")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}

	if c.Serve.Addr == "" {
		return fmt.Errorf("serve.addr cannot be empty")
	}

	if _, err := c.CacheTTL(); err != nil {
		return err
	}

	return nil
}

// Converter returns the converter settings.
func (c *Config) Converter() converter.Config {
	return converter.Config{
		MaxPixels: c.Convert.MaxPixels,
		Quality:   c.Convert.Quality,
		Lossless:  c.Convert.Lossless,
	}
}

// CacheTTL parses serve.cache_ttl. Empty means no caching.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Serve.CacheTTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.Serve.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("serve.cache_ttl: %w", err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("serve.cache_ttl must not be negative")
	}
	return ttl, nil
}
