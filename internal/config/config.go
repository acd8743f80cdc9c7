// Package config loads, defaults, and validates parley client configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully materialized runtime configuration used by parley.
type Config struct {
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Backend    BackendConfig    `yaml:"backend"`
	Speech     SpeechConfig     `yaml:"speech"`
	Audio      AudioConfig      `yaml:"audio"`
}

// RecognizerConfig points at the streaming speech-recognition service.
type RecognizerConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// BackendConfig points at the intent-processing service.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// SpeechConfig controls reply playback. An empty endpoint disables playback.
type SpeechConfig struct {
	Endpoint string  `yaml:"endpoint"`
	APIKey   string  `yaml:"api_key"`
	Voice    string  `yaml:"voice"`
	Rate     float64 `yaml:"rate"`
	Language string  `yaml:"language"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
}

// Loaded couples a parsed config with the path it was read from.
type Loaded struct {
	Config Config
	Path   string
}

// TimeoutDuration parses the configured dispatch timeout. Load defaults an
// unset value to "30s"; an explicit "0" disables the timeout.
func (c BackendConfig) TimeoutDuration() (time.Duration, error) {
	raw := strings.TrimSpace(c.Timeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse backend.timeout %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("backend.timeout %q is negative", raw)
	}
	return d, nil
}

// Load reads configuration from path, or from the default location when path
// is empty. A missing file at the default location yields pure defaults; a
// missing explicit path is an error.
func Load(path string) (Loaded, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		resolved, err := defaultPath()
		if err != nil {
			return Loaded{}, err
		}
		path = resolved
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := Config{}
			cfg.setDefaults()
			return Loaded{Config: cfg, Path: path}, nil
		}
		return Loaded{}, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Loaded{}, err
	}

	return Loaded{Config: cfg, Path: path}, nil
}

func (c *Config) setDefaults() {
	if c.Recognizer.Model == "" {
		c.Recognizer.Model = "nova-2"
	}
	if c.Recognizer.Language == "" {
		c.Recognizer.Language = "en-US"
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8000"
	}
	if c.Backend.Timeout == "" {
		c.Backend.Timeout = "30s"
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = "aura-asteria-en"
	}
	if c.Speech.Rate == 0 {
		c.Speech.Rate = 0.9
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "en-US"
	}
}

func (c *Config) validate() error {
	if _, err := c.Backend.TimeoutDuration(); err != nil {
		return err
	}
	if c.Speech.Rate < 0 || c.Speech.Rate > 4 {
		return fmt.Errorf("speech.rate %v is out of range (0, 4]", c.Speech.Rate)
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend.base_url %q must be an http(s) URL", c.Backend.BaseURL)
	}
	return nil
}

// defaultPath selects XDG_CONFIG_HOME when available, otherwise ~/.config.
func defaultPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "parley", "parley.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for config: %w", err)
	}
	return filepath.Join(home, ".config", "parley", "parley.yaml"), nil
}
