package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/object-eraser/pkg/exif"
	"github.com/menta2k/object-eraser/pkg/safesize"
	"github.com/menta2k/object-eraser/pkg/types"
)

// Config holds the application configuration
type Config struct {
	ActiveProvider string                    `json:"active_provider"`
	Providers      map[string]ProviderConfig `json:"providers"`
	Exif           ExifConfig                `json:"exif"`
	Render         RenderConfig              `json:"render"`
	Hint           HintConfig                `json:"hint"`
	Output         OutputConfig              `json:"output"`
}

// ProviderConfig describes one removal provider and the sizes it accepts
type ProviderConfig struct {
	Endpoint       string `json:"endpoint"`
	APIKeyEnv      string `json:"api_key_env"`
	MinSide        int    `json:"min_side"`
	MaxSide        int    `json:"max_side"`
	SideStep       int    `json:"side_step"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxAttempts    int    `json:"max_attempts"`
	BackoffMillis  int    `json:"backoff_millis"`
}

// ExifConfig holds configuration for orientation detection
type ExifConfig struct {
	ScanWindow int `json:"scan_window"`
}

// RenderConfig holds configuration for mask rendering
type RenderConfig struct {
	MarkColor   string  `json:"mark_color"`
	Format      string  `json:"format"`
	ImageFormat string  `json:"image_format"`
	BrushSize   float64 `json:"brush_size"` // screen pixels
}

// HintConfig holds configuration for the removal hint describer
type HintConfig struct {
	Enabled bool   `json:"enabled"`
	Backend string `json:"backend"`
	URL     string `json:"url"`
	Model   string `json:"model"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir    string `json:"output_dir"`
	Prefix       string `json:"prefix"`
	MaskSuffix   string `json:"mask_suffix"`
	MarkedSuffix string `json:"marked_suffix"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		ActiveProvider: "default",
		Providers: map[string]ProviderConfig{
			"default": {
				Endpoint:       "http://localhost:8000/v1/remove",
				APIKeyEnv:      "ERASER_API_KEY",
				MinSide:        128,
				MaxSide:        2048,
				SideStep:       64,
				TimeoutSeconds: 60,
				MaxAttempts:    3,
				BackoffMillis:  1000,
			},
			"lama": {
				Endpoint:       "http://localhost:8080/inpaint",
				MinSide:        64,
				MaxSide:        2048,
				SideStep:       8,
				TimeoutSeconds: 120,
				MaxAttempts:    2,
				BackoffMillis:  500,
			},
		},
		Exif: ExifConfig{
			ScanWindow: exif.DefaultWindow,
		},
		Render: RenderConfig{
			MarkColor:   "#ff3b30",
			Format:      "png",
			ImageFormat: "png",
			BrushSize:   24,
		},
		Hint: HintConfig{
			Enabled: false,
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Model:   "llava",
		},
		Output: OutputConfig{
			OutputDir:    "./output",
			Prefix:       "",
			MaskSuffix:   "_mask",
			MarkedSuffix: "_marked",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	// a file that lists providers replaces the built-in presets
	config.Providers = nil
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Providers == nil {
		config.Providers = Default().Providers
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("providers cannot be empty")
	}
	if _, ok := c.Providers[c.ActiveProvider]; !ok {
		return fmt.Errorf("active_provider %q is not configured", c.ActiveProvider)
	}
	for name, p := range c.Providers {
		if p.Endpoint == "" {
			return fmt.Errorf("providers.%s.endpoint is required", name)
		}
		if err := safesize.Validate(p.Constraints()); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
		if p.TimeoutSeconds < 1 {
			return fmt.Errorf("providers.%s.timeout_seconds must be positive", name)
		}
		if p.MaxAttempts < 1 || p.MaxAttempts > 10 {
			return fmt.Errorf("providers.%s.max_attempts must be between 1 and 10", name)
		}
		if p.BackoffMillis < 0 {
			return fmt.Errorf("providers.%s.backoff_millis cannot be negative", name)
		}
	}

	if c.Exif.ScanWindow < 1024 {
		return fmt.Errorf("exif.scan_window must be at least 1024 bytes")
	}

	if _, err := c.Render.Color(); err != nil {
		return fmt.Errorf("render.mark_color: %w", err)
	}
	for field, format := range map[string]string{"format": c.Render.Format, "image_format": c.Render.ImageFormat} {
		if format != "png" && format != "webp" {
			return fmt.Errorf("render.%s must be png or webp", field)
		}
	}
	if c.Render.BrushSize <= 0 {
		return fmt.Errorf("render.brush_size must be positive")
	}

	if c.Hint.Enabled {
		if c.Hint.Backend != "ollama" && c.Hint.Backend != "llamacpp" {
			return fmt.Errorf("hint.backend must be ollama or llamacpp")
		}
		if c.Hint.Model == "" {
			return fmt.Errorf("hint.model is required when hints are enabled")
		}
	}

	if c.Output.OutputDir == "" {
		return fmt.Errorf("output.output_dir cannot be empty")
	}
	if c.Output.MaskSuffix == c.Output.MarkedSuffix {
		return fmt.Errorf("output.mask_suffix and output.marked_suffix must differ")
	}

	return nil
}

// Provider returns the named provider, or the active one when name is empty
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.ActiveProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Constraints returns the provider's size constraints
func (p ProviderConfig) Constraints() types.Constraints {
	return types.Constraints{MinSide: p.MinSide, MaxSide: p.MaxSide, Step: p.SideStep}
}

// Timeout returns the per-attempt timeout
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Backoff returns the delay before the first retry
func (p ProviderConfig) Backoff() time.Duration {
	return time.Duration(p.BackoffMillis) * time.Millisecond
}

// APIKey reads the provider's API key from the environment
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Color parses MarkColor as #rrggbb
func (r RenderConfig) Color() (color.NRGBA, error) {
	s := strings.TrimPrefix(strings.TrimSpace(r.MarkColor), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("expected #rrggbb, got %q", r.MarkColor)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("expected #rrggbb, got %q", r.MarkColor)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "object-eraser", "config.json")
}
