package config

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/menta2k/object-eraser/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	p, err := cfg.Provider("")
	if err != nil {
		t.Fatal(err)
	}
	want := types.Constraints{MinSide: 128, MaxSide: 2048, Step: 64}
	if diff := cmp.Diff(want, p.Constraints()); diff != "" {
		t.Errorf("Constraints mismatch (-want +got):\n%s", diff)
	}
	if p.Timeout() != time.Minute || p.Backoff() != time.Second {
		t.Errorf("Unexpected timing %v / %v", p.Timeout(), p.Backoff())
	}

	c, err := cfg.Render.Color()
	if err != nil {
		t.Fatal(err)
	}
	if c != (color.NRGBA{R: 255, G: 59, B: 48, A: 255}) {
		t.Errorf("Unexpected mark colour %v", c)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.ActiveProvider = "lama"
	cfg.Render.Format = "webp"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "active_provider": "acme",
  "providers": {
    "acme": {"endpoint": "https://acme.example.com/erase", "min_side": 256, "max_side": 1024, "side_step": 32,
             "timeout_seconds": 30, "max_attempts": 2, "backoff_millis": 250}
  },
  "hint": {"enabled": true}
}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
	if len(cfg.Providers) != 1 {
		t.Errorf("Expected file providers to replace presets, got %d", len(cfg.Providers))
	}
	if !cfg.Hint.Enabled || cfg.Hint.Model != "llava" {
		t.Errorf("Expected hint defaults to be kept, got %+v", cfg.Hint)
	}
	if cfg.Exif.ScanWindow != 256<<10 {
		t.Errorf("Expected default scan window, got %d", cfg.Exif.ScanWindow)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"unknown active", func(c *Config) { c.ActiveProvider = "nope" }, "active_provider"},
		{"bad step", func(c *Config) {
			p := c.Providers["default"]
			p.SideStep = 0
			c.Providers["default"] = p
		}, "providers.default"},
		{"no multiple in range", func(c *Config) {
			p := c.Providers["lama"]
			p.MinSide, p.MaxSide, p.SideStep = 100, 120, 64
			c.Providers["lama"] = p
		}, "providers.lama"},
		{"attempts", func(c *Config) {
			p := c.Providers["default"]
			p.MaxAttempts = 0
			c.Providers["default"] = p
		}, "max_attempts"},
		{"scan window", func(c *Config) { c.Exif.ScanWindow = 10 }, "scan_window"},
		{"colour", func(c *Config) { c.Render.MarkColor = "red" }, "mark_color"},
		{"format", func(c *Config) { c.Render.Format = "jpg" }, "render.format"},
		{"hint backend", func(c *Config) { c.Hint.Enabled, c.Hint.Backend = true, "gpt" }, "hint.backend"},
		{"suffixes", func(c *Config) { c.Output.MarkedSuffix = c.Output.MaskSuffix }, "suffix"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_ERASER_KEY", "k-123")
	p := ProviderConfig{APIKeyEnv: "TEST_ERASER_KEY"}
	if p.APIKey() != "k-123" {
		t.Errorf("Expected key from env, got %q", p.APIKey())
	}
	if (ProviderConfig{}).APIKey() != "" {
		t.Error("Expected empty key without env var")
	}
}

func TestGetConfigPath(t *testing.T) {
	if !strings.HasSuffix(GetConfigPath(), filepath.Join("object-eraser", "config.json")) {
		t.Errorf("Unexpected config path %s", GetConfigPath())
	}
}
