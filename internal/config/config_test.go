package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSampleConfig_DecodesStrictly(t *testing.T) {
	cfg := Default()
	dec := toml.NewDecoder(strings.NewReader(SampleConfig()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		t.Fatalf("decode sample: %v", err)
	}
	if cfg.Render.FrameRate != 24 || cfg.Subtitles.Style != "tiktok" {
		t.Fatalf("unexpected sample values: %+v", cfg.Render)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reelforge.toml")
	body := `
[workspace]
dir = "` + filepath.ToSlash(filepath.Join(dir, "ws")) + `"

[pipeline]
num_scenes = 5
image_engine = "Dummy"
music_engine = "local"

[music]
gain = 0.3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("REELFORGE_LLM_API_KEY", "")
	t.Setenv("REELFORGE_LLM_ALLOWED_HOSTS", " proxy.internal , ,llm.example ")

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Pipeline.NumScenes != 5 || cfg.Pipeline.TargetDuration != 20 {
		t.Fatalf("file values not merged over defaults: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.ImageEngine != ImageDummy {
		t.Fatalf("engine name not normalized: %q", cfg.Pipeline.ImageEngine)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Fatalf("env api key not applied: %q", cfg.LLM.APIKey)
	}
	if strings.Join(cfg.LLM.AllowedHosts, "|") != "proxy.internal|llm.example" {
		t.Fatalf("unexpected allowed hosts: %v", cfg.LLM.AllowedHosts)
	}
	if cfg.Music.Gain != 0.3 {
		t.Fatalf("gain = %v", cfg.Music.Gain)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[render]\nfps = 30\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	if _, _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestValidate_ReportsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "zero scenes", mutate: func(c *Config) { c.Pipeline.NumScenes = 0 }, want: "num_scenes"},
		{name: "unknown image engine", mutate: func(c *Config) { c.Pipeline.ImageEngine = "comfy" }, want: "image_engine"},
		{name: "fal without key", mutate: func(c *Config) { c.Pipeline.ImageEngine = ImageFal }, want: "FAL_KEY"},
		{name: "odd width", mutate: func(c *Config) { c.Render.Width = 1081 }, want: "render size"},
		{name: "gain", mutate: func(c *Config) { c.Music.Gain = 2 }, want: "music.gain"},
		{name: "http base url", mutate: func(c *Config) { c.LLM.BaseURL = "http://generativelanguage.googleapis.com" }, want: "must use https"},
		{name: "lora without scale", mutate: func(c *Config) { c.Images.LoraPath = "https://x/s.safetensors"; c.Images.LoraScale = 0 }, want: "lora_scale"},
		{name: "subtitle style", mutate: func(c *Config) { c.Subtitles.Style = "karaoke" }, want: "karaoke"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
