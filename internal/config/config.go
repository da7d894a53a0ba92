package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// DefaultFileName is looked up in the working directory when no explicit
// config path is given.
const DefaultFileName = "reelforge.toml"

type Workspace struct {
	Dir string `toml:"dir"`
}

// Pipeline holds the per-run defaults recorded in every manifest.
type Pipeline struct {
	NumScenes      int    `toml:"num_scenes"`
	TargetDuration int    `toml:"target_duration"`
	Language       string `toml:"language"`
	// Angle is an optional editorial slant passed to the script writer.
	Angle          string `toml:"angle"`
	ScriptEngine   string `toml:"script_engine"`
	VoiceEngine    string `toml:"voice_engine"`
	ImageEngine    string `toml:"image_engine"`
	VideoEngine    string `toml:"video_engine"`
	MusicEngine    string `toml:"music_engine"`
}

type LLM struct {
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	Model          string   `toml:"model"`
	AllowedHosts   []string `toml:"allowed_hosts"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxAttempts    int      `toml:"max_attempts"`
}

type Voice struct {
	EdgeTTSBin  string `toml:"edge_tts_bin"`
	EdgeVoice   string `toml:"edge_voice"`
	EspeakBin   string `toml:"espeak_bin"`
	EspeakVoice string `toml:"espeak_voice"`
}

type Transcription struct {
	WhisperBin   string `toml:"whisper_bin"`
	WhisperModel string `toml:"whisper_model"`
}

// Images configures the fal engine. MaxAttempts bounds calls per request
// when rate limited; LoraPath is a .safetensors URL applied on top of the
// base model.
type Images struct {
	FalKey              string  `toml:"fal_key"`
	FalBaseURL          string  `toml:"fal_base_url"`
	FalModel            string  `toml:"fal_model"`
	FalImageSize        string  `toml:"fal_image_size"`
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	MaxAttempts         int     `toml:"max_attempts"`
	LoraPath            string  `toml:"lora_path"`
	LoraScale           float64 `toml:"lora_scale"`
}

type Animation struct {
	ClipSeconds float64 `toml:"clip_seconds"`
}

type Music struct {
	CatalogDir string  `toml:"catalog_dir"`
	Gain       float64 `toml:"gain"`
}

type Render struct {
	FFmpeg            string  `toml:"ffmpeg"`
	FFprobe           string  `toml:"ffprobe"`
	Width             int     `toml:"width"`
	Height            int     `toml:"height"`
	FrameRate         int     `toml:"frame_rate"`
	TransitionSeconds float64 `toml:"transition_seconds"`
	MaxZoom           float64 `toml:"max_zoom"`
	Preset            string  `toml:"preset"`
	CRF               int     `toml:"crf"`
}

type Subtitles struct {
	Enabled bool   `toml:"enabled"`
	Style   string `toml:"style"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full reelforge configuration.
//
// Precedence: built-in defaults, then the TOML file, then environment
// variables, then CLI flags (applied by the caller).
type Config struct {
	Workspace     Workspace     `toml:"workspace"`
	Pipeline      Pipeline      `toml:"pipeline"`
	LLM           LLM           `toml:"llm"`
	Voice         Voice         `toml:"voice"`
	Transcription Transcription `toml:"transcription"`
	Images        Images        `toml:"images"`
	Animation     Animation     `toml:"animation"`
	Music         Music         `toml:"music"`
	Render        Render        `toml:"render"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Logging       Logging       `toml:"logging"`
}

// Load reads path (or ./reelforge.toml when path is empty and the file
// exists), applies environment overrides and normalizes paths. It does not
// validate; callers apply flags first and then call Validate.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	local, err := filepath.Abs(DefaultFileName)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local, true, nil
	}
	return "", false, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := firstEnv(getenv, "REELFORGE_LLM_API_KEY", "GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getenv("REELFORGE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := getenv("REELFORGE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("REELFORGE_LLM_ALLOWED_HOSTS"); v != "" {
		c.LLM.AllowedHosts = splitList(v)
	}
	if v := getenv("FAL_KEY"); v != "" {
		c.Images.FalKey = v
	}
	if v := getenv("WORKSPACE_DIR"); v != "" {
		c.Workspace.Dir = v
	}
	if v := getenv("REELFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("REELFORGE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := getenv("REELFORGE_MUSIC_GAIN"); v != "" {
		if g, err := strconv.ParseFloat(v, 64); err == nil {
			c.Music.Gain = g
		}
	}
}

// Normalize expands paths and canonicalizes names. Load calls it; callers
// that override fields afterwards call it again.
func (c *Config) Normalize() error {
	var err error
	if c.Workspace.Dir, err = expandPath(c.Workspace.Dir); err != nil {
		return fmt.Errorf("workspace.dir: %w", err)
	}
	if c.Music.CatalogDir, err = expandPath(c.Music.CatalogDir); err != nil {
		return fmt.Errorf("music.catalog_dir: %w", err)
	}
	if c.Transcription.WhisperModel, err = expandPath(c.Transcription.WhisperModel); err != nil {
		return fmt.Errorf("transcription.whisper_model: %w", err)
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.Images.FalKey = strings.TrimSpace(c.Images.FalKey)
	c.Pipeline.ScriptEngine = normalizeName(c.Pipeline.ScriptEngine)
	c.Pipeline.VoiceEngine = normalizeName(c.Pipeline.VoiceEngine)
	c.Pipeline.ImageEngine = normalizeName(c.Pipeline.ImageEngine)
	c.Pipeline.VideoEngine = normalizeName(c.Pipeline.VideoEngine)
	c.Pipeline.MusicEngine = normalizeName(c.Pipeline.MusicEngine)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// SampleConfig returns the commented sample configuration.
func SampleConfig() string { return sampleConfig }

// CreateSample writes the sample configuration to path, refusing to
// overwrite an existing file.
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}

func firstEnv(getenv func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}
