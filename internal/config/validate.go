package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/forPelevin/reelforge/internal/domain/subtitles"
	"github.com/forPelevin/reelforge/internal/ports/adapters/llm"
)

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Workspace.Dir) == "" {
		add("workspace.dir is required")
	}

	p := c.Pipeline
	if p.NumScenes <= 0 {
		add("pipeline.num_scenes must be > 0")
	}
	if p.TargetDuration <= 0 {
		add("pipeline.target_duration must be > 0")
	}
	checkEngine(&errs, "script_engine", p.ScriptEngine, ScriptEngines)
	checkEngine(&errs, "voice_engine", p.VoiceEngine, VoiceEngines)
	checkEngine(&errs, "image_engine", p.ImageEngine, ImageEngines)
	checkEngine(&errs, "video_engine", p.VideoEngine, VideoEngines)
	checkEngine(&errs, "music_engine", p.MusicEngine, MusicEngines)

	if err := llm.ValidateBaseURL(c.LLM.BaseURL, c.LLM.AllowedHosts); err != nil {
		errs = append(errs, err)
	}
	if c.LLM.Model == "" {
		add("llm.model is required")
	}

	if p.ImageEngine == ImageFal && c.Images.FalKey == "" {
		add("FAL_KEY is required for image engine %q", ImageFal)
	}
	if c.Images.LoraPath != "" && c.Images.LoraScale <= 0 {
		add("images.lora_scale must be > 0 when images.lora_path is set")
	}
	if c.Transcription.WhisperModel == "" {
		add("whisper model path is required")
	}
	if p.VideoEngine == VideoKenBurns && c.Animation.ClipSeconds <= 0 {
		add("animation.clip_seconds must be > 0")
	}
	if c.Music.Gain < 0 || c.Music.Gain > 1 {
		add("music.gain must be within [0,1]")
	}

	r := c.Render
	if r.Width <= 0 || r.Height <= 0 || r.Width%2 != 0 || r.Height%2 != 0 {
		add("render size must be positive and even, got %dx%d", r.Width, r.Height)
	}
	if r.FrameRate <= 0 {
		add("render.frame_rate must be > 0")
	}
	if r.TransitionSeconds < 0 {
		add("render.transition_seconds must be >= 0")
	}
	if r.MaxZoom < 1 || r.MaxZoom > 2 {
		add("render.max_zoom must be within [1,2]")
	}
	if r.CRF < 0 || r.CRF > 51 {
		add("render.crf must be within [0,51]")
	}

	if _, err := subtitles.StyleByName(c.Subtitles.Style); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "", "auto", "json", "console":
	default:
		add("logging.format must be auto, json or console")
	}

	return errors.Join(errs...)
}

func checkEngine(errs *[]error, field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		*errs = append(*errs, fmt.Errorf("pipeline.%s %q is not one of %s", field, value, strings.Join(allowed, ", ")))
	}
}
