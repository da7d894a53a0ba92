package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forPelevin/reelforge/internal/config"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/pipeline"
	"github.com/forPelevin/reelforge/internal/usecase"
)

type runFlags struct {
	projectID   string
	from        string
	scenes      int
	duration    int
	angle       string
	language    string
	voice       string
	image       string
	video       string
	music       string
	noSubtitles bool
}

func runRoot(cmd *cobra.Command, g *globalOptions, rf *runFlags, theme string) error {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	rf.apply(cmd, cfg)
	if err := cfg.Normalize(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var from usecase.Stage
	if rf.from != "" {
		if from, err = usecase.ParseStage(rf.from); err != nil {
			return err
		}
	}
	if (from == "" || from == usecase.StageScript) && strings.TrimSpace(theme) == "" {
		return errors.New("a theme is required, e.g. reelforge \"la pluie\"")
	}
	if needsLLM(cfg, from) && cfg.LLM.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required (set it in .env)")
	}

	return execute(cmd, cfg, pipeline.Options{
		Theme:     theme,
		ProjectID: rf.projectID,
		From:      from,
	})
}

func (rf *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	p := &cfg.Pipeline
	if f.Changed("scenes") {
		p.NumScenes = rf.scenes
	}
	if f.Changed("duration") {
		p.TargetDuration = rf.duration
	}
	if f.Changed("angle") {
		p.Angle = strings.TrimSpace(rf.angle)
	}
	if f.Changed("language") {
		p.Language = rf.language
	}
	if f.Changed("voice-engine") {
		p.VoiceEngine = rf.voice
	}
	if f.Changed("image-engine") {
		p.ImageEngine = rf.image
	}
	if f.Changed("video-engine") {
		p.VideoEngine = rf.video
	}
	if f.Changed("music-engine") {
		p.MusicEngine = rf.music
	}
	if rf.noSubtitles {
		cfg.Subtitles.Enabled = false
	}
}

// needsLLM reports whether any stage that will run calls the chat endpoint.
func needsLLM(cfg *config.Config, from usecase.Stage) bool {
	stages := usecase.Stages
	if from != "" {
		stages = usecase.From(from)
	}
	for _, st := range stages {
		switch {
		case st == usecase.StageScript:
			return true
		case st == usecase.StageMusic && cfg.Pipeline.MusicEngine == config.MusicLocal:
			return true
		}
	}
	return false
}

func loadConfig(cmd *cobra.Command, g *globalOptions) (*config.Config, error) {
	cfg, _, _, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	f := cmd.Flags()
	if f.Changed("workspace") {
		cfg.Workspace.Dir = g.workspace
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = g.logFormat
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
}

func execute(cmd *cobra.Command, cfg *config.Config, opts pipeline.Options) error {
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	opts.Log = log

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg, opts)
	if err != nil {
		if res.ProjectID != "" {
			return fmt.Errorf("%s: %w", res.ProjectID, err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "project: %s\n", res.ProjectID)
	video, err := filepath.Abs(res.Script.FinalVideoPath)
	if err != nil {
		return err
	}
	if info, err := os.Stat(video); err == nil {
		fmt.Fprintf(out, "video: %s (%s)\n", video, humanize.Bytes(uint64(info.Size())))
	} else {
		fmt.Fprintf(out, "video: %s\n", video)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
