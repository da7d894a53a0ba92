//go:build integration

package itest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forPelevin/reelforge/internal/config"
	"github.com/forPelevin/reelforge/internal/ledger"
	"github.com/forPelevin/reelforge/internal/pipeline"
	"github.com/forPelevin/reelforge/internal/usecase"
	"github.com/forPelevin/reelforge/internal/workspace"
)

func TestE2E(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Fatalf("GEMINI_API_KEY is required for itest")
	}
	repoRoot := mustRepoRoot(t)

	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()
	cfg.LLM.APIKey = apiKey
	cfg.Pipeline.NumScenes = 3
	cfg.Pipeline.TargetDuration = 10
	cfg.Pipeline.VoiceEngine = config.VoiceEspeak
	cfg.Pipeline.ImageEngine = config.ImageDummy
	cfg.Pipeline.VideoEngine = config.VideoKenBurns
	cfg.Pipeline.MusicEngine = config.MusicSilent
	cfg.Animation.ClipSeconds = 3
	cfg.Transcription.WhisperBin = filepath.Join(repoRoot, ".cache", "bin", "whisper.cpp")
	cfg.Transcription.WhisperModel = filepath.Join(repoRoot, ".cache", "models", "ggml-base.bin")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	res, err := pipeline.Run(ctx, &cfg, pipeline.Options{Theme: "la pluie en ville"})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	manifest := filepath.Join(cfg.Workspace.Dir, res.ProjectID, workspace.ManifestFile)
	saved, err := workspace.LoadManifest(manifest)
	if err != nil {
		t.Fatalf("missing manifest: %v", err)
	}
	if saved.FinalVideoPath == "" || saved.SubtitlesPath == "" || saved.BgMusicPath == "" {
		t.Fatalf("manifest incomplete: %+v", saved)
	}

	voice, err := probeMedia(saved.FullAudioPath)
	if err != nil {
		t.Fatalf("probe voice: %v", err)
	}
	final, err := probeMedia(saved.FinalVideoPath)
	if err != nil {
		t.Fatalf("probe final video: %v", err)
	}
	v, ok := final.has("video")
	if !ok || v.Width != cfg.Render.Width || v.Height != cfg.Render.Height {
		t.Fatalf("unexpected video stream: %+v", final.Streams)
	}
	if _, ok := final.has("audio"); !ok {
		t.Fatalf("final video has no audio: %+v", final.Streams)
	}
	if math.Abs(final.Duration-voice.Duration) > 0.5 {
		t.Fatalf("final duration %.3fs should follow the voice track %.3fs", final.Duration, voice.Duration)
	}

	// Re-render from the saved manifest without touching earlier stages.
	again, err := pipeline.Run(ctx, &cfg, pipeline.Options{ProjectID: res.ProjectID, From: usecase.StageAssemble})
	if err != nil {
		t.Fatalf("re-render failed: %v", err)
	}
	runs, err := pipeline.History(ctx, cfg.Workspace.Dir, res.ProjectID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(runs) != len(usecase.Stages)+1 {
		t.Fatalf("expected %d ledger rows, got %d", len(usecase.Stages)+1, len(runs))
	}
	if runs[0].RunID != again.RunID || runs[0].Status != ledger.StatusSucceeded {
		t.Fatalf("unexpected newest row: %+v", runs[0])
	}
}
