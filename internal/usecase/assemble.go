package usecase

import (
	"context"
	"fmt"
	"os"

	"github.com/forPelevin/reelforge/internal/domain/compose"
	"github.com/forPelevin/reelforge/internal/domain/subtitles"
	"github.com/forPelevin/reelforge/internal/domain/timing"
	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/types"
	"github.com/forPelevin/reelforge/internal/workspace"
)

// Assemble renders final_video.mp4: scene visuals paced to the voice
// track, voice mixed with optional music, and subtitles burned in, all in a
// single renderer invocation.
func (u Usecase) Assemble(ctx context.Context, in types.Script, l Layout) (types.Script, error) {
	const op = "stage.assemble"
	out := in.Clone()
	rs := u.s.Render

	if err := requireFile(op, in.FullAudioPath, "voice track"); err != nil {
		return out, err
	}
	total, err := u.d.Prober.ProbeDuration(ctx, in.FullAudioPath)
	if err != nil {
		return out, faults.Upstream(op, fmt.Errorf("probe voice duration: %w", err))
	}

	assets, err := compose.ValidAssets(in.Scenes, u.log)
	if err != nil {
		return out, err
	}
	plans, err := timing.Plan(total.Seconds(), len(assets), rs.TransitionSeconds, rs.FrameRate)
	if err != nil {
		return out, err
	}
	if assets, err = compose.WithPlans(assets, plans); err != nil {
		return out, err
	}
	u.log.Info("timing planned",
		"duration_sec", total.Seconds(),
		"assets", len(assets),
		"skipped", len(in.Scenes)-len(assets),
	)

	inputs := compose.NewInputs()
	visual, err := compose.BuildVisual(inputs, assets, compose.VisualOptions{
		Width:     rs.Width,
		Height:    rs.Height,
		FrameRate: rs.FrameRate,
		MaxZoom:   rs.MaxZoom,
	})
	if err != nil {
		return out, err
	}

	music := in.BgMusicPath
	if music != "" {
		if _, err := os.Stat(music); err != nil {
			u.log.Warn("background music missing, rendering voice only", "path", music)
			music = ""
		}
	}
	audio, err := compose.BuildAudio(inputs, in.FullAudioPath, music, u.s.MusicGain)
	if err != nil {
		return out, err
	}

	subsPath := ""
	if u.s.Subtitles {
		if subsPath, err = u.writeSubtitles(in, l.SubtitlesPath()); err != nil {
			return out, err
		}
	}

	mux := compose.NewMultiplexer(u.d.Renderer, u.log)
	final, err := mux.Render(ctx, compose.RenderJob{
		Inputs:    inputs,
		Visual:    visual,
		Audio:     audio,
		Subtitles: subsPath,
		FrameRate: rs.FrameRate,
		Preset:    rs.Preset,
		CRF:       rs.CRF,
	}, l.FinalVideoPath())
	if err != nil {
		return out, err
	}
	out.SubtitlesPath = subsPath
	out.FinalVideoPath = final
	return out, nil
}

func (u Usecase) writeSubtitles(in types.Script, path string) (string, error) {
	const op = "stage.assemble.subtitles"
	style, err := subtitles.StyleByName(u.s.SubtitleStyle)
	if err != nil {
		return "", err
	}
	if style.Language == "" {
		style.Language = u.s.Language
	}
	if in.TimestampsPath == "" {
		return "", faults.AssetMissing(op, "", fmt.Errorf("word timings were never produced"))
	}
	words, err := workspace.ReadTimestamps(in.TimestampsPath)
	if err != nil {
		return "", err
	}
	chunks, err := subtitles.ChunkWords(words, style.ChunkSize)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(subtitles.EncodeASS(chunks, style)), 0o644); err != nil {
		return "", fmt.Errorf("%s: write %s: %w", op, path, err)
	}
	u.log.Info("subtitles written", "chunks", len(chunks), "style", style.Name)
	return path, nil
}
