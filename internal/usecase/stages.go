package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/ports"
	"github.com/forPelevin/reelforge/internal/types"
	"github.com/forPelevin/reelforge/internal/workspace"
)

// WriteScript fills theme, hook, narration and scene prompts from the
// configured theme.
func (u Usecase) WriteScript(ctx context.Context, in types.Script, _ Layout) (types.Script, error) {
	const op = "stage.script"
	out := in.Clone()
	if strings.TrimSpace(in.Theme) == "" {
		return out, faults.InvalidInput(op, "theme is empty")
	}
	if in.Config.NumScenes <= 0 {
		return out, faults.InvalidInput(op, "num_scenes must be > 0, got %d", in.Config.NumScenes)
	}
	if in.Config.TargetDuration <= 0 {
		return out, faults.InvalidInput(op, "target_duration must be > 0, got %d", in.Config.TargetDuration)
	}

	draft, err := u.d.Script.WriteScript(ctx, ports.ScriptRequest{
		Theme:          in.Theme,
		NumScenes:      in.Config.NumScenes,
		TargetDuration: in.Config.TargetDuration,
		Angle:          in.Config.Angle,
		Language:       u.s.Language,
	})
	if err != nil {
		return out, err
	}
	if len(draft.Scenes) == 0 {
		return out, faults.Upstream(op, errors.New("script has no scenes"))
	}

	if t := strings.TrimSpace(draft.Theme); t != "" {
		out.Theme = t
	}
	out.Hook = draft.Hook
	out.FullVoiceoverText = draft.FullVoiceoverText
	out.Scenes = lo.Map(draft.Scenes, func(s types.Scene, _ int) types.Scene {
		return types.Scene{ID: s.ID, VisualPrompt: s.VisualPrompt}
	})
	u.log.Info("script written", "scenes", len(out.Scenes), "words", len(strings.Fields(out.Narration())))
	return out, nil
}

// SynthesizeVoice renders hook and narration into the voice track, the
// timing anchor of the whole video.
func (u Usecase) SynthesizeVoice(ctx context.Context, in types.Script, l Layout) (types.Script, error) {
	const op = "stage.voice"
	out := in.Clone()
	text := strings.TrimSpace(in.Narration())
	if text == "" {
		return out, faults.InvalidInput(op, "narration is empty")
	}
	path := l.VoicePath()
	if err := u.d.Voice.Synthesize(ctx, text, path); err != nil {
		return out, err
	}
	if err := requireFile(op, path, "voice track"); err != nil {
		return out, err
	}
	out.FullAudioPath = path
	u.log.Info("voice synthesized", "path", path)
	return out, nil
}

// Transcribe derives word timings from the voice track and stores them in
// audio/timestamps.json.
func (u Usecase) Transcribe(ctx context.Context, in types.Script, l Layout) (types.Script, error) {
	const op = "stage.transcribe"
	out := in.Clone()
	if err := requireFile(op, in.FullAudioPath, "voice track"); err != nil {
		return out, err
	}
	words, err := u.d.Transcriber.Transcribe(ctx, in.FullAudioPath, l.AudioDir())
	if err != nil {
		return out, faults.Upstream(op, err)
	}
	words = normalizeWords(words)
	if len(words) == 0 {
		u.log.Warn("transcription returned no words; subtitles will be empty")
	}
	path := l.TimestampsPath()
	if err := workspace.WriteTimestamps(path, words); err != nil {
		return out, err
	}
	out.TimestampsPath = path
	u.log.Info("voice transcribed", "words", len(words))
	return out, nil
}

// normalizeWords trims text, drops empty words, orders by start and clamps
// end >= start.
func normalizeWords(in []types.WordTiming) []types.WordTiming {
	out := lo.FilterMap(in, func(w types.WordTiming, _ int) (types.WordTiming, bool) {
		w.Word = strings.TrimSpace(w.Word)
		if w.Word == "" {
			return w, false
		}
		if w.Start < 0 {
			w.Start = 0
		}
		if w.End < w.Start {
			w.End = w.Start
		}
		return w, true
	})
	slices.SortStableFunc(out, func(a, b types.WordTiming) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return out
}

// GenerateImages produces one still per scene. A failed scene is logged
// and left without an image; the stage fails only when no scene succeeds.
func (u Usecase) GenerateImages(ctx context.Context, in types.Script, l Layout) (types.Script, error) {
	const op = "stage.images"
	out := in.Clone()
	if len(out.Scenes) == 0 {
		return out, faults.InvalidInput(op, "script has no scenes")
	}

	var lastErr error
	for i := range out.Scenes {
		sc := &out.Scenes[i]
		path := l.ImagePath(sc.ID, u.s.ImageExt)
		err := u.d.Images.GenerateImage(ctx, ports.ScenePrompt{
			SceneID: sc.ID,
			Prompt:  sc.VisualPrompt,
			Width:   u.s.Render.Width,
			Height:  u.s.Render.Height,
		}, path)
		if err == nil {
			err = requireFile(op, path, "scene image")
		}
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			u.log.Warn("scene image failed", "scene_id", sc.ID, "error", err)
			sc.ImagePath = ""
			lastErr = err
			continue
		}
		sc.ImagePath = path
		u.log.Info("scene image ready", "scene_id", sc.ID, "path", path)
	}

	ok := lo.CountBy(out.Scenes, func(s types.Scene) bool { return s.ImagePath != "" })
	if ok == 0 {
		return out, faults.AssetMissing(op, "", fmt.Errorf("all %d scenes failed: %w", len(out.Scenes), lastErr))
	}
	return out, nil
}

// AnimateScenes turns stills into clips when a video source is configured.
// Scenes that fail keep their still.
func (u Usecase) AnimateScenes(ctx context.Context, in types.Script, l Layout) (types.Script, error) {
	out := in.Clone()
	if u.d.Video == nil {
		return out, nil
	}
	seconds := u.s.ClipSeconds
	if seconds <= 0 && in.Config.NumScenes > 0 {
		seconds = float64(in.Config.TargetDuration) / float64(in.Config.NumScenes)
	}

	for i := range out.Scenes {
		sc := &out.Scenes[i]
		if sc.ImagePath == "" {
			continue
		}
		path := l.VideoPath(sc.ID)
		ok, err := u.d.Video.Animate(ctx, ports.SceneClip{
			SceneID:   sc.ID,
			ImagePath: sc.ImagePath,
			Seconds:   seconds,
			Width:     u.s.Render.Width,
			Height:    u.s.Render.Height,
			FrameRate: u.s.Render.FrameRate,
		}, path)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			u.log.Warn("scene animation failed, keeping still", "scene_id", sc.ID, "error", err)
			sc.VideoPath = ""
		case ok:
			sc.VideoPath = path
		default:
			sc.VideoPath = ""
		}
	}
	return out, nil
}

// SelectMusic attaches a background track. Failures never fail the run.
func (u Usecase) SelectMusic(ctx context.Context, in types.Script, l Layout) (types.Script, error) {
	out := in.Clone()
	out.BgMusicPath = ""
	if u.d.Music == nil {
		return out, nil
	}

	duration := float64(in.Config.TargetDuration)
	if in.FullAudioPath != "" && u.d.Prober != nil {
		if d, err := u.d.Prober.ProbeDuration(ctx, in.FullAudioPath); err == nil && d > 0 {
			duration = d.Seconds()
		}
	}

	path := l.MusicPath()
	ok, err := u.d.Music.SelectMusic(ctx, ports.MusicRequest{
		Theme:    in.Theme,
		Angle:    in.Config.Angle,
		Duration: duration,
	}, path)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		u.log.Warn("music selection failed, continuing without music", "error", err)
	case !ok:
		u.log.Info("no background music")
	default:
		out.BgMusicPath = path
		u.log.Info("music ready", "path", path)
	}
	return out, nil
}
