package ports

import (
	"context"
	"time"

	"github.com/forPelevin/reelforge/internal/types"
)

type ScriptRequest struct {
	Theme          string
	NumScenes      int
	TargetDuration int
	Angle          string
	Language       string
}

// ScriptDraft is what the script writer returns before any media exists.
type ScriptDraft struct {
	Theme             string
	Hook              string
	FullVoiceoverText string
	Scenes            []types.Scene
}

type ScriptWriter interface {
	WriteScript(ctx context.Context, req ScriptRequest) (ScriptDraft, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, workDir string) ([]types.WordTiming, error)
}

type ScenePrompt struct {
	SceneID int
	Prompt  string
	Width   int
	Height  int
}

type ImageSource interface {
	GenerateImage(ctx context.Context, p ScenePrompt, outPath string) error
}

type SceneClip struct {
	SceneID   int
	ImagePath string
	Seconds   float64
	Width     int
	Height    int
	FrameRate int
}

type VideoSource interface {
	// Animate renders a clip for one scene. Sources that do not animate
	// return ok=false and leave the scene as a still.
	Animate(ctx context.Context, c SceneClip, outPath string) (ok bool, err error)
}

type MusicRequest struct {
	Theme    string
	Angle    string
	Duration float64
}

type MusicSource interface {
	// SelectMusic writes a track to outPath. ok=false means the run has no
	// background music.
	SelectMusic(ctx context.Context, req MusicRequest, outPath string) (ok bool, err error)
}

// Chooser picks one option for a free-text brief.
type Chooser interface {
	Choose(ctx context.Context, brief string, options []string) (int, error)
}

type Renderer interface {
	RunFFmpeg(ctx context.Context, args []string) ([]byte, error)
}

type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}
