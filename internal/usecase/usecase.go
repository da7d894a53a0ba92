package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/ports"
	"github.com/forPelevin/reelforge/internal/types"
)

// Stage names one step of a production run, in execution order.
type Stage string

const (
	StageScript     Stage = "script"
	StageVoice      Stage = "voice"
	StageTranscribe Stage = "transcribe"
	StageImages     Stage = "images"
	StageAnimate    Stage = "animate"
	StageMusic      Stage = "music"
	StageAssemble   Stage = "assemble"
)

// Stages lists every stage in the order a run executes them.
var Stages = []Stage{StageScript, StageVoice, StageTranscribe, StageImages, StageAnimate, StageMusic, StageAssemble}

func ParseStage(s string) (Stage, error) {
	want := Stage(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Stages {
		if st == want {
			return st, nil
		}
	}
	return "", faults.InvalidInput("stage", "unknown stage %q (want one of %v)", s, Stages)
}

// From returns the stages starting at first.
func From(first Stage) []Stage {
	for i, st := range Stages {
		if st == first {
			return Stages[i:]
		}
	}
	return nil
}

// Layout tells stages where their outputs live. *workspace.Project
// satisfies it.
type Layout interface {
	AudioDir() string
	VoicePath() string
	TimestampsPath() string
	MusicPath() string
	SubtitlesPath() string
	FinalVideoPath() string
	ImagePath(sceneID int, ext string) string
	VideoPath(sceneID int) string
}

// Deps are the collaborators stages call out to. Video and Music may be
// nil: scenes then stay stills and the run has no music bed.
type Deps struct {
	Script      ports.ScriptWriter
	Voice       ports.SpeechSynthesizer
	Transcriber ports.Transcriber
	Images      ports.ImageSource
	Video       ports.VideoSource
	Music       ports.MusicSource
	Renderer    ports.Renderer
	Prober      ports.Prober
	Log         *slog.Logger
}

type RenderSettings struct {
	Width             int
	Height            int
	FrameRate         int
	TransitionSeconds float64
	MaxZoom           float64
	Preset            string
	CRF               int
}

type Settings struct {
	Language    string
	ImageExt    string
	ClipSeconds float64
	MusicGain   float64
	Subtitles   bool
	// SubtitleStyle is a profile name understood by subtitles.StyleByName.
	SubtitleStyle string
	Render        RenderSettings
}

type Usecase struct {
	d   Deps
	s   Settings
	log *slog.Logger
}

func New(d Deps, s Settings) Usecase {
	log := d.Log
	if log == nil {
		log = logging.NewNop()
	}
	if s.ImageExt == "" {
		s.ImageExt = ".png"
	}
	return Usecase{d: d, s: s, log: log}
}

// StageFunc takes a snapshot and returns a new one with the stage's fields
// populated. The input is never modified.
type StageFunc func(ctx context.Context, in types.Script, l Layout) (types.Script, error)

// Stage returns the implementation of st.
func (u Usecase) Stage(st Stage) (StageFunc, error) {
	switch st {
	case StageScript:
		return u.WriteScript, nil
	case StageVoice:
		return u.SynthesizeVoice, nil
	case StageTranscribe:
		return u.Transcribe, nil
	case StageImages:
		return u.GenerateImages, nil
	case StageAnimate:
		return u.AnimateScenes, nil
	case StageMusic:
		return u.SelectMusic, nil
	case StageAssemble:
		return u.Assemble, nil
	default:
		return nil, faults.InvalidInput("stage", "unknown stage %q", st)
	}
}

func requireFile(op, path, what string) error {
	if path == "" {
		return faults.AssetMissing(op, "", fmt.Errorf("%s path is not set", what))
	}
	info, err := os.Stat(path)
	if err != nil {
		return faults.AssetMissing(op, path, err)
	}
	if info.Size() == 0 {
		return faults.AssetMissing(op, path, fmt.Errorf("%s is empty", what))
	}
	return nil
}
