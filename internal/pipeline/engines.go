package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/samber/lo"

	"github.com/forPelevin/reelforge/internal/config"
	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/ports"
	"github.com/forPelevin/reelforge/internal/ports/adapters/catalog"
	"github.com/forPelevin/reelforge/internal/ports/adapters/fal"
	"github.com/forPelevin/reelforge/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/reelforge/internal/ports/adapters/llm"
	"github.com/forPelevin/reelforge/internal/ports/adapters/tts"
	"github.com/forPelevin/reelforge/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/reelforge/internal/usecase"
)

// Engines is the set of collaborators chosen for one run. Video and Music
// are nil when the configured engine does nothing.
type Engines struct {
	Script      ports.ScriptWriter
	Voice       ports.SpeechSynthesizer
	Transcriber ports.Transcriber
	Images      ports.ImageSource
	Video       ports.VideoSource
	Music       ports.MusicSource
	Renderer    ports.Renderer
	Prober      ports.Prober

	ImageExt string

	binaries map[usecase.Stage][]string
}

// BuildEngines picks one implementation per stage from the configured
// engine names.
func BuildEngines(cfg *config.Config, log *slog.Logger) (Engines, error) {
	if log == nil {
		log = logging.NewNop()
	}
	p := cfg.Pipeline
	ff := ffmpeg.New(cfg.Render.FFmpeg, cfg.Render.FFprobe)
	chat := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	},
		llm.WithRetryMaxAttempts(cfg.LLM.MaxAttempts),
		llm.WithLogger(log),
	)
	whisper := whispercpp.New(cfg.Transcription.WhisperBin, cfg.Transcription.WhisperModel, p.Language, ff)

	e := Engines{
		Transcriber: whisper,
		Renderer:    ff,
		Prober:      ff,
		ImageExt:    ".png",
		binaries: map[usecase.Stage][]string{
			usecase.StageTranscribe: append(whisper.Binaries(), ff.Binaries()...),
			usecase.StageAssemble:   ff.Binaries(),
		},
	}

	switch p.ScriptEngine {
	case config.ScriptGemini:
		e.Script = chat
	default:
		return Engines{}, unknownEngine("script", p.ScriptEngine)
	}

	switch p.VoiceEngine {
	case config.VoiceEdgeTTS:
		v := tts.NewEdgeTTS(cfg.Voice.EdgeTTSBin, cfg.Voice.EdgeVoice)
		e.Voice = v
		e.binaries[usecase.StageVoice] = v.Binaries()
	case config.VoiceEspeak:
		v := tts.NewEspeak(cfg.Voice.EspeakBin, cfg.Voice.EspeakVoice, ff)
		e.Voice = v
		e.binaries[usecase.StageVoice] = append(v.Binaries(), ff.Binaries()...)
	default:
		return Engines{}, unknownEngine("voice", p.VoiceEngine)
	}

	switch p.ImageEngine {
	case config.ImageDummy:
		e.Images = ff
		e.binaries[usecase.StageImages] = ff.Binaries()
	case config.ImageFal:
		e.Images = fal.New(fal.Config{
			APIKey:       cfg.Images.FalKey,
			BaseURL:      cfg.Images.FalBaseURL,
			Model:        cfg.Images.FalModel,
			ImageSize:    cfg.Images.FalImageSize,
			PollInterval: time.Duration(cfg.Images.PollIntervalSeconds) * time.Second,
			MaxAttempts:  cfg.Images.MaxAttempts,
			LoraPath:     cfg.Images.LoraPath,
			LoraScale:    cfg.Images.LoraScale,
		}, fal.WithLogger(log))
		e.ImageExt = ".jpg"
	default:
		return Engines{}, unknownEngine("image", p.ImageEngine)
	}

	switch p.VideoEngine {
	case config.VideoStill:
	case config.VideoKenBurns:
		e.Video = ffmpeg.NewKenBurns(ff)
		e.binaries[usecase.StageAnimate] = ff.Binaries()
	default:
		return Engines{}, unknownEngine("video", p.VideoEngine)
	}

	switch p.MusicEngine {
	case config.MusicNone:
	case config.MusicSilent:
		e.Music = ffmpeg.NewSilence(ff)
		e.binaries[usecase.StageMusic] = ff.Binaries()
	case config.MusicLocal:
		e.Music = catalog.New(cfg.Music.CatalogDir, chat, log)
		e.binaries[usecase.StageMusic] = ff.Binaries()
	default:
		return Engines{}, unknownEngine("music", p.MusicEngine)
	}

	return e, nil
}

func unknownEngine(stage, name string) error {
	return faults.InvalidInput("engines", "unknown %s engine %q", stage, name)
}

// Binaries lists the executables the given stages shell out to.
func (e Engines) Binaries(stages []usecase.Stage) []string {
	var out []string
	for _, st := range stages {
		out = append(out, e.binaries[st]...)
	}
	return lo.Uniq(out)
}

// Preflight resolves every binary with lookPath and reports all that are
// missing at once.
func Preflight(binaries []string, lookPath func(string) (string, error)) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var errs []error
	for _, bin := range binaries {
		if _, err := lookPath(bin); err != nil {
			errs = append(errs, faults.AssetMissing("preflight", bin, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("required binaries not found: %w", errors.Join(errs...))
	}
	return nil
}

func (e Engines) deps(log *slog.Logger) usecase.Deps {
	return usecase.Deps{
		Script:      e.Script,
		Voice:       e.Voice,
		Transcriber: e.Transcriber,
		Images:      e.Images,
		Video:       e.Video,
		Music:       e.Music,
		Renderer:    e.Renderer,
		Prober:      e.Prober,
		Log:         log,
	}
}

var (
	_ ports.ScriptWriter      = (*llm.Client)(nil)
	_ ports.Chooser           = (*llm.Client)(nil)
	_ ports.SpeechSynthesizer = (*tts.EdgeTTS)(nil)
	_ ports.SpeechSynthesizer = (*tts.Espeak)(nil)
	_ ports.Transcriber       = (*whispercpp.Adapter)(nil)
	_ ports.ImageSource       = (*ffmpeg.Adapter)(nil)
	_ ports.ImageSource       = (*fal.Client)(nil)
	_ ports.VideoSource       = (*ffmpeg.KenBurns)(nil)
	_ ports.MusicSource       = (*ffmpeg.Silence)(nil)
	_ ports.MusicSource       = (*catalog.Source)(nil)
	_ ports.Renderer          = (*ffmpeg.Adapter)(nil)
	_ ports.Prober            = (*ffmpeg.Adapter)(nil)
)
