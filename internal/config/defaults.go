package config

// Engine names accepted per stage.
const (
	ScriptGemini = "gemini"

	VoiceEdgeTTS = "edge_tts"
	VoiceEspeak  = "espeak"

	ImageDummy = "dummy"
	ImageFal   = "fal"

	VideoStill    = "still"
	VideoKenBurns = "kenburns"

	MusicNone   = "none"
	MusicSilent = "silent"
	MusicLocal  = "local"
)

var (
	ScriptEngines = []string{ScriptGemini}
	VoiceEngines  = []string{VoiceEdgeTTS, VoiceEspeak}
	ImageEngines  = []string{ImageDummy, ImageFal}
	VideoEngines  = []string{VideoStill, VideoKenBurns}
	MusicEngines  = []string{MusicNone, MusicSilent, MusicLocal}
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workspace: Workspace{Dir: "workspace"},
		Pipeline: Pipeline{
			NumScenes:      12,
			TargetDuration: 20,
			Language:       "fr",
			ScriptEngine:   ScriptGemini,
			VoiceEngine:    VoiceEdgeTTS,
			ImageEngine:    ImageDummy,
			VideoEngine:    VideoStill,
			MusicEngine:    MusicNone,
		},
		LLM: LLM{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 120,
			MaxAttempts:    5,
		},
		Voice: Voice{
			EdgeTTSBin:  "edge-tts",
			EdgeVoice:   "fr-FR-HenriNeural",
			EspeakBin:   "espeak-ng",
			EspeakVoice: "fr",
		},
		Transcription: Transcription{
			WhisperBin:   ".cache/bin/whisper.cpp",
			WhisperModel: ".cache/models/ggml-base.bin",
		},
		Images: Images{
			FalBaseURL:          "https://queue.fal.run",
			FalModel:            "fal-ai/flux/dev",
			FalImageSize:        "portrait_16_9",
			PollIntervalSeconds: 2,
			MaxAttempts:         5,
			LoraScale:           1,
		},
		Animation: Animation{ClipSeconds: 4},
		Music: Music{
			CatalogDir: "assets/music",
			Gain:       0.15,
		},
		Render: Render{
			FFmpeg:            "ffmpeg",
			FFprobe:           "ffprobe",
			Width:             1080,
			Height:            1920,
			FrameRate:         24,
			TransitionSeconds: 0.5,
			MaxZoom:           1.15,
			Preset:            "veryfast",
			CRF:               20,
		},
		Subtitles: Subtitles{Enabled: true, Style: "tiktok"},
		Logging:   Logging{Level: "info", Format: "auto"},
	}
}
