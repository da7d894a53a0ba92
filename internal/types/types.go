package types

import (
	"bytes"
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"
)

type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Scene struct {
	ID           int    `json:"id"`
	VisualPrompt string `json:"visual_prompt"`
	ImagePath    string `json:"image_path,omitempty"`
	VideoPath    string `json:"video_path,omitempty"`
}

// AssetPath returns the clip if the scene was animated, otherwise the still.
func (s Scene) AssetPath() string {
	if s.VideoPath != "" {
		return s.VideoPath
	}
	return s.ImagePath
}

type PipelineConfig struct {
	ScriptEngine   string `json:"script_engine"`
	VoiceEngine    string `json:"voice_engine"`
	ImageEngine    string `json:"image_engine"`
	VideoEngine    string `json:"video_engine"`
	MusicEngine    string `json:"music_engine"`
	NumScenes      int    `json:"num_scenes"`
	TargetDuration int    `json:"target_duration"`
	Angle          string `json:"angle,omitempty"`
}

// Script is the manifest handed from stage to stage. Fields are only ever
// added; fields this build does not know are kept in Extra and written back.
type Script struct {
	ProjectID         string         `json:"project_id,omitempty"`
	RunID             string         `json:"run_id,omitempty"`
	Theme             string         `json:"theme"`
	Hook              string         `json:"hook"`
	FullVoiceoverText string         `json:"full_voiceover_text"`
	Scenes            []Scene        `json:"scenes"`
	FullAudioPath     string         `json:"full_audio_path,omitempty"`
	TimestampsPath    string         `json:"timestamps_path,omitempty"`
	BgMusicPath       string         `json:"bg_music_path,omitempty"`
	SubtitlesPath     string         `json:"subtitles_path,omitempty"`
	FinalVideoPath    string         `json:"final_video_path,omitempty"`
	Config            PipelineConfig `json:"config"`
	CreatedAt         time.Time      `json:"created_at,omitzero"`
	UpdatedAt         time.Time      `json:"updated_at,omitzero"`

	Extra map[string]json.RawMessage `json:"-"`
}

type plainScript Script

var scriptKeys = func() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeFor[plainScript]()
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

func (s *Script) UnmarshalJSON(b []byte) error {
	var p plainScript
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	// encoding/json matches field names case-insensitively.
	maps.DeleteFunc(all, func(k string, _ json.RawMessage) bool { return scriptKeys[strings.ToLower(k)] })
	if len(all) > 0 {
		p.Extra = all
	}
	*s = Script(p)
	return nil
}

func (s Script) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(plainScript(s))
	if err != nil || len(s.Extra) == 0 {
		return b, err
	}
	var buf bytes.Buffer
	buf.Write(bytes.TrimSuffix(b, []byte("}")))
	for _, k := range slices.Sorted(maps.Keys(s.Extra)) {
		if scriptKeys[k] {
			continue
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(s.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a snapshot that shares no mutable state with s.
func (s Script) Clone() Script {
	out := s
	if s.Scenes != nil {
		out.Scenes = make([]Scene, len(s.Scenes))
		copy(out.Scenes, s.Scenes)
	}
	out.Extra = maps.Clone(s.Extra)
	return out
}

// Narration is the text handed to speech synthesis.
func (s Script) Narration() string {
	switch {
	case s.Hook == "":
		return s.FullVoiceoverText
	case s.FullVoiceoverText == "":
		return s.Hook
	default:
		return s.Hook + " " + s.FullVoiceoverText
	}
}
