package compose

import (
	"fmt"
	"os"

	"github.com/forPelevin/reelforge/internal/faults"
)

const canonicalAudio = "aresample=44100,aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo"

// BuildAudio registers the narration (and music, when musicPath is set) with
// in and returns a graph labelled [aout]. The narration always sets the
// length; music is looped and cut to it.
func BuildAudio(in *Inputs, voicePath, musicPath string, musicGain float64) (Graph, error) {
	const op = "audio track"
	if voicePath == "" {
		return Graph{}, faults.AssetMissing(op, "", fmt.Errorf("voice track is required"))
	}
	if _, err := os.Stat(voicePath); err != nil {
		return Graph{}, faults.AssetMissing(op, voicePath, err)
	}
	if musicGain < 0 || musicGain > 1 {
		return Graph{}, faults.InvalidInput(op, "music gain must be within [0,1], got %v", musicGain)
	}
	if musicPath != "" {
		if _, err := os.Stat(musicPath); err != nil {
			return Graph{}, faults.AssetMissing(op, musicPath, err)
		}
	}

	out := label("aout")
	voice := in.Add(voicePath)
	if musicPath == "" {
		return Graph{
			Chains: []string{voice.Audio() + canonicalAudio + out},
			Out:    out,
		}, nil
	}

	music := in.Add(musicPath, "-stream_loop", "-1")
	return Graph{
		Chains: []string{
			voice.Audio() + canonicalAudio + "[voice]",
			music.Audio() + canonicalAudio + fmt.Sprintf(",volume=%.3f", musicGain) + "[music]",
			"[voice][music]amix=inputs=2:duration=first:dropout_transition=0:normalize=0" + out,
		},
		Out: out,
	}, nil
}
