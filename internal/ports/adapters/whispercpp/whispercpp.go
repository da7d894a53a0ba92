package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/reelforge/internal/types"
)

// AudioConverter turns the narration into the 16 kHz mono WAV whisper.cpp
// reads.
type AudioConverter interface {
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
}

type Adapter struct {
	bin      string
	model    string
	language string
	conv     AudioConverter
}

func New(binPath, modelPath, language string, conv AudioConverter) *Adapter {
	return &Adapter{bin: binPath, model: modelPath, language: language, conv: conv}
}

// Binaries lists the executables this adapter shells out to.
func (a *Adapter) Binaries() []string { return []string{a.bin} }

// Transcribe returns one timing per spoken word. Intermediate files go to
// workDir.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, workDir string) ([]types.WordTiming, error) {
	wavPath := filepath.Join(workDir, "whisper_input.wav")
	if err := a.conv.ExtractAudioMono16k(ctx, audioPath, wavPath); err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)

	outPrefix := filepath.Join(workDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-ml", "1",
		"-sow",
		"-oj",
		"-of", outPrefix,
	}
	if a.language != "" {
		args = append(args, "-l", a.language)
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, err
	}
	defer os.Remove(outPrefix + ".json")
	return parseWords(jb)
}

// output mirrors the subset of whisper.cpp's -oj document we read. With
// -ml 1 -sow each transcription entry holds a single word.
type output struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseWords(b []byte) ([]types.WordTiming, error) {
	var out output
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("whisper.cpp json: %w", err)
	}
	words := make([]types.WordTiming, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		// whisper.cpp emits bracketed markers such as [BLANK_AUDIO].
		if text == "" || (strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")) {
			continue
		}
		start := float64(seg.Offsets.From) / 1000
		end := float64(seg.Offsets.To) / 1000
		if end < start {
			end = start
		}
		words = append(words, types.WordTiming{Word: text, Start: start, End: end})
	}
	return words, nil
}
