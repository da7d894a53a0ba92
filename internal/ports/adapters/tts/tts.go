// Package tts wraps command-line speech synthesizers.
package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/reelforge/internal/faults"
)

// EdgeTTS drives the edge-tts CLI, which writes MP3 directly.
type EdgeTTS struct {
	bin   string
	voice string
}

func NewEdgeTTS(bin, voice string) *EdgeTTS {
	if bin == "" {
		bin = "edge-tts"
	}
	if voice == "" {
		voice = "fr-FR-HenriNeural"
	}
	return &EdgeTTS{bin: bin, voice: voice}
}

func (e *EdgeTTS) Binaries() []string { return []string{e.bin} }

func (e *EdgeTTS) Synthesize(ctx context.Context, text, outPath string) error {
	const op = "tts.edge_tts"
	text = strings.TrimSpace(text)
	if text == "" {
		return faults.InvalidInput(op, "narration text is empty")
	}
	// Long narrations go through a file to stay clear of argv limits.
	textFile, err := writeTextFile(outPath, text)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(textFile)

	args := []string{
		"--voice", e.voice,
		"--file", textFile,
		"--write-media", outPath,
	}
	if err := run(ctx, e.bin, args); err != nil {
		return faults.Upstream(op, err)
	}
	return checkOutput(op, outPath)
}

// Encoder converts the synthesizer's WAV into the MP3 the rest of the
// pipeline expects.
type Encoder interface {
	EncodeMP3(ctx context.Context, in, out string) error
}

// Espeak drives espeak-ng. It is fully offline, which makes it the engine
// of choice for tests and air-gapped runs.
type Espeak struct {
	bin   string
	voice string
	enc   Encoder
}

func NewEspeak(bin, voice string, enc Encoder) *Espeak {
	if bin == "" {
		bin = "espeak-ng"
	}
	if voice == "" {
		voice = "fr"
	}
	return &Espeak{bin: bin, voice: voice, enc: enc}
}

func (e *Espeak) Binaries() []string { return []string{e.bin} }

func (e *Espeak) Synthesize(ctx context.Context, text, outPath string) error {
	const op = "tts.espeak"
	text = strings.TrimSpace(text)
	if text == "" {
		return faults.InvalidInput(op, "narration text is empty")
	}
	textFile, err := writeTextFile(outPath, text)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(textFile)

	wav := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".wav"
	if err := run(ctx, e.bin, []string{"-v", e.voice, "-f", textFile, "-w", wav}); err != nil {
		return faults.Upstream(op, err)
	}
	if wav == outPath {
		return checkOutput(op, outPath)
	}
	defer os.Remove(wav)
	if err := e.enc.EncodeMP3(ctx, wav, outPath); err != nil {
		return faults.Upstream(op, err)
	}
	return checkOutput(op, outPath)
}

func writeTextFile(outPath, text string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(filepath.Dir(outPath), ".narration.txt")
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", filepath.Base(bin), err, strings.TrimSpace(string(b)))
	}
	return nil
}

func checkOutput(op, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return faults.AssetMissing(op, path, err)
	}
	if info.Size() == 0 {
		return faults.AssetMissing(op, path, fmt.Errorf("empty audio file"))
	}
	return nil
}
