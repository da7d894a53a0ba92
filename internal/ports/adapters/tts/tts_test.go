package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/forPelevin/reelforge/internal/faults"
)

// fakeCLI writes a script that copies the text file given after flag to
// the path given after outFlag.
func fakeCLI(t *testing.T, flag, outFlag string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	script := `#!/bin/sh
in=""; out=""
while [ $# -gt 0 ]; do
  case "$1" in
    ` + flag + `) in="$2"; shift ;;
    ` + outFlag + `) out="$2"; shift ;;
  esac
  shift
done
cat "$in" > "$out"
`
	p := filepath.Join(t.TempDir(), "fake-tts")
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return p
}

type copyEncoder struct{ calls int }

func (c *copyEncoder) EncodeMP3(_ context.Context, in, out string) error {
	c.calls++
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

func TestEdgeTTS_WritesMedia(t *testing.T) {
	out := filepath.Join(t.TempDir(), "audio", "voiceover.mp3")
	e := NewEdgeTTS(fakeCLI(t, "--file", "--write-media"), "")
	if err := e.Synthesize(context.Background(), " Il pleut. ", out); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil || string(b) != "Il pleut." {
		t.Fatalf("unexpected output %q (%v)", b, err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(out), ".narration.txt")); !os.IsNotExist(err) {
		t.Fatalf("text file should be removed, stat err=%v", err)
	}
}

func TestEspeak_EncodesWav(t *testing.T) {
	out := filepath.Join(t.TempDir(), "voiceover.mp3")
	enc := &copyEncoder{}
	e := NewEspeak(fakeCLI(t, "-f", "-w"), "fr", enc)
	if err := e.Synthesize(context.Background(), "bonjour", out); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if enc.calls != 1 {
		t.Fatalf("expected one encode, got %d", enc.calls)
	}
	if _, err := os.Stat(strings.TrimSuffix(out, ".mp3") + ".wav"); !os.IsNotExist(err) {
		t.Fatalf("intermediate wav should be removed")
	}
}

func TestSynthesize_EmptyTextIsInvalid(t *testing.T) {
	err := NewEdgeTTS("edge-tts", "").Synthesize(context.Background(), "  ", filepath.Join(t.TempDir(), "v.mp3"))
	if !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSynthesize_FailureIsUpstream(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	bin := filepath.Join(t.TempDir(), "broken")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho 'no network' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	err := NewEdgeTTS(bin, "").Synthesize(context.Background(), "x", filepath.Join(t.TempDir(), "v.mp3"))
	if !errors.Is(err, faults.ErrUpstreamFailure) || !strings.Contains(err.Error(), "no network") {
		t.Fatalf("expected upstream failure with stderr, got %v", err)
	}
}
