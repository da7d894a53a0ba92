package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/reelforge/internal/domain/timing"
	"github.com/forPelevin/reelforge/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Binaries lists the executables this adapter shells out to.
func (a *Adapter) Binaries() []string { return []string{a.ffmpeg, a.ffprobe} }

// RunFFmpeg runs ffmpeg with args and returns whatever it wrote to stderr.
func (a *Adapter) RunFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// ExtractAudioMono16k converts any audio file into the 16 kHz mono WAV
// whisper.cpp expects.
func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	stderr, err := a.RunFFmpeg(ctx, []string{
		"-y", "-v", "error",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	})
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(stderr))
	}
	return nil
}

// EncodeMP3 re-encodes in as a stereo 44.1 kHz MP3.
func (a *Adapter) EncodeMP3(ctx context.Context, in, out string) error {
	stderr, err := a.RunFFmpeg(ctx, []string{
		"-y", "-v", "error",
		"-i", in,
		"-vn",
		"-ac", "2",
		"-ar", "44100",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		out,
	})
	if err != nil {
		return fmt.Errorf("ffmpeg encode mp3: %w\n%s", err, string(stderr))
	}
	return nil
}

// GenerateImage draws a placeholder card carrying the scene prompt. It is
// the image source used when no generation service is configured.
func (a *Adapter) GenerateImage(ctx context.Context, p ports.ScenePrompt, outPath string) error {
	textFile := filepath.Join(filepath.Dir(outPath), fmt.Sprintf(".scene_%d.txt", p.SceneID))
	if err := os.WriteFile(textFile, []byte(wrapText(p.Prompt, 30)), 0o644); err != nil {
		return fmt.Errorf("ffmpeg placeholder: %w", err)
	}
	defer os.Remove(textFile)

	base := []string{
		"-y", "-v", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x2C3E50:s=%dx%d", p.Width, p.Height),
		"-frames:v", "1",
	}
	withText := append(append([]string(nil), base...),
		"-vf", "drawtext=textfile="+escapeFilterPath(textFile)+":fontcolor=white:fontsize=40:line_spacing=10:x=50:y=(h-text_h)/2",
		outPath,
	)
	stderr, err := a.RunFFmpeg(ctx, withText)
	if err == nil {
		return nil
	}
	// Builds without libfreetype have no drawtext; a plain card still works.
	if !strings.Contains(string(stderr), "drawtext") {
		return fmt.Errorf("ffmpeg placeholder: %w\n%s", err, string(stderr))
	}
	if stderr, err := a.RunFFmpeg(ctx, append(base, outPath)); err != nil {
		return fmt.Errorf("ffmpeg placeholder: %w\n%s", err, string(stderr))
	}
	return nil
}

// KenBurns animates a still into a clip with a slow linear zoom.
type KenBurns struct {
	a *Adapter
}

func NewKenBurns(a *Adapter) *KenBurns { return &KenBurns{a: a} }

func (k *KenBurns) Animate(ctx context.Context, c ports.SceneClip, outPath string) (bool, error) {
	if _, err := os.Stat(c.ImagePath); err != nil {
		return false, fmt.Errorf("ffmpeg kenburns: %w", err)
	}
	frames := timing.Frames(c.Seconds, c.FrameRate)
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
		"zoompan=z='min(zoom+0.0015,1.5)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d,format=yuv420p",
		c.Width*2, c.Height*2, c.Width*2, c.Height*2, frames, c.Width, c.Height, c.FrameRate)
	args := []string{
		"-y", "-v", "error",
		"-i", c.ImagePath,
		"-vf", vf,
		"-frames:v", strconv.Itoa(frames),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		outPath,
	}
	stderr, err := k.a.RunFFmpeg(ctx, args)
	if err != nil {
		return false, fmt.Errorf("ffmpeg kenburns: %w\n%s", err, string(stderr))
	}
	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		return false, fmt.Errorf("ffmpeg kenburns: no clip written to %s", outPath)
	}
	return true, nil
}

// Silence writes a silent stereo track, for runs that want a music bed
// without any music.
type Silence struct {
	a *Adapter
}

func NewSilence(a *Adapter) *Silence { return &Silence{a: a} }

func (s *Silence) SelectMusic(ctx context.Context, req ports.MusicRequest, outPath string) (bool, error) {
	seconds := req.Duration
	if seconds <= 0 {
		seconds = 10
	}
	args := []string{
		"-y", "-v", "error",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-t", fmtSeconds(time.Duration(seconds * float64(time.Second))),
		"-c:a", "libmp3lame",
		"-q:a", "9",
		outPath,
	}
	if stderr, err := s.a.RunFFmpeg(ctx, args); err != nil {
		return false, fmt.Errorf("ffmpeg silence: %w\n%s", err, string(stderr))
	}
	return true, nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}

func wrapText(s string, width int) string {
	var lines []string
	var cur []string
	n := 0
	for _, w := range strings.Fields(s) {
		wl := len([]rune(w))
		if n > 0 && n+1+wl > width {
			lines = append(lines, strings.Join(cur, " "))
			cur, n = nil, 0
		}
		if n > 0 {
			n++
		}
		cur = append(cur, w)
		n += wl
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return strings.Join(lines, "\n")
}
