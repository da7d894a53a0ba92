package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/reelforge/internal/faults"
)

// Runner executes one ffmpeg invocation and returns its stderr.
type Runner interface {
	RunFFmpeg(ctx context.Context, args []string) ([]byte, error)
}

// RenderJob is everything one render needs. Visual and Audio must have been
// built against Inputs.
type RenderJob struct {
	Inputs    *Inputs
	Visual    Graph
	Audio     Graph
	Subtitles string // ASS file burned in as the last video step; optional
	FrameRate int
	Preset    string
	CRF       int
}

func (j RenderJob) validate() error {
	const op = "render"
	switch {
	case j.Inputs == nil || j.Inputs.Len() == 0:
		return faults.InvalidInput(op, "no inputs registered")
	case j.Visual.Out == "" || len(j.Visual.Chains) == 0:
		return faults.InvalidInput(op, "visual graph is empty")
	case j.Audio.Out == "" || len(j.Audio.Chains) == 0:
		return faults.InvalidInput(op, "audio graph is empty")
	case j.FrameRate <= 0:
		return faults.InvalidInput(op, "frame rate must be > 0, got %d", j.FrameRate)
	}
	if j.Subtitles != "" {
		if _, err := os.Stat(j.Subtitles); err != nil {
			return faults.AssetMissing(op, j.Subtitles, err)
		}
	}
	return nil
}

// FilterGraph joins the visual chains, the subtitle overlay and the audio
// chains, and returns the labels to map.
func (j RenderJob) FilterGraph() (graph, videoOut, audioOut string) {
	chains := append([]string(nil), j.Visual.Chains...)
	videoOut = j.Visual.Out
	if j.Subtitles != "" {
		videoOut = label("vout")
		chains = append(chains, j.Visual.Out+"ass=filename="+escapeFilterPath(j.Subtitles)+videoOut)
	}
	chains = append(chains, j.Audio.Chains...)
	return strings.Join(chains, ";"), videoOut, j.Audio.Out
}

// Args is the full ffmpeg argument list writing to output.
func (j RenderJob) Args(output string) ([]string, error) {
	if err := j.validate(); err != nil {
		return nil, err
	}
	preset := j.Preset
	if preset == "" {
		preset = "veryfast"
	}
	crf := j.CRF
	if crf <= 0 {
		crf = 20
	}
	graph, vOut, aOut := j.FilterGraph()

	args := []string{"-y", "-hide_banner", "-v", "error"}
	args = append(args, j.Inputs.Args()...)
	args = append(args,
		"-filter_complex", graph,
		"-map", vOut,
		"-map", aOut,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(j.FrameRate),
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	)
	return args, nil
}

// Multiplexer runs a RenderJob and only ever leaves a complete file at the
// requested path.
type Multiplexer struct {
	runner Runner
	log    *slog.Logger
}

func NewMultiplexer(r Runner, log *slog.Logger) *Multiplexer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Multiplexer{runner: r, log: log}
}

var errOutputMissing = errors.New("output missing despite success exit")

func (m *Multiplexer) Render(ctx context.Context, job RenderJob, output string) (string, error) {
	const op = "render"
	partial := partialPath(output)
	args, err := job.Args(partial)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", fmt.Errorf("%s: ensure output dir: %w", op, err)
	}
	_ = os.Remove(partial)

	m.log.Info("rendering", "inputs", job.Inputs.Len(), "output", output)
	stderr, err := m.runner.RunFFmpeg(ctx, args)
	if err != nil {
		_ = os.Remove(partial)
		return "", faults.Render(op, string(stderr), err)
	}

	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(partial)
		return "", faults.Render(op, string(stderr), fmt.Errorf("%w: %s", errOutputMissing, output))
	}
	if err := os.Rename(partial, output); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("%s: finalize output: %w", op, err)
	}
	m.log.Info("render complete", "output", output, "bytes", info.Size())
	return output, nil
}

func partialPath(output string) string {
	dir, base := filepath.Split(output)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".partial"+ext)
}

// escapeFilterPath escapes a path for use as a filter option value inside
// -filter_complex: once for the option parser, then for the graph parser.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, "'", "\\'")
	p = strings.ReplaceAll(p, ":", "\\:")

	var b strings.Builder
	for _, r := range p {
		switch r {
		case '\\', '\'', '[', ']', ',', ';':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
