// Package catalog picks a background track from a local music folder.
//
// The folder holds audio files plus a catalog.json mapping each file name
// to a free-text description:
//
//	{"calm_piano.mp3": "soft piano, melancholic", "drums.mp3": "epic percussion"}
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/ports"
)

const FileName = "catalog.json"

type Entry struct {
	File        string
	Description string
}

// Source implements ports.MusicSource.
type Source struct {
	dir     string
	chooser ports.Chooser
	log     *slog.Logger
}

// New returns a source reading dir. chooser may be nil, in which case the
// first entry in file-name order is used.
func New(dir string, chooser ports.Chooser, log *slog.Logger) *Source {
	if log == nil {
		log = logging.NewNop()
	}
	return &Source{dir: dir, chooser: chooser, log: log.With("component", "catalog")}
}

// Load reads catalog.json from dir, sorted by file name.
func Load(dir string) ([]Entry, error) {
	const op = "catalog.load"
	path := filepath.Join(dir, FileName)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.AssetMissing(op, path, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, faults.InvalidInput(op, "parse %s: %v", path, err)
	}
	entries := make([]Entry, 0, len(raw))
	for file, desc := range raw {
		file = strings.TrimSpace(file)
		if file == "" || filepath.Base(file) != file {
			continue
		}
		entries = append(entries, Entry{File: file, Description: strings.TrimSpace(desc)})
	}
	if len(entries) == 0 {
		return nil, faults.InvalidInput(op, "%s lists no tracks", path)
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.File, b.File) })
	return entries, nil
}

func (s *Source) SelectMusic(ctx context.Context, req ports.MusicRequest, outPath string) (bool, error) {
	const op = "catalog.select_music"
	entries, err := Load(s.dir)
	if err != nil {
		return false, err
	}

	pick := 0
	if s.chooser != nil && len(entries) > 1 {
		options := make([]string, len(entries))
		for i, e := range entries {
			options[i] = e.File + ": " + e.Description
		}
		idx, err := s.chooser.Choose(ctx, brief(req), options)
		switch {
		case err != nil:
			s.log.Warn("music choice failed, using first track", "error", err)
		case idx < 0 || idx >= len(entries):
			s.log.Warn("music choice out of range, using first track", "index", idx)
		default:
			pick = idx
		}
	}

	src := filepath.Join(s.dir, entries[pick].File)
	if _, err := os.Stat(src); err != nil {
		return false, faults.AssetMissing(op, src, err)
	}
	if err := copyFile(src, outPath); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("music selected", "file", entries[pick].File)
	return true, nil
}

func brief(req ports.MusicRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Background music for a short video on the theme %q.", req.Theme)
	if a := strings.TrimSpace(req.Angle); a != "" {
		fmt.Fprintf(&b, " Tone: %s.", a)
	}
	if req.Duration > 0 {
		fmt.Fprintf(&b, " The narration lasts about %.0f seconds.", req.Duration)
	}
	return b.String()
}

func copyFile(sourcePath, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	dest, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}
