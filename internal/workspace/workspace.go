// Package workspace owns the on-disk layout of projects:
//
//	<root>/<project_id>/
//	  manifest.json
//	  audio/voiceover.mp3, audio/timestamps.json, audio/background_music.mp3
//	  images/scene_<id>.png
//	  videos/scene_<id>.mp4
//	  subtitles.ass
//	  final_video.mp4
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/gofrs/flock"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/types"
)

const (
	ManifestFile   = "manifest.json"
	LockFile       = ".lock"
	AudioDir       = "audio"
	ImagesDir      = "images"
	VideosDir      = "videos"
	VoiceFile      = "voiceover.mp3"
	TimestampsFile = "timestamps.json"
	MusicFile      = "background_music.mp3"
	SubtitlesFile  = "subtitles.ass"
	FinalVideoFile = "final_video.mp4"

	projectPrefix = "project_"
)

// ErrLocked is returned when another run holds the project.
var ErrLocked = errors.New("project is locked by another run")

type Workspace struct {
	root string
}

func New(root string) *Workspace {
	if root == "" {
		root = "workspace"
	}
	return &Workspace{root: root}
}

func (w *Workspace) Root() string { return w.root }

// NextProjectID returns project_N where N is one more than the highest
// existing project number.
func (w *Workspace) NextProjectID() (string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read workspace: %w", err)
	}
	maxN := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), projectPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), projectPrefix))
		if err != nil || n <= 0 {
			continue
		}
		maxN = max(maxN, n)
	}
	return projectPrefix + strconv.Itoa(maxN+1), nil
}

// Projects lists project directories that hold a manifest, sorted by name.
func (w *Workspace) Projects() ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(w.root, e.Name(), ManifestFile)); err == nil {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// NormalizeProjectID turns a caller supplied id into a single safe path
// segment.
func NormalizeProjectID(s string) (string, error) {
	id := normalizePathSegment(s)
	if id == "" {
		return "", faults.InvalidInput("workspace.project_id", "project id %q has no usable characters", s)
	}
	return id, nil
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// Project is an opened, exclusively locked project directory.
type Project struct {
	ID  string
	Dir string

	lock *flock.Flock
}

// Open creates the project layout if needed and takes the project lock.
// A second Open of the same project fails with ErrLocked until Close.
func (w *Workspace) Open(id string) (*Project, error) {
	id, err := NormalizeProjectID(id)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(w.root, id)
	for _, sub := range []string{AudioDir, ImagesDir, VideosDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create project dir: %w", err)
		}
	}

	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrLocked)
	}
	return &Project{ID: id, Dir: dir, lock: lock}, nil
}

// Close releases the project lock.
func (p *Project) Close() error {
	if p == nil || p.lock == nil {
		return nil
	}
	return p.lock.Unlock()
}

func (p *Project) ManifestPath() string   { return filepath.Join(p.Dir, ManifestFile) }
func (p *Project) AudioDir() string       { return filepath.Join(p.Dir, AudioDir) }
func (p *Project) VoicePath() string      { return filepath.Join(p.Dir, AudioDir, VoiceFile) }
func (p *Project) TimestampsPath() string { return filepath.Join(p.Dir, AudioDir, TimestampsFile) }
func (p *Project) MusicPath() string      { return filepath.Join(p.Dir, AudioDir, MusicFile) }
func (p *Project) SubtitlesPath() string  { return filepath.Join(p.Dir, SubtitlesFile) }
func (p *Project) FinalVideoPath() string { return filepath.Join(p.Dir, FinalVideoFile) }

func (p *Project) ImagePath(sceneID int, ext string) string {
	if ext == "" {
		ext = ".png"
	}
	return filepath.Join(p.Dir, ImagesDir, fmt.Sprintf("scene_%d%s", sceneID, ext))
}

func (p *Project) VideoPath(sceneID int) string {
	return filepath.Join(p.Dir, VideosDir, fmt.Sprintf("scene_%d.mp4", sceneID))
}

// SaveManifest atomically replaces manifest.json with s.
func (p *Project) SaveManifest(s types.Script) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFileAtomic(p.ManifestPath(), append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (p *Project) LoadManifest() (types.Script, error) {
	return LoadManifest(p.ManifestPath())
}

// LoadManifest reads a manifest without taking the project lock.
func LoadManifest(path string) (types.Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Script{}, faults.AssetMissing("workspace.load_manifest", path, err)
	}
	var s types.Script
	if err := json.Unmarshal(b, &s); err != nil {
		return types.Script{}, faults.InvalidInput("workspace.load_manifest", "parse %s: %v", path, err)
	}
	return s, nil
}

// ManifestPath returns the manifest location for a project id without
// opening it.
func (w *Workspace) ManifestPath(id string) (string, error) {
	id, err := NormalizeProjectID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.root, id, ManifestFile), nil
}

// WriteTimestamps stores word timings rounded to the millisecond.
func WriteTimestamps(path string, words []types.WordTiming) error {
	out := make([]types.WordTiming, len(words))
	for i, w := range words {
		out[i] = types.WordTiming{Word: w.Word, Start: round3(w.Start), End: round3(w.End)}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal timestamps: %w", err)
	}
	if err := writeFileAtomic(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write timestamps: %w", err)
	}
	return nil
}

func ReadTimestamps(path string) ([]types.WordTiming, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.AssetMissing("workspace.read_timestamps", path, err)
	}
	var words []types.WordTiming
	if err := json.Unmarshal(b, &words); err != nil {
		return nil, faults.InvalidInput("workspace.read_timestamps", "parse %s: %v", path, err)
	}
	return words, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
