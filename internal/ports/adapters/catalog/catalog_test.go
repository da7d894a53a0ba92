package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/ports"
)

type fakeChooser struct {
	idx     int
	err     error
	options []string
}

func (f *fakeChooser) Choose(_ context.Context, _ string, options []string) (int, error) {
	f.options = options
	return f.idx, f.err
}

func writeCatalog(t *testing.T, files map[string]string, catalog string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if catalog != "" {
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(catalog), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

const twoTracks = `{"drums.mp3": "epic percussion", "calm.mp3": "soft piano"}`

func TestSelectMusic_UsesChooser(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"drums.mp3": "DRUMS", "calm.mp3": "CALM"}, twoTracks)
	ch := &fakeChooser{idx: 1}
	out := filepath.Join(t.TempDir(), "audio", "background_music.mp3")

	ok, err := New(dir, ch, nil).SelectMusic(context.Background(), ports.MusicRequest{Theme: "orage"}, out)
	if err != nil || !ok {
		t.Fatalf("select: ok=%v err=%v", ok, err)
	}
	if len(ch.options) != 2 || ch.options[0] != "calm.mp3: soft piano" {
		t.Fatalf("options should be sorted by file: %v", ch.options)
	}
	if b, _ := os.ReadFile(out); string(b) != "DRUMS" {
		t.Fatalf("expected drums track, got %q", b)
	}
}

func TestSelectMusic_FallsBackToFirstEntry(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"drums.mp3": "DRUMS", "calm.mp3": "CALM"}, twoTracks)
	for name, ch := range map[string]ports.Chooser{
		"nil chooser":  nil,
		"chooser fail": &fakeChooser{err: errors.New("quota")},
		"out of range": &fakeChooser{idx: 9},
	} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "bg.mp3")
			if ok, err := New(dir, ch, nil).SelectMusic(context.Background(), ports.MusicRequest{}, out); err != nil || !ok {
				t.Fatalf("select: ok=%v err=%v", ok, err)
			}
			if b, _ := os.ReadFile(out); string(b) != "CALM" {
				t.Fatalf("expected first track, got %q", b)
			}
		})
	}
}

func TestSelectMusic_MissingCatalog(t *testing.T) {
	ok, err := New(t.TempDir(), nil, nil).SelectMusic(context.Background(), ports.MusicRequest{}, filepath.Join(t.TempDir(), "bg.mp3"))
	if ok || !errors.Is(err, faults.ErrAssetMissing) {
		t.Fatalf("expected asset missing, got ok=%v err=%v", ok, err)
	}
}

func TestSelectMusic_ListedFileMissing(t *testing.T) {
	dir := writeCatalog(t, nil, `{"ghost.mp3": "not on disk"}`)
	ok, err := New(dir, nil, nil).SelectMusic(context.Background(), ports.MusicRequest{}, filepath.Join(t.TempDir(), "bg.mp3"))
	if ok || !errors.Is(err, faults.ErrAssetMissing) {
		t.Fatalf("expected asset missing, got ok=%v err=%v", ok, err)
	}
}

func TestLoad_RejectsEmptyAndPathEntries(t *testing.T) {
	dir := writeCatalog(t, nil, `{"../escape.mp3": "nope", " ": "blank"}`)
	if _, err := Load(dir); !errors.Is(err, faults.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
