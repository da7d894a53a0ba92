package compose

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/forPelevin/reelforge/internal/domain/timing"
	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/types"
)

func testVisualOptions() VisualOptions {
	return VisualOptions{Width: 1080, Height: 1920, FrameRate: 24, MaxZoom: 1.15}
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func plannedAssets(t *testing.T, paths []string, total float64) []Asset {
	t.Helper()
	plans, err := timing.Plan(total, len(paths), 0.5, 24)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	assets := make([]Asset, len(paths))
	for i, p := range paths {
		assets[i] = Asset{SceneID: i + 1, Path: p}
	}
	out, err := WithPlans(assets, plans)
	if err != nil {
		t.Fatalf("with plans: %v", err)
	}
	return out
}

func TestBuildVisual_ThreeStillsCrossfadeOffsets(t *testing.T) {
	dir := t.TempDir()
	paths := []string{touch(t, dir, "scene_1.png"), touch(t, dir, "scene_2.png"), touch(t, dir, "scene_3.png")}
	in := NewInputs()
	g, err := BuildVisual(in, plannedAssets(t, paths, 30), testVisualOptions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if in.Len() != 3 {
		t.Fatalf("expected 3 inputs, got %d", in.Len())
	}
	if g.Out != "[vis]" {
		t.Fatalf("unexpected out label %q", g.Out)
	}
	if len(g.Chains) != 5 {
		t.Fatalf("expected 3 asset chains + 2 transitions, got %d:\n%s", len(g.Chains), g)
	}
	if !strings.HasPrefix(g.Chains[0], "[0:v]format=yuv420p,") || !strings.HasSuffix(g.Chains[0], "[v0]") {
		t.Fatalf("unexpected first chain: %s", g.Chains[0])
	}
	if !strings.Contains(g.Chains[0], ":d=252:") || !strings.Contains(g.Chains[2], ":d=240:") {
		t.Fatalf("frame counts not applied:\n%s", g)
	}
	if !strings.Contains(g.Chains[0], "z='1+0.150000*(1-pow(1-min(on/251,1),3))'") {
		t.Fatalf("missing eased zoom expression: %s", g.Chains[0])
	}
	if !strings.Contains(g.Chains[0], "trim=duration=10.500") || !strings.Contains(g.Chains[2], "trim=duration=10.000") {
		t.Fatalf("durations not applied:\n%s", g)
	}
	want3 := "[v0][v1]xfade=transition=fade:duration=0.500:offset=10.000[x1]"
	want4 := "[x1][v2]xfade=transition=fade:duration=0.500:offset=20.000[vis]"
	if g.Chains[3] != want3 || g.Chains[4] != want4 {
		t.Fatalf("unexpected transitions:\n%s\n%s", g.Chains[3], g.Chains[4])
	}
}

func TestBuildVisual_SingleAssetPassThrough(t *testing.T) {
	dir := t.TempDir()
	in := NewInputs()
	g, err := BuildVisual(in, plannedAssets(t, []string{touch(t, dir, "only.jpg")}, 12), testVisualOptions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(g.String(), "xfade") {
		t.Fatalf("single asset should not cross-fade:\n%s", g)
	}
	if last := g.Chains[len(g.Chains)-1]; last != "[v0]null[vis]" {
		t.Fatalf("unexpected pass-through: %s", last)
	}
}

func TestBuildVisual_ClipIsPaddedAndTrimmed(t *testing.T) {
	dir := t.TempDir()
	in := NewInputs()
	g, err := BuildVisual(in, plannedAssets(t, []string{touch(t, dir, "scene_1.mp4"), touch(t, dir, "scene_2.png")}, 8), testVisualOptions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	clip := g.Chains[0]
	for _, want := range []string{"fps=24", "tpad=stop_mode=clone:stop_duration=4.500", "trim=duration=4.500", ":d=1:"} {
		if !strings.Contains(clip, want) {
			t.Fatalf("clip chain missing %q: %s", want, clip)
		}
	}
	if strings.Index(clip, "trim=") > strings.Index(clip, "zoompan=") {
		t.Fatalf("clip must be trimmed before panning: %s", clip)
	}
}

func TestBuildVisual_Deterministic(t *testing.T) {
	dir := t.TempDir()
	paths := []string{touch(t, dir, "a.png"), touch(t, dir, "b.mp4"), touch(t, dir, "c.png"), touch(t, dir, "d.png")}
	build := func() string {
		in := NewInputs()
		g, err := BuildVisual(in, plannedAssets(t, paths, 21.337), testVisualOptions())
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return strings.Join(in.Args(), " ") + "|" + g.String()
	}
	if a, b := build(), build(); a != b {
		t.Fatalf("graph differs between runs:\n%s\n%s", a, b)
	}
}

func TestBuildVisual_MissingAsset(t *testing.T) {
	dir := t.TempDir()
	paths := []string{touch(t, dir, "a.png"), filepath.Join(dir, "missing.png")}
	_, err := BuildVisual(NewInputs(), plannedAssets(t, paths, 10), testVisualOptions())
	if !errors.Is(err, faults.ErrAssetMissing) {
		t.Fatalf("expected AssetMissing, got %v", err)
	}
}

func TestBuildVisual_InvalidOptions(t *testing.T) {
	dir := t.TempDir()
	assets := plannedAssets(t, []string{touch(t, dir, "a.png")}, 10)
	for _, opts := range []VisualOptions{
		{Width: 0, Height: 1920, FrameRate: 24, MaxZoom: 1.1},
		{Width: 1081, Height: 1920, FrameRate: 24, MaxZoom: 1.1},
		{Width: 1080, Height: 1920, FrameRate: 0, MaxZoom: 1.1},
		{Width: 1080, Height: 1920, FrameRate: 24, MaxZoom: 0.9},
	} {
		if _, err := BuildVisual(NewInputs(), assets, opts); !errors.Is(err, faults.ErrInvalidInput) {
			t.Fatalf("opts %+v: expected InvalidInput, got %v", opts, err)
		}
	}
}

func TestValidAssets_SkipsMissingAndOrdersByID(t *testing.T) {
	dir := t.TempDir()
	img2 := touch(t, dir, "scene_2.png")
	img3 := touch(t, dir, "scene_3.png")
	scenes := []types.Scene{
		{ID: 3, ImagePath: img3, VideoPath: filepath.Join(dir, "gone.mp4")},
		{ID: 1, ImagePath: filepath.Join(dir, "scene_1.png")},
		{ID: 2, ImagePath: img2},
		{ID: 4},
	}
	assets, err := ValidAssets(scenes, nil)
	if err != nil {
		t.Fatalf("valid assets: %v", err)
	}
	got := []Asset{{SceneID: 2, Path: img2}, {SceneID: 3, Path: img3}}
	if !reflect.DeepEqual(assets, got) {
		t.Fatalf("assets = %+v, want %+v", assets, got)
	}
}

func TestValidAssets_NoneUsable(t *testing.T) {
	_, err := ValidAssets([]types.Scene{{ID: 1, ImagePath: "/nope.png"}}, nil)
	if !errors.Is(err, faults.ErrAssetMissing) {
		t.Fatalf("expected AssetMissing, got %v", err)
	}
}

func TestBuildAudio_VoiceOnlyHasNoMix(t *testing.T) {
	dir := t.TempDir()
	in := NewInputs()
	g, err := BuildAudio(in, touch(t, dir, "voiceover.mp3"), "", 0.2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(g.Chains) != 1 {
		t.Fatalf("expected single reformat chain, got %v", g.Chains)
	}
	if strings.Contains(g.String(), "amix") {
		t.Fatalf("unexpected mix step: %s", g)
	}
	if g.String() != "[0:a]"+canonicalAudio+"[aout]" {
		t.Fatalf("unexpected graph: %s", g)
	}
	if in.Len() != 1 {
		t.Fatalf("expected 1 input, got %d", in.Len())
	}
}

func TestBuildAudio_MusicIsLoopedAttenuatedAndMixed(t *testing.T) {
	dir := t.TempDir()
	in := NewInputs()
	in.Add(touch(t, dir, "scene.png"))
	voice := touch(t, dir, "voiceover.mp3")
	music := touch(t, dir, "background_music.mp3")
	g, err := BuildAudio(in, voice, music, 0.15)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wantArgs := []string{"-i", filepath.Join(dir, "scene.png"), "-i", voice, "-stream_loop", "-1", "-i", music}
	if !reflect.DeepEqual(in.Args(), wantArgs) {
		t.Fatalf("args = %v, want %v", in.Args(), wantArgs)
	}
	want := []string{
		"[1:a]" + canonicalAudio + "[voice]",
		"[2:a]" + canonicalAudio + ",volume=0.150[music]",
		"[voice][music]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
	}
	if !reflect.DeepEqual(g.Chains, want) {
		t.Fatalf("chains = %q, want %q", g.Chains, want)
	}
}

func TestBuildAudio_Errors(t *testing.T) {
	dir := t.TempDir()
	voice := touch(t, dir, "voiceover.mp3")
	tests := []struct {
		name  string
		voice string
		music string
		gain  float64
		want  error
	}{
		{name: "missing voice", voice: filepath.Join(dir, "none.mp3"), want: faults.ErrAssetMissing},
		{name: "empty voice", voice: "", want: faults.ErrAssetMissing},
		{name: "gain above one", voice: voice, gain: 1.5, want: faults.ErrInvalidInput},
		{name: "negative gain", voice: voice, gain: -0.1, want: faults.ErrInvalidInput},
		{name: "missing music", voice: voice, music: filepath.Join(dir, "m.mp3"), gain: 0.5, want: faults.ErrAssetMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAudio(NewInputs(), tt.voice, tt.music, tt.gain)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestInputs_HandlesMatchRegistrationOrder(t *testing.T) {
	in := NewInputs()
	a := in.Add("a.png")
	b := in.Add("b.mp3", "-stream_loop", "-1")
	if a.Video() != "[0:v]" || b.Audio() != "[1:a]" {
		t.Fatalf("unexpected labels %s %s", a.Video(), b.Audio())
	}
	if !in.Owns(a) || NewInputs().Owns(a) || (InputHandle{}).Valid() {
		t.Fatalf("handle ownership not tracked")
	}
}
