package compose

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/forPelevin/reelforge/internal/domain/timing"
	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/types"
	"github.com/samber/lo"
)

// Asset is one scene's source file with its display window.
type Asset struct {
	SceneID int
	Path    string
	Plan    timing.AssetPlan
}

type VisualOptions struct {
	Width      int
	Height     int
	FrameRate  int
	MaxZoom    float64
	Transition string // xfade transition name, "fade" when empty
}

func (o VisualOptions) validate() error {
	const op = "visual track"
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return faults.InvalidInput(op, "output size must be positive, got %dx%d", o.Width, o.Height)
	case o.Width%2 != 0 || o.Height%2 != 0:
		return faults.InvalidInput(op, "output size must be even, got %dx%d", o.Width, o.Height)
	case o.FrameRate <= 0:
		return faults.InvalidInput(op, "frame rate must be > 0, got %d", o.FrameRate)
	case o.MaxZoom < 1 || o.MaxZoom > 2:
		return faults.InvalidInput(op, "max zoom must be within [1,2], got %v", o.MaxZoom)
	}
	return nil
}

var stillExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
	".bmp":  {},
}

// IsStill reports whether path is a single image rather than a clip.
func IsStill(path string) bool {
	_, ok := stillExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// BuildVisual registers every asset with in and returns the graph that
// pans each one and cross-fades them into a single stream labelled [vis].
func BuildVisual(in *Inputs, assets []Asset, opts VisualOptions) (Graph, error) {
	if len(assets) == 0 {
		return Graph{}, faults.InvalidInput("visual track", "no assets")
	}
	if err := opts.validate(); err != nil {
		return Graph{}, err
	}
	for _, a := range assets {
		if _, err := os.Stat(a.Path); err != nil {
			return Graph{}, faults.AssetMissing("visual track", a.Path, err)
		}
	}
	transition := opts.Transition
	if transition == "" {
		transition = "fade"
	}

	g := Graph{Out: label("vis")}
	for i, a := range assets {
		h := in.Add(a.Path)
		g.Chains = append(g.Chains, assetChain(h, a, opts, label(fmt.Sprintf("v%d", i))))
	}

	if len(assets) == 1 {
		g.Chains = append(g.Chains, "[v0]null"+g.Out)
		return g, nil
	}

	prev := "[v0]"
	for i := 1; i < len(assets); i++ {
		out := label(fmt.Sprintf("x%d", i))
		if i == len(assets)-1 {
			out = g.Out
		}
		p := assets[i-1].Plan
		g.Chains = append(g.Chains, fmt.Sprintf("%s[v%d]xfade=transition=%s:duration=%.3f:offset=%.3f%s",
			prev, i, transition, p.Overlap, p.Offset, out))
		prev = out
	}
	return g, nil
}

func assetChain(h InputHandle, a Asset, opts VisualOptions, out string) string {
	// Work at twice the output size so zoompan's integer crop stays smooth.
	w2, h2 := opts.Width*2, opts.Height*2
	frames := a.Plan.Frames
	prep := fmt.Sprintf("format=yuv420p,scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1",
		w2, h2, w2, h2)
	window := fmt.Sprintf("trim=duration=%.3f,setpts=PTS-STARTPTS", a.Plan.Duration)

	if IsStill(a.Path) {
		return h.Video() + strings.Join([]string{
			prep,
			zoomPan(frames, frames, opts),
			window,
		}, ",") + out
	}
	return h.Video() + strings.Join([]string{
		prep,
		fmt.Sprintf("fps=%d", opts.FrameRate),
		fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%.3f", a.Plan.Duration),
		window,
		zoomPan(1, frames, opts),
	}, ",") + out
}

// zoomPan zooms from 1.0 to opts.MaxZoom with a cubic ease-out over frames
// output frames, centered on the picture.
func zoomPan(perInput, frames int, opts VisualOptions) string {
	span := max(frames-1, 1)
	return fmt.Sprintf("zoompan=z='1+%.6f*(1-pow(1-min(on/%d,1),3))':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d",
		opts.MaxZoom-1, span, perInput, opts.Width, opts.Height, opts.FrameRate)
}

// ValidAssets picks each scene's asset in id order, skipping scenes whose
// file is absent. It fails only when nothing usable remains.
func ValidAssets(scenes []types.Scene, log *slog.Logger) ([]Asset, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ordered := slices.Clone(scenes)
	slices.SortStableFunc(ordered, func(a, b types.Scene) int { return cmp.Compare(a.ID, b.ID) })

	var out []Asset
	for _, sc := range ordered {
		p := sc.AssetPath()
		if p == "" {
			log.Warn("scene has no asset, skipping", "scene_id", sc.ID)
			continue
		}
		if _, err := os.Stat(p); err != nil {
			if sc.VideoPath != "" && sc.ImagePath != "" {
				if _, ierr := os.Stat(sc.ImagePath); ierr == nil {
					log.Warn("scene clip missing, using still", "scene_id", sc.ID, "path", p)
					out = append(out, Asset{SceneID: sc.ID, Path: sc.ImagePath})
					continue
				}
			}
			log.Warn("scene asset missing, skipping", "scene_id", sc.ID, "path", p)
			continue
		}
		out = append(out, Asset{SceneID: sc.ID, Path: p})
	}
	if len(out) == 0 {
		return nil, faults.AssetMissing("visual track", "", fmt.Errorf("none of %d scenes has a usable asset", len(scenes)))
	}
	return out, nil
}

// WithPlans pairs assets with their plan entries by position.
func WithPlans(assets []Asset, plans []timing.AssetPlan) ([]Asset, error) {
	if len(assets) != len(plans) {
		return nil, faults.InvalidInput("visual track", "%d assets but %d plan entries", len(assets), len(plans))
	}
	return lo.Map(assets, func(a Asset, i int) Asset {
		a.Plan = plans[i]
		return a
	}), nil
}
