package timing

import (
	"math"

	"github.com/forPelevin/reelforge/internal/faults"
)

// AssetPlan is the display window of one visual asset.
type AssetPlan struct {
	Index    int
	Base     float64 // share of the audio timeline, seconds
	Overlap  float64 // extra time consumed by the outgoing cross-fade
	Duration float64 // Base + Overlap
	Frames   int
	// Offset is where the cross-fade into the next asset starts on the
	// output timeline. Zero for the last asset.
	Offset float64
}

// Plan splits total evenly across count assets. Every asset except the last
// is stretched by overlap so the cross-fades eat into the following window
// and the assembled track still lasts exactly total seconds.
func Plan(total float64, count int, overlap float64, fps int) ([]AssetPlan, error) {
	const op = "timing plan"
	switch {
	case count <= 0:
		return nil, faults.InvalidInput(op, "asset count must be > 0, got %d", count)
	case total <= 0 || math.IsNaN(total) || math.IsInf(total, 0):
		return nil, faults.InvalidInput(op, "total duration must be > 0, got %v", total)
	case overlap < 0 || math.IsNaN(overlap):
		return nil, faults.InvalidInput(op, "transition overlap must be >= 0, got %v", overlap)
	case fps <= 0:
		return nil, faults.InvalidInput(op, "frame rate must be > 0, got %d", fps)
	}

	base := total / float64(count)
	if count > 1 && overlap >= base {
		return nil, faults.InvalidInput(op, "transition overlap %.3fs must be shorter than per-asset duration %.3fs", overlap, base)
	}

	out := make([]AssetPlan, count)
	for i := range out {
		p := AssetPlan{Index: i, Base: base}
		if i < count-1 {
			p.Overlap = overlap
			p.Offset = float64(i+1) * base
		}
		p.Duration = p.Base + p.Overlap
		p.Frames = Frames(p.Duration, fps)
		out[i] = p
	}
	return out, nil
}

// Frames converts seconds to a frame count, never less than one.
func Frames(seconds float64, fps int) int {
	n := int(math.Round(seconds * float64(fps)))
	if n < 1 {
		return 1
	}
	return n
}

// Total sums the base windows of a plan.
func Total(plans []AssetPlan) float64 {
	var sum float64
	for _, p := range plans {
		sum += p.Base
	}
	return sum
}
