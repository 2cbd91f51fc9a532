package judge

import (
	"github.com/go-gl/mathgl/mgl64"

	"osusim/curves"
	"osusim/dotosu"
)

// Ticks closer than this to a span end are dropped.
const tickEndMargin = 10.0

// followRadiusScale times the object radius is how far the cursor may stray
// from the ball while a slider is held.
const followRadiusScale = 2.4

type checkpoint struct {
	time    float64
	pos     mgl64.Vec2
	reached bool
}

// sliderTrack is the lazily built geometry of one slider.
type sliderTrack struct {
	path        *curves.Path
	shift       mgl64.Vec2 // stacked minus base position
	checkpoints []checkpoint
	next        int
}

func newSliderTrack(o *dotosu.HitObject, tickRate float64) *sliderTrack {
	st := &sliderTrack{
		path:  o.Path(),
		shift: o.StackedPos().Sub(o.Pos),
	}
	st.checkpoints = sliderCheckpoints(o, tickRate, st.ballAt)
	return st
}

// ballAt is the slider ball position at time t, clamped to the slider's
// lifetime.
func (st *sliderTrack) ballAt(o *dotosu.HitObject, t float64) mgl64.Vec2 {
	sp := o.Slider
	progress := 1.0
	if sp.Duration > 0 {
		progress = (t - o.StartTime()) / sp.Duration
	}
	return st.path.PositionAtProgress(progress, sp.Slides).Add(st.shift)
}

// sliderCheckpoints lists ticks, repeats and the end in time order.
func sliderCheckpoints(o *dotosu.HitObject, tickRate float64, ball func(*dotosu.HitObject, float64) mgl64.Vec2) []checkpoint {
	sp := o.Slider
	start := o.StartTime()
	span := sp.SpanDuration

	var offsets []float64
	if tickRate > 0 && sp.BeatLength > 0 {
		interval := sp.BeatLength / tickRate
		for off := interval; off < span-tickEndMargin; off += interval {
			offsets = append(offsets, off)
		}
	}

	cps := make([]checkpoint, 0, (len(offsets)+1)*sp.Slides)
	add := func(t float64) {
		cps = append(cps, checkpoint{time: t, pos: ball(o, t)})
	}
	for i := 0; i < sp.Slides; i++ {
		spanStart := start + float64(i)*span
		if i%2 == 0 {
			for _, off := range offsets {
				add(spanStart + off)
			}
		} else {
			// Reverse spans meet the same ticks from the other side.
			for j := len(offsets) - 1; j >= 0; j-- {
				add(spanStart + span - offsets[j])
			}
		}
		if i < sp.Slides-1 {
			add(spanStart + span)
		}
	}
	add(start + sp.Duration)
	return cps
}
