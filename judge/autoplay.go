package judge

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"osusim/difficulty"
	"osusim/dotosu"
)

const (
	autoplayFrame   = 4.0  // ms between generated moves
	autoplayTap     = 20.0 // longest time a circle key stays down
	autoplaySpinRad = 50.0
)

// Autoplay produces an input stream that hits every object on time, follows
// every slider ball and spins every spinner fast enough to clear it.
func Autoplay(objects []dotosu.HitObject, c difficulty.Constants) []Input {
	var inputs []Input
	for i := range objects {
		o := &objects[i]
		next := math.Inf(1)
		if i+1 < len(objects) {
			next = objects[i+1].StartTime()
		}

		switch o.Kind {
		case dotosu.KindCircle:
			t := o.StartTime()
			pos := o.StackedPos()
			hold := min(autoplayTap, (next-t)/2)
			inputs = append(inputs,
				Input{Kind: Press, Pos: pos, Time: t},
				Input{Kind: Release, Pos: pos, Time: t + hold},
			)

		case dotosu.KindSlider:
			inputs = append(inputs, autoplaySlider(o)...)

		case dotosu.KindSpinner:
			inputs = append(inputs, autoplaySpinner(o, c)...)
		}
	}
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].Time < inputs[j].Time })
	return inputs
}

func autoplaySlider(o *dotosu.HitObject) []Input {
	st := &sliderTrack{path: o.Path(), shift: o.StackedPos().Sub(o.Pos)}
	start, end := o.StartTime(), o.EndTimeMs()

	inputs := []Input{{Kind: Press, Pos: o.StackedPos(), Time: start}}
	for t := start + autoplayFrame; t < end; t += autoplayFrame {
		inputs = append(inputs, Input{Kind: Move, Pos: st.ballAt(o, t), Time: t})
	}
	return append(inputs, Input{Kind: Release, Pos: st.ballAt(o, end), Time: end})
}

func autoplaySpinner(o *dotosu.HitObject, c difficulty.Constants) []Input {
	start, end := o.StartTime(), o.EndTimeMs()
	duration := end - start
	if duration <= 0 {
		return nil
	}
	// Half again the required turns, in at least eight frames.
	frame := min(autoplayFrame, duration/8)
	omega := 1.5 * RequiredRotations(o, c) * 2 * math.Pi / duration

	at := func(t float64) mgl64.Vec2 {
		a := (t - start) * omega
		return SpinnerCenter.Add(mgl64.Vec2{math.Cos(a), math.Sin(a)}.Mul(autoplaySpinRad))
	}
	inputs := []Input{{Kind: Press, Pos: at(start), Time: start}}
	for t := start + frame; t < end; t += frame {
		inputs = append(inputs, Input{Kind: Move, Pos: at(t), Time: t})
	}
	return append(inputs, Input{Kind: Release, Pos: at(end), Time: end})
}
