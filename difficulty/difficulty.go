package difficulty

import "osusim/mutils"

// Settings are the raw [Difficulty] values a chart carries.
type Settings struct {
	CircleSize        float64
	OverallDifficulty float64
	ApproachRate      float64
}

type Mods struct {
	Hardrock bool
	Easy     bool
	Hidden   bool
}

// Constants holds everything derived from Settings once mods are applied.
type Constants struct {
	Mods              Mods
	CircleSize        float64
	ApproachRate      float64
	OverallDifficulty float64
	CircleRadius      float64
	Preempt           float64
	FadeIn            float64
	Windows           HitWindows
	SpinnerRPS        float64
}

func Derive(s Settings, mods Mods) Constants {
	cs := s.CircleSize
	if mods.Hardrock {
		cs = min(cs*1.3, 10)
	}
	if mods.Easy {
		cs = cs / 2
	}

	ar := s.ApproachRate
	if mods.Hardrock {
		ar = min(10, ar*1.4)
	}
	if mods.Easy {
		ar = ar / 2
	}

	od := s.OverallDifficulty
	if mods.Hardrock {
		od = min(10, od*1.4)
	}
	if mods.Easy {
		od = od / 2
	}

	return Constants{
		Mods:              mods,
		CircleSize:        cs,
		ApproachRate:      ar,
		OverallDifficulty: od,
		CircleRadius:      ObjectRadius(cs),
		Preempt:           ApproachPreempt(ar),
		FadeIn:            FadeIn(ar),
		Windows:           Windows(od),
		SpinnerRPS:        SpinnerRotationsPerSecond(od),
	}
}

// StackOffset is the per-level displacement applied by stacking.
func (c Constants) StackOffset() float64 {
	return c.CircleRadius / 10
}

// ApproachPreempt is how long before its hit time an object starts appearing.
// Both branches give 1200ms at ar=5.
func ApproachPreempt(ar float64) float64 {
	if ar < 5 {
		return 1200 + 600*(5-ar)/5
	}
	return 1200 - 750*(ar-5)/5
}

func PreemptToAR(preempt float64) float64 {
	if preempt > 1200 {
		return 5 - (preempt-1200)/120
	}
	return 5 + (1200-preempt)/150
}

func FadeIn(ar float64) float64 {
	if ar < 5 {
		return 800 + 400*(5-ar)/5
	}
	return 800 - 500*(ar-5)/5
}

func ObjectRadius(cs float64) float64 {
	return 54.4 - 4.48*cs
}

func SpinnerRotationsPerSecond(od float64) float64 {
	if od < 5 {
		return 5 - 2*(5-od)/5
	}
	return 5 + 2.5*(od-5)/5
}

// Opacity is the fade-in alpha of an object at time t. With Hidden the
// object fades back out over 30% of preempt once fully visible.
func (c Constants) Opacity(objectTime, t float64) float64 {
	fadeInStart := objectTime - c.Preempt
	alpha := mutils.Clamp((t-fadeInStart)/max(c.FadeIn, 1), 0.0, 1.0)
	if !c.Mods.Hidden {
		return alpha
	}
	fadeOutStart := fadeInStart + c.FadeIn
	fadeOut := c.Preempt * 0.3
	return min(alpha, 1.0-mutils.Clamp((t-fadeOutStart)/max(fadeOut, 1), 0.0, 1.0))
}
