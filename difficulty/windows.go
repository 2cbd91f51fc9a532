package difficulty

import "osusim/mutils"

type Tier int

const (
	TierMiss Tier = iota
	Tier50
	Tier100
	Tier300
)

func (t Tier) String() string {
	switch t {
	case Tier300:
		return "300"
	case Tier100:
		return "100"
	case Tier50:
		return "50"
	}
	return "miss"
}

// Score is the hit value of the tier.
func (t Tier) Score() int {
	switch t {
	case Tier300:
		return 300
	case Tier100:
		return 100
	case Tier50:
		return 50
	}
	return 0
}

// HitWindows are half-widths in milliseconds around an object's time.
type HitWindows struct {
	Great float64 // 300
	Good  float64 // 100
	Meh   float64 // 50
}

// Windows never returns a negative bound, however high od goes.
func Windows(od float64) HitWindows {
	return HitWindows{
		Great: max(0, 80-6*od),
		Good:  max(0, 140-8*od),
		Meh:   max(0, 200-10*od),
	}
}

// Tier classifies a signed timing error.
func (w HitWindows) Tier(errorMs float64) Tier {
	e := mutils.Abs(errorMs)
	switch {
	case e <= w.Great:
		return Tier300
	case e <= w.Good:
		return Tier100
	case e <= w.Meh:
		return Tier50
	}
	return TierMiss
}
