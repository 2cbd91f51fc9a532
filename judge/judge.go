// Package judge replays player input against a chart and grades every
// object. It has no clock of its own: callers drive it with Advance.
package judge

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"osusim/difficulty"
	"osusim/dotosu"
)

type InputKind uint8

const (
	Move InputKind = iota
	Press
	Release
)

func (k InputKind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	}
	return "move"
}

// Input is one pointer event in chart space at chart time Time (ms).
type Input struct {
	Kind InputKind
	Pos  mgl64.Vec2
	Time float64
}

type State uint8

const (
	Pending State = iota
	Approaching
	Active
	Resolved
)

func (s State) String() string {
	switch s {
	case Approaching:
		return "approaching"
	case Active:
		return "active"
	case Resolved:
		return "resolved"
	}
	return "pending"
}

// Part says which piece of an object a Result grades.
type Part uint8

const (
	PartHit Part = iota
	PartSliderHead
	PartSliderEnd
	PartSpinner
)

func (p Part) String() string {
	switch p {
	case PartSliderHead:
		return "slider head"
	case PartSliderEnd:
		return "slider end"
	case PartSpinner:
		return "spinner"
	}
	return "hit"
}

type Result struct {
	ObjectID int
	Part     Part
	Tier     difficulty.Tier
	ErrorMs  float64
	Time     float64
}

func (r Result) String() string {
	return fmt.Sprintf("#%d %s %s (%+.1fms) at %.0f", r.ObjectID, r.Part, r.Tier, r.ErrorMs, r.Time)
}

// View is what a renderer needs to draw one object at a given instant.
type View struct {
	ObjectID      int
	Kind          dotosu.ObjectKind
	Pos           mgl64.Vec2
	State         State
	Alpha         float64
	ApproachScale float64
}

type Summary struct {
	Count300 int
	Count100 int
	Count50  int
	Misses   int
	Score    int
	Accuracy float64
}

func (s Summary) Total() int { return s.Count300 + s.Count100 + s.Count50 + s.Misses }

func summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Tier {
		case difficulty.Tier300:
			s.Count300++
		case difficulty.Tier100:
			s.Count100++
		case difficulty.Tier50:
			s.Count50++
		default:
			s.Misses++
		}
		s.Score += r.Tier.Score()
	}
	if n := s.Total(); n > 0 {
		s.Accuracy = float64(s.Score) / float64(300*n)
	}
	return s
}
