// Package stacking offsets objects that sit on top of each other in quick
// succession so every one of them stays visible.
package stacking

import (
	"github.com/go-gl/mathgl/mgl64"

	"osusim/difficulty"
	"osusim/dotosu"
)

const (
	DefaultLeniency = dotosu.DEFAULT_STACK_LENIENCY

	// Objects closer than this (chart units) count as the same spot.
	stackDistance = 3.0
)

func Resolve(objects []dotosu.HitObject, c difficulty.Constants) {
	ResolveWithLeniency(objects, c, DefaultLeniency)
}

// ResolveWithLeniency fills in HitObject.Stack. Objects must be sorted by
// time. Earlier stack data is discarded, so running it twice is harmless.
func ResolveWithLeniency(objects []dotosu.HitObject, c difficulty.Constants, leniency float64) {
	for i := range objects {
		objects[i].Stack = dotosu.StackedPosition{}
	}

	threshold := leniency * c.Preempt
	for i := range objects {
		root := &objects[i]
		if root.Stack.Count != 0 || root.Kind != dotosu.KindCircle {
			continue
		}

		count := 0
		anchorEnd := root.EndTimeMs()
		for j := i + 1; j < len(objects); j++ {
			next := &objects[j]
			if next.StartTime()-anchorEnd > threshold {
				break
			}
			// Already claimed by an earlier root.
			if next.Kind == dotosu.KindSpinner || next.Stack.Count != 0 {
				continue
			}
			if next.Pos.Sub(root.Pos).Len() < stackDistance {
				count++
				next.Stack.Count = count
				anchorEnd = next.EndTimeMs()
			}
		}
	}

	offset := c.StackOffset()
	for i := range objects {
		o := &objects[i]
		n := float64(o.Stack.Count)
		o.Stack.Pos = o.Pos.Sub(mgl64.Vec2{n * offset, n * offset})
	}
}
