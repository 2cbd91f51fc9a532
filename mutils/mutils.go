package mutils

import (
	"math"

	"golang.org/x/exp/constraints"
)

func Clamp[T constraints.Integer | constraints.Float](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func Abs[T constraints.Signed | constraints.Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

// Signum returns -1, 0 or 1.
func Signum[T constraints.Signed | constraints.Float](x T) T {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

// WrapAngle maps a radian angle into (-pi, pi].
func WrapAngle(a float64) float64 {
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
