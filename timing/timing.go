package timing

import (
	"sort"
)

const (
	DefaultBeatLength = 500.0

	minSpeedMultiplier = 0.1
	maxSpeedMultiplier = 10.0
)

// Point is one [TimingPoints] line. Uninherited points carry the tempo in
// BeatLength (ms per beat); inherited ones carry a negative percentage that
// is already folded into SpeedMultiplier.
type Point struct {
	Time            int
	BeatLength      float64
	Meter           int
	SampleSet       string
	SampleIndex     int
	SampleVolume    int
	Uninherited     bool
	Kiai            bool
	OmitFirstBar    bool
	SpeedMultiplier float64
}

// SpeedMultiplierFor converts an inherited beat length into a slider velocity
// multiplier. Uninherited or non-negative values give 1.
func SpeedMultiplierFor(beatLength float64, uninherited bool) float64 {
	if uninherited || beatLength >= 0 {
		return 1
	}
	sv := -100 / beatLength
	return min(maxSpeedMultiplier, max(minSpeedMultiplier, sv))
}

// BPM of an uninherited point.
func (p Point) BPM() float64 {
	if p.BeatLength <= 0 {
		return 0
	}
	return 60000 / p.BeatLength
}

var defaultPoint = Point{
	BeatLength:      DefaultBeatLength,
	Meter:           4,
	Uninherited:     true,
	SpeedMultiplier: 1,
}

// Index answers "which timing point governs time t" in O(log n).
type Index struct {
	points []Point
	// tempo[i] is the beat length of the last uninherited point at or before i.
	tempo []float64
}

func NewIndex(points []Point) *Index {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time < sorted[j].Time
	})

	// Inherited points ahead of the first red line borrow its tempo.
	first := DefaultBeatLength
	for _, p := range sorted {
		if p.Uninherited {
			first = p.BeatLength
			break
		}
	}

	tempo := make([]float64, len(sorted))
	current := first
	for i, p := range sorted {
		if p.Uninherited {
			current = p.BeatLength
		}
		tempo[i] = current
	}

	return &Index{points: sorted, tempo: tempo}
}

func (ix *Index) Len() int { return len(ix.points) }

func (ix *Index) Points() []Point { return ix.points }

// find returns the last point with Time <= t, 0 when t precedes every point,
// and -1 for an empty index.
func (ix *Index) find(t float64) int {
	if len(ix.points) == 0 {
		return -1
	}
	i := sort.Search(len(ix.points), func(i int) bool {
		return float64(ix.points[i].Time) > t
	}) - 1
	if i < 0 {
		return 0
	}
	return i
}

// ActiveAt returns the point with the greatest Time <= t; ties go to the one
// that came last in the chart.
func (ix *Index) ActiveAt(t float64) Point {
	i := ix.find(t)
	if i < 0 {
		return defaultPoint
	}
	return ix.points[i]
}

// EffectiveAt is ActiveAt with the governing tempo substituted for
// BeatLength, so it can be used directly for slider timing.
func (ix *Index) EffectiveAt(t float64) Point {
	i := ix.find(t)
	if i < 0 {
		return defaultPoint
	}
	p := ix.points[i]
	p.BeatLength = ix.tempo[i]
	if p.Uninherited {
		p.SpeedMultiplier = 1
	}
	if p.SpeedMultiplier <= 0 {
		p.SpeedMultiplier = 1
	}
	return p
}

func (ix *Index) BPMAt(t float64) float64 {
	return ix.EffectiveAt(t).BPM()
}

// SliderDuration is the full travel time of a slider starting at t.
func (ix *Index) SliderDuration(t, length, sliderMultiplier float64, slides int) float64 {
	return ix.SpanDuration(t, length, sliderMultiplier) * float64(max(1, slides))
}

// SpanDuration is the time of one head-to-tail pass.
func (ix *Index) SpanDuration(t, length, sliderMultiplier float64) float64 {
	p := ix.EffectiveAt(t)
	velocity := sliderMultiplier * 100 * p.SpeedMultiplier
	if velocity <= 0 {
		return 0
	}
	return length / velocity * p.BeatLength
}
