package curves

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"osusim/mutils"
)

type Type uint8

const (
	Bezier Type = iota
	Linear
	CatmullRom
	PerfectCircle
)

func (t Type) String() string {
	switch t {
	case Linear:
		return "linear"
	case CatmullRom:
		return "catmull"
	case PerfectCircle:
		return "perfect"
	}
	return "bezier"
}

// ParseType decodes the curve letter of a slider definition.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L":
		return Linear, nil
	case "B":
		return Bezier, nil
	case "C":
		return CatmullRom, nil
	case "P":
		return PerfectCircle, nil
	}
	return Bezier, fmt.Errorf("unknown curve type %q", s)
}

// Path is a sampled polyline with its arc length table. CumulativeLengths[i]
// is the distance travelled from Points[0] to Points[i].
type Path struct {
	Points            []mgl64.Vec2
	SegmentLengths    []float64
	CumulativeLengths []float64
	TotalLength       float64
}

// Build samples the curve described by start and controls.
func Build(t Type, start mgl64.Vec2, controls []mgl64.Vec2) *Path {
	pts := make([]mgl64.Vec2, 0, len(controls)+1)
	pts = append(pts, start)
	pts = append(pts, controls...)

	var samples []mgl64.Vec2
	switch t {
	case Linear:
		samples = approximateLinear(pts)
	case CatmullRom:
		if len(pts) < 4 {
			samples = approximateBezier(pts)
		} else {
			samples = approximateCatmull(pts)
		}
	case PerfectCircle:
		samples = nil
		if len(pts) == 3 {
			samples = approximateCircularArc(pts[0], pts[1], pts[2])
		}
		if samples == nil {
			samples = approximateBezier(pts)
		}
	default:
		samples = approximateBezier(pts)
	}
	return FromPoints(samples)
}

// FromPoints builds the arc length tables for an already sampled polyline.
func FromPoints(samples []mgl64.Vec2) *Path {
	p := &Path{
		Points:            samples,
		SegmentLengths:    make([]float64, len(samples)),
		CumulativeLengths: make([]float64, len(samples)),
	}
	total := 0.0
	for i := 1; i < len(samples); i++ {
		l := samples[i].Sub(samples[i-1]).Len()
		p.SegmentLengths[i] = l
		total += l
		p.CumulativeLengths[i] = total
	}
	p.TotalLength = total
	return p
}

func (p *Path) Start() mgl64.Vec2 {
	if len(p.Points) == 0 {
		return mgl64.Vec2{}
	}
	return p.Points[0]
}

func (p *Path) End() mgl64.Vec2 {
	if len(p.Points) == 0 {
		return mgl64.Vec2{}
	}
	return p.Points[len(p.Points)-1]
}

// PositionAtDistance walks d units along the path.
func (p *Path) PositionAtDistance(d float64) mgl64.Vec2 {
	n := len(p.Points)
	switch n {
	case 0:
		return mgl64.Vec2{}
	case 1:
		return p.Points[0]
	}

	d = mutils.Clamp(d, 0, p.TotalLength)
	i := sort.Search(n-1, func(i int) bool {
		return p.CumulativeLengths[i+1] >= d
	}) + 1
	if i >= n {
		return p.Points[n-1]
	}

	seg := p.SegmentLengths[i]
	if seg == 0 {
		return p.Points[i-1]
	}
	t := (d - p.CumulativeLengths[i-1]) / seg
	switch {
	case t <= 0:
		return p.Points[i-1]
	case t >= 1:
		return p.Points[i]
	}
	return lerp(p.Points[i-1], p.Points[i], t)
}

// PositionAtProgress maps progress in [0,1] over the whole slider, with
// every odd span running backwards.
func (p *Path) PositionAtProgress(progress float64, slides int) mgl64.Vec2 {
	return p.PositionAtDistance(p.DistanceAtProgress(progress, slides))
}

func (p *Path) DistanceAtProgress(progress float64, slides int) float64 {
	slides = max(1, slides)
	progress = mutils.Clamp(progress, 0, 1)

	effective := progress * float64(slides)
	span := math.Floor(effective)
	local := effective - span
	if int(span)%2 == 1 {
		local = 1 - local
	}
	return local * p.TotalLength
}

// Clip truncates the path at length. Paths already shorter are returned
// unchanged.
func (p *Path) Clip(length float64) *Path {
	if length <= 0 || length >= p.TotalLength || len(p.Points) < 2 {
		return p
	}
	i := sort.Search(len(p.Points), func(i int) bool {
		return p.CumulativeLengths[i] >= length
	})
	pts := make([]mgl64.Vec2, 0, i+1)
	pts = append(pts, p.Points[:i]...)
	pts = append(pts, p.PositionAtDistance(length))
	return FromPoints(pts)
}
