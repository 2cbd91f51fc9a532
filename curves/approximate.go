package curves

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"osusim/mutils"
)

const (
	linearDetail  = 50
	bezierSteps   = 100 // t advances by 0.01
	catmullDetail = 50
	catmullAlpha  = 0.5 // centripetal
	arcTolerance  = 0.10
)

func approximateLinear(pts []mgl64.Vec2) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, 0, (len(pts)-1)*linearDetail+1)
	out = append(out, pts[0])
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		for s := 1; s <= linearDetail; s++ {
			t := float64(s) / linearDetail
			out = append(out, lerp(a, b, t))
		}
	}
	return out
}

// approximateBezier samples a single Bézier curve over every point.
func approximateBezier(cp []mgl64.Vec2) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, 0, bezierSteps+1)
	buf := make([]mgl64.Vec2, len(cp))
	for s := 0; s <= bezierSteps; s++ {
		out = append(out, deCasteljau(cp, float64(s)/bezierSteps, buf))
	}
	return out
}

func deCasteljau(cp []mgl64.Vec2, t float64, buf []mgl64.Vec2) mgl64.Vec2 {
	copy(buf, cp)
	for r := len(cp) - 1; r > 0; r-- {
		for i := 0; i < r; i++ {
			buf[i] = lerp(buf[i], buf[i+1], t)
		}
	}
	return buf[0]
}

// approximateCatmull pads the ends and evaluates every 4-point window on its
// own sweep. Windows are concatenated as they are.
func approximateCatmull(pts []mgl64.Vec2) []mgl64.Vec2 {
	padded := make([]mgl64.Vec2, 0, len(pts)+2)
	padded = append(padded, pts[0])
	padded = append(padded, pts...)
	padded = append(padded, pts[len(pts)-1])

	windows := len(padded) - 3
	out := make([]mgl64.Vec2, 0, windows*catmullDetail+1)
	out = append(out, pts[0])
	for w := 0; w < windows; w++ {
		p0, p1, p2, p3 := padded[w], padded[w+1], padded[w+2], padded[w+3]
		for s := 1; s <= catmullDetail; s++ {
			t := float64(s) / catmullDetail
			out = append(out, centripetalPoint(p0, p1, p2, p3, t))
		}
	}
	return out
}

// centripetalPoint evaluates the Barry-Goldman pyramid between p1 and p2.
func centripetalPoint(p0, p1, p2, p3 mgl64.Vec2, t float64) mgl64.Vec2 {
	t0 := 0.0
	t1 := t0 + knot(p0, p1)
	t2 := t1 + knot(p1, p2)
	t3 := t2 + knot(p2, p3)

	u := mutils.Lerp(t1, t2, t)

	a1 := blend(p0, p1, t0, t1, u)
	a2 := blend(p1, p2, t1, t2, u)
	a3 := blend(p2, p3, t2, t3, u)
	b1 := blend(a1, a2, t0, t2, u)
	b2 := blend(a2, a3, t1, t3, u)
	return blend(b1, b2, t1, t2, u)
}

// knot is the centripetal parameter step. Coincident points get a unit step
// so the pyramid never divides by zero.
func knot(a, b mgl64.Vec2) float64 {
	d := math.Pow(b.Sub(a).Len(), catmullAlpha)
	if d < 1e-4 {
		return 1
	}
	return d
}

func blend(a, b mgl64.Vec2, ta, tb, u float64) mgl64.Vec2 {
	if tb == ta {
		return a
	}
	return lerp(a, b, (u-ta)/(tb-ta))
}

// approximateCircularArc returns nil when the three points do not describe a
// usable circle, in which case the caller falls back to Bézier.
func approximateCircularArc(p1, p2, p3 mgl64.Vec2) []mgl64.Vec2 {
	if collinear(p1, p2, p3) {
		return nil
	}

	c, ok := circumcenter(p1, p2, p3)
	if !ok {
		return nil
	}
	r := p1.Sub(c).Len()

	a1 := math.Atan2(p1[1]-c[1], p1[0]-c[0])
	a3 := math.Atan2(p3[1]-c[1], p3[0]-c[0])

	dir := 1.0
	if cross(p2.Sub(p1), p3.Sub(p2)) < 0 {
		dir = -1.0
	}
	delta := angleDiff(a1, a3, dir)

	step := 2 * math.Acos(mutils.Clamp(1.0-arcTolerance/r, -1, 1))
	if step <= 0 || math.IsNaN(step) || step > math.Pi {
		step = math.Pi
	}
	steps := max(2, int(math.Ceil(math.Abs(delta)/step)))
	step = delta / float64(steps)

	out := make([]mgl64.Vec2, 0, steps+1)
	out = append(out, p1)
	for i := 1; i < steps; i++ {
		a := a1 + float64(i)*step
		out = append(out, mgl64.Vec2{c[0] + math.Cos(a)*r, c[1] + math.Sin(a)*r})
	}
	out = append(out, p3)
	return out
}

func collinear(a, b, c mgl64.Vec2) bool {
	return math.Abs(cross(b.Sub(a), c.Sub(b))) < 1e-6
}

func circumcenter(a, b, c mgl64.Vec2) (mgl64.Vec2, bool) {
	d := 2 * (a[0]*(b[1]-c[1]) + b[0]*(c[1]-a[1]) + c[0]*(a[1]-b[1]))
	if math.Abs(d) < 1e-8 {
		return mgl64.Vec2{}, false
	}
	a2 := a.Dot(a)
	b2 := b.Dot(b)
	c2 := c.Dot(c)
	x := (a2*(b[1]-c[1]) + b2*(c[1]-a[1]) + c2*(a[1]-b[1])) / d
	y := (a2*(c[0]-b[0]) + b2*(a[0]-c[0]) + c2*(b[0]-a[0])) / d
	return mgl64.Vec2{x, y}, true
}

// angleDiff sweeps from aStart to aEnd in the direction of dir.
func angleDiff(aStart, aEnd, dir float64) float64 {
	d := mutils.WrapAngle(aEnd - aStart)
	if dir < 0 && d > 0 {
		d -= 2 * math.Pi
	} else if dir > 0 && d < 0 {
		d += 2 * math.Pi
	}
	return d
}

func cross(a, b mgl64.Vec2) float64 { return a[0]*b[1] - a[1]*b[0] }

func lerp(a, b mgl64.Vec2, t float64) mgl64.Vec2 {
	return mgl64.Vec2{mutils.Lerp(a[0], b[0], t), mutils.Lerp(a[1], b[1], t)}
}
