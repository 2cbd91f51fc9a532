package judge

import (
	"math"
	"slices"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"osusim/difficulty"
	"osusim/dotosu"
	"osusim/mutils"
	"osusim/stacking"
)

// SpinnerCenter is the middle of the 512x384 playfield.
var SpinnerCenter = mgl64.Vec2{256, 192}

type Option func(*Engine)

// WithWindows overrides the hit windows derived from OD.
func WithWindows(w difficulty.HitWindows) Option {
	return func(e *Engine) { e.windows = w }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTickRate sets slider ticks per beat. Non-positive rates disable ticks.
func WithTickRate(r float64) Option {
	return func(e *Engine) { e.tickRate = r }
}

type track struct {
	state    State
	headDone bool
	slider   *sliderTrack

	// spinner
	rotation  float64
	lastAngle float64
	hasAngle  bool
}

type Engine struct {
	objects  []dotosu.HitObject
	c        difficulty.Constants
	windows  difficulty.HitWindows
	tickRate float64
	log      logrus.FieldLogger

	tracks  []track
	now     float64
	first   int // every object before first is resolved
	queue   []Input
	cursor  mgl64.Vec2
	holding bool
	results []Result
}

// New copies objects (sorted by time, stack data already resolved) and
// starts the clock at 0.
func New(objects []dotosu.HitObject, c difficulty.Constants, opts ...Option) *Engine {
	objs := make([]dotosu.HitObject, len(objects))
	copy(objs, objects)
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].Time < objs[j].Time })

	e := &Engine{
		objects:  objs,
		c:        c,
		windows:  c.Windows,
		tickRate: 1,
		log:      logrus.StandardLogger(),
		tracks:   make([]track, len(objs)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromBeatmap derives constants for mods, resolves stacking with the chart's
// leniency and uses its tick rate.
func FromBeatmap(b *dotosu.Beatmap, mods difficulty.Mods, opts ...Option) *Engine {
	c := difficulty.Derive(difficulty.Settings{
		CircleSize:        b.Difficulty.CircleSize,
		OverallDifficulty: b.Difficulty.OverallDifficulty,
		ApproachRate:      b.Difficulty.ApproachRate,
	}, mods)

	objs := make([]dotosu.HitObject, len(b.HitObjects))
	copy(objs, b.HitObjects)
	stacking.ResolveWithLeniency(objs, c, b.General.StackLeniency)

	opts = append([]Option{WithTickRate(b.Difficulty.SliderTickRate)}, opts...)
	return New(objs, c, opts...)
}

func (e *Engine) Now() float64 { return e.now }

func (e *Engine) Constants() difficulty.Constants { return e.c }

func (e *Engine) Objects() []dotosu.HitObject { return e.objects }

func (e *Engine) State(id int) State {
	if id < 0 || id >= len(e.tracks) {
		return Pending
	}
	return e.tracks[id].state
}

func (e *Engine) Done() bool { return e.first >= len(e.objects) }

// Results returns every result produced so far in decision order.
// Results lists every judgement so far. Appending to it does not touch the
// engine's record.
func (e *Engine) Results() []Result { return slices.Clip(e.results) }

func (e *Engine) Summary() Summary { return summarize(e.results) }

// Advance moves the clock to t, applying queued inputs with Time <= t in
// time order. Inputs later than t stay queued. The returned slice holds the
// results decided during this call.
func (e *Engine) Advance(t float64, inputs []Input) []Result {
	for _, in := range inputs {
		if in.Time < 0 {
			e.log.WithField("time", in.Time).Debug("dropping input with negative time")
			continue
		}
		e.queue = append(e.queue, in)
	}
	sort.SliceStable(e.queue, func(i, j int) bool { return e.queue[i].Time < e.queue[j].Time })

	before := len(e.results)
	n := 0
	for ; n < len(e.queue) && e.queue[n].Time <= t; n++ {
		in := e.queue[n]
		at := max(in.Time, e.now)
		e.step(at)
		e.apply(in, at)
	}
	e.queue = append(e.queue[:0], e.queue[n:]...)
	e.step(t)

	out := slices.Clip(e.results[before:])
	for _, r := range out {
		e.log.WithFields(logrus.Fields{
			"object": r.ObjectID,
			"part":   r.Part.String(),
			"tier":   r.Tier.String(),
			"error":  r.ErrorMs,
		}).Debug("judged")
	}
	return out
}

// step runs every time-driven transition up to and including to.
func (e *Engine) step(to float64) {
	if to < e.now {
		return
	}
	e.now = to

	start := len(e.results)
	for i := e.first; i < len(e.objects); i++ {
		o := &e.objects[i]
		if o.StartTime()-e.c.Preempt > to {
			break
		}
		e.update(i, to)
	}
	// Results of one step are ordered by when they were decided.
	batch := e.results[start:]
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Time != batch[j].Time {
			return batch[i].Time < batch[j].Time
		}
		return batch[i].ObjectID < batch[j].ObjectID
	})
	e.advanceFirst()
}

func (e *Engine) advanceFirst() {
	for e.first < len(e.tracks) && e.tracks[e.first].state == Resolved {
		e.first++
	}
}

func (e *Engine) update(i int, to float64) {
	o := &e.objects[i]
	tr := &e.tracks[i]
	if tr.state == Resolved {
		return
	}
	t0 := o.StartTime()
	if tr.state == Pending && to >= t0-e.c.Preempt {
		tr.state = Approaching
	}

	switch o.Kind {
	case dotosu.KindCircle:
		if tr.state == Approaching && to >= t0-e.windows.Meh {
			tr.state = Active
		}
		if to > t0+e.windows.Meh {
			e.emit(Result{ObjectID: i, Part: PartHit, Tier: difficulty.TierMiss, ErrorMs: e.windows.Meh, Time: t0 + e.windows.Meh})
			tr.state = Resolved
		}

	case dotosu.KindSlider:
		if tr.state == Approaching && to >= t0-e.windows.Meh {
			tr.state = Active
		}
		end := o.EndTimeMs()
		if !tr.headDone && to > t0+e.windows.Meh {
			e.emit(Result{ObjectID: i, Part: PartSliderHead, Tier: difficulty.TierMiss, ErrorMs: e.windows.Meh, Time: t0 + e.windows.Meh})
			tr.headDone = true
		}
		if tr.state != Active || to < t0 {
			return
		}
		st := e.sliderTrack(i)
		for ; st.next < len(st.checkpoints) && st.checkpoints[st.next].time <= to; st.next++ {
			cp := &st.checkpoints[st.next]
			cp.reached = e.holding && e.cursor.Sub(cp.pos).Len() <= followRadiusScale*e.c.CircleRadius
		}
		if to >= end {
			if !tr.headDone {
				e.emit(Result{ObjectID: i, Part: PartSliderHead, Tier: difficulty.TierMiss, ErrorMs: e.windows.Meh, Time: end})
				tr.headDone = true
			}
			e.emit(Result{ObjectID: i, Part: PartSliderEnd, Tier: coverageTier(st.checkpoints), Time: end})
			tr.state = Resolved
			tr.slider = nil
		}

	case dotosu.KindSpinner:
		if tr.state == Approaching && to >= t0 {
			tr.state = Active
		}
		end := o.EndTimeMs()
		if tr.state == Active && to >= end {
			e.emit(Result{ObjectID: i, Part: PartSpinner, Tier: e.spinTier(o, tr), Time: end})
			tr.state = Resolved
		}
	}
}

func (e *Engine) emit(r Result) {
	e.results = append(e.results, r)
}

func (e *Engine) sliderTrack(i int) *sliderTrack {
	tr := &e.tracks[i]
	if tr.slider == nil {
		tr.slider = newSliderTrack(&e.objects[i], e.tickRate)
	}
	return tr.slider
}

func coverageTier(cps []checkpoint) difficulty.Tier {
	reached := 0
	for _, cp := range cps {
		if cp.reached {
			reached++
		}
	}
	if len(cps) == 0 {
		return difficulty.TierMiss
	}
	switch coverage := float64(reached) / float64(len(cps)); {
	case coverage >= 1:
		return difficulty.Tier300
	case coverage >= 0.5:
		return difficulty.Tier100
	case coverage > 0:
		return difficulty.Tier50
	}
	return difficulty.TierMiss
}

// RequiredRotations is how many full turns a spinner asks for.
func RequiredRotations(o *dotosu.HitObject, c difficulty.Constants) float64 {
	seconds := (o.EndTimeMs() - o.StartTime()) / 1000
	return max(1, seconds*c.SpinnerRPS)
}

func (e *Engine) spinTier(o *dotosu.HitObject, tr *track) difficulty.Tier {
	ratio := math.Abs(tr.rotation) / (2 * math.Pi) / RequiredRotations(o, e.c)
	switch {
	case ratio >= 1:
		return difficulty.Tier300
	case ratio >= 0.9:
		return difficulty.Tier100
	case ratio >= 0.75:
		return difficulty.Tier50
	}
	return difficulty.TierMiss
}

// apply runs one input at clock time at.
func (e *Engine) apply(in Input, at float64) {
	e.cursor = in.Pos
	switch in.Kind {
	case Press:
		e.holding = true
		e.hit(in.Pos, in.Time, at)
	case Release:
		e.holding = false
	}
	e.spin(at)
}

// hit judges a press against the earliest open circle or slider head under
// the cursor. The error comes from the press's own timestamp even when it
// is applied later than that.
func (e *Engine) hit(pos mgl64.Vec2, pressed, at float64) {
	for i := e.first; i < len(e.objects); i++ {
		o := &e.objects[i]
		if o.StartTime()-e.c.Preempt > at {
			return
		}
		tr := &e.tracks[i]
		if tr.state != Approaching && tr.state != Active {
			continue
		}
		var part Part
		switch o.Kind {
		case dotosu.KindCircle:
			part = PartHit
		case dotosu.KindSlider:
			if tr.headDone {
				continue
			}
			part = PartSliderHead
		default:
			continue
		}
		if pos.Sub(o.StackedPos()).Len() > e.c.CircleRadius {
			continue
		}

		errMs := pressed - o.StartTime()
		e.emit(Result{ObjectID: i, Part: part, Tier: e.windows.Tier(errMs), ErrorMs: errMs, Time: at})
		if part == PartHit {
			tr.state = Resolved
			e.advanceFirst()
		} else {
			tr.headDone = true
		}
		return
	}
}

func (e *Engine) spin(at float64) {
	angle := math.Atan2(e.cursor.Y()-SpinnerCenter.Y(), e.cursor.X()-SpinnerCenter.X())
	for i := e.first; i < len(e.objects); i++ {
		o := &e.objects[i]
		if o.StartTime() > at {
			return
		}
		tr := &e.tracks[i]
		if o.Kind != dotosu.KindSpinner || tr.state != Active {
			continue
		}
		if !e.holding {
			tr.hasAngle = false
			continue
		}
		if tr.hasAngle {
			tr.rotation += mutils.WrapAngle(angle - tr.lastAngle)
		}
		tr.lastAngle = angle
		tr.hasAngle = true
	}
}

// Views projects every visible object at time t for drawing.
func (e *Engine) Views(t float64) []View {
	var views []View
	for i := e.first; i < len(e.objects); i++ {
		o := &e.objects[i]
		if o.StartTime()-e.c.Preempt > t {
			break
		}
		tr := &e.tracks[i]
		if tr.state != Approaching && tr.state != Active {
			continue
		}

		pos := o.StackedPos()
		if o.Kind == dotosu.KindSlider && t >= o.StartTime() {
			st := e.sliderTrack(i)
			pos = st.ballAt(o, t)
		}
		if o.Kind == dotosu.KindSpinner {
			pos = SpinnerCenter
		}

		progress := mutils.Clamp((t-(o.StartTime()-e.c.Preempt))/max(e.c.Preempt, 1), 0.0, 1.0)
		views = append(views, View{
			ObjectID:      i,
			Kind:          o.Kind,
			Pos:           pos,
			State:         tr.state,
			Alpha:         e.c.Opacity(o.StartTime(), t),
			ApproachScale: 3 - 2*progress,
		})
	}
	return views
}
