package judge

import (
	"math"
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus/hooks/test"

	"osusim/difficulty"
	"osusim/dotosu"
)

const testChart = `osu file format v14

[General]
AudioFilename: audio.mp3

[Difficulty]
CircleSize:4
OverallDifficulty:8
ApproachRate:9
SliderMultiplier:1.4
SliderTickRate:2

[TimingPoints]
0,500,4,2,0,60,1,0

[HitObjects]
100,100,1000,1,0
200,100,1500,2,0,L|300:100,2,100
256,192,3000,12,0,4500
400,300,5000,1,0
100,300,5400,2,0,P|150:250|200:300,1,120
`

func loadChart(t *testing.T) *dotosu.Beatmap {
	t.Helper()
	b, err := dotosu.Parse(testChart)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func quietLogger() Option {
	l, _ := test.NewNullLogger()
	return WithLogger(l)
}

func singleCircle() *Engine {
	c := difficulty.Derive(difficulty.Settings{CircleSize: 4, OverallDifficulty: 5, ApproachRate: 9}, difficulty.Mods{})
	objs := []dotosu.HitObject{{Kind: dotosu.KindCircle, Pos: mgl64.Vec2{100, 100}, Time: 1000}}
	return New(objs, c, WithWindows(difficulty.HitWindows{Great: 30, Good: 60, Meh: 90}), quietLogger())
}

func press(x, y, t float64) Input { return Input{Kind: Press, Pos: mgl64.Vec2{x, y}, Time: t} }

func TestCircleWindowBoundaries(t *testing.T) {
	cases := []struct {
		at   float64
		want difficulty.Tier
	}{
		{970, difficulty.Tier300},
		{1029, difficulty.Tier300},
		{1031, difficulty.Tier100},
		{1060, difficulty.Tier100},
		{1089, difficulty.Tier50},
		{911, difficulty.Tier50},
	}
	for _, c := range cases {
		e := singleCircle()
		got := e.Advance(c.at, []Input{press(100, 100, c.at)})
		if len(got) != 1 {
			t.Fatalf("press at %v: %d results", c.at, len(got))
		}
		if got[0].Tier != c.want || got[0].ErrorMs != c.at-1000 {
			t.Errorf("press at %v: got %v, want %v", c.at, got[0], c.want)
		}
		if e.State(0) != Resolved || !e.Done() {
			t.Errorf("press at %v: state %v", c.at, e.State(0))
		}
	}
}

func TestCircleTimeout(t *testing.T) {
	e := singleCircle()
	if got := e.Advance(1090, nil); len(got) != 0 {
		t.Fatalf("resolved early: %v", got)
	}
	got := e.Advance(1091, nil)
	if len(got) != 1 || got[0].Tier != difficulty.TierMiss || got[0].ErrorMs != 90 || got[0].Time != 1090 {
		t.Fatalf("timeout: %v", got)
	}

	// A late press finds nothing left to hit.
	e = singleCircle()
	got = e.Advance(1095, []Input{press(100, 100, 1095)})
	if len(got) != 1 || got[0].Tier != difficulty.TierMiss || got[0].ErrorMs != 90 {
		t.Errorf("late press: %v", got)
	}
	if len(e.Results()) != 1 {
		t.Errorf("got %d results", len(e.Results()))
	}
}

func TestCircleStates(t *testing.T) {
	e := singleCircle() // preempt 600
	e.Advance(399, nil)
	if s := e.State(0); s != Pending {
		t.Errorf("399: %v", s)
	}
	e.Advance(400, nil)
	if s := e.State(0); s != Approaching {
		t.Errorf("400: %v", s)
	}
	e.Advance(910, nil)
	if s := e.State(0); s != Active {
		t.Errorf("910: %v", s)
	}
	if e.State(7) != Pending {
		t.Errorf("unknown id should read as pending")
	}
}

func TestPressOutsideRadiusIgnored(t *testing.T) {
	e := singleCircle()
	r := e.Constants().CircleRadius
	if got := e.Advance(1000, []Input{press(100+r+1, 100, 1000)}); len(got) != 0 {
		t.Errorf("press outside radius judged: %v", got)
	}
	got := e.Advance(1000, []Input{press(100+r-1, 100, 1000)})
	if len(got) != 1 || got[0].Tier != difficulty.Tier300 {
		t.Errorf("press inside radius: %v", got)
	}
}

func TestEarlyPressOnApproachingCircleMisses(t *testing.T) {
	e := singleCircle()
	got := e.Advance(800, []Input{press(100, 100, 800)})
	if len(got) != 1 || got[0].Tier != difficulty.TierMiss || got[0].ErrorMs != -200 {
		t.Errorf("early press: %v", got)
	}
}

func TestPressHitsEarliestObject(t *testing.T) {
	c := difficulty.Derive(difficulty.Settings{CircleSize: 4, OverallDifficulty: 5, ApproachRate: 9}, difficulty.Mods{})
	objs := []dotosu.HitObject{
		{Kind: dotosu.KindCircle, Pos: mgl64.Vec2{100, 100}, Time: 1000},
		{Kind: dotosu.KindCircle, Pos: mgl64.Vec2{105, 100}, Time: 1050},
	}
	e := New(objs, c, quietLogger())
	got := e.Advance(1040, []Input{press(103, 100, 1040)})
	if len(got) != 1 || got[0].ObjectID != 0 {
		t.Fatalf("first press: %v", got)
	}
	got = e.Advance(1045, []Input{press(103, 100, 1045)})
	if len(got) != 1 || got[0].ObjectID != 1 || got[0].ErrorMs != -5 {
		t.Errorf("second press: %v", got)
	}
}

func TestInputQueueing(t *testing.T) {
	e := singleCircle()
	got := e.Advance(900, []Input{press(100, 100, 1010), press(100, 100, -5)})
	if len(got) != 0 {
		t.Fatalf("future input applied early: %v", got)
	}
	got = e.Advance(1020, nil)
	if len(got) != 1 || got[0].ErrorMs != 10 || got[0].Time != 1010 {
		t.Errorf("queued input: %v", got)
	}
}

func TestStaleInputUsesOwnTime(t *testing.T) {
	e := singleCircle()
	e.Advance(1050, nil)
	got := e.Advance(1060, []Input{press(100, 100, 1029)})
	if len(got) != 1 {
		t.Fatalf("stale input: %v", got)
	}
	if got[0].Tier != difficulty.Tier300 || got[0].ErrorMs != 29 {
		t.Errorf("stale input: %v", got)
	}
	if got[0].Time != 1050 {
		t.Errorf("stale input decided at %v, want clock 1050", got[0].Time)
	}
}

func TestSliderCheckpoints(t *testing.T) {
	b := loadChart(t)
	o := &b.HitObjects[1]
	st := newSliderTrack(o, 2)

	span := 100.0 / 140 * 500
	want := []float64{1750, 1500 + span, 1500 + 2*span - 250, 1500 + 2*span}
	if len(st.checkpoints) != len(want) {
		t.Fatalf("got %d checkpoints", len(st.checkpoints))
	}
	for i, cp := range st.checkpoints {
		if math.Abs(cp.time-want[i]) > 1e-6 {
			t.Errorf("checkpoint %d at %v, want %v", i, cp.time, want[i])
		}
	}
	// The repeat sits on the far end, the end back on the head.
	if !st.checkpoints[1].pos.ApproxEqualThreshold(mgl64.Vec2{300, 100}, 1e-6) {
		t.Errorf("repeat at %v", st.checkpoints[1].pos)
	}
	if !st.checkpoints[3].pos.ApproxEqualThreshold(mgl64.Vec2{200, 100}, 1e-6) {
		t.Errorf("end at %v", st.checkpoints[3].pos)
	}

	// Ticks within 10ms of a span end are dropped.
	if n := len(newSliderTrack(o, 500/(span-5)).checkpoints); n != 2 {
		t.Errorf("tick near span end kept: %d checkpoints", n)
	}
	if n := len(newSliderTrack(o, 0).checkpoints); n != 2 {
		t.Errorf("zero tick rate: %d checkpoints", n)
	}
}

func TestSliderPartialCoverage(t *testing.T) {
	b := loadChart(t)
	e := FromBeatmap(b, difficulty.Mods{}, quietLogger())

	var inputs []Input
	for _, in := range autoplaySlider(&e.Objects()[1]) {
		if in.Time < 1900 {
			inputs = append(inputs, in)
		}
	}
	inputs = append(inputs, Input{Kind: Release, Time: 1900})
	e.Advance(2300, inputs)

	var head, end *Result
	for i, r := range e.Results() {
		if r.ObjectID != 1 {
			continue
		}
		switch r.Part {
		case PartSliderHead:
			head = &e.Results()[i]
		case PartSliderEnd:
			end = &e.Results()[i]
		}
	}
	if head == nil || head.Tier != difficulty.Tier300 {
		t.Errorf("head: %v", head)
	}
	// Tick and repeat reached, reverse tick and end missed.
	if end == nil || end.Tier != difficulty.Tier100 {
		t.Errorf("end: %v", end)
	}
}

func TestSliderUnplayed(t *testing.T) {
	b := loadChart(t)
	e := FromBeatmap(b, difficulty.Mods{}, quietLogger())
	e.Advance(2300, nil)

	var parts []Part
	for _, r := range e.Results() {
		if r.ObjectID == 1 {
			parts = append(parts, r.Part)
			if r.Tier != difficulty.TierMiss {
				t.Errorf("%v", r)
			}
		}
	}
	if len(parts) != 2 || parts[0] != PartSliderHead || parts[1] != PartSliderEnd {
		t.Errorf("slider parts %v", parts)
	}
}

func TestSpinner(t *testing.T) {
	b := loadChart(t)
	e := FromBeatmap(b, difficulty.Mods{}, quietLogger())
	spinner := &e.Objects()[2]

	// OD 8: 6.5 rotations per second over 1.5s.
	if got := RequiredRotations(spinner, e.Constants()); math.Abs(got-9.75) > 1e-9 {
		t.Errorf("required rotations %v", got)
	}

	e.Advance(4600, autoplaySpinner(spinner, e.Constants()))
	found := false
	for _, r := range e.Results() {
		if r.ObjectID == 2 {
			found = true
			if r.Part != PartSpinner || r.Tier != difficulty.Tier300 || r.Time != 4500 {
				t.Errorf("spinner result %v", r)
			}
		}
	}
	if !found {
		t.Fatal("spinner not judged")
	}

	e = FromBeatmap(b, difficulty.Mods{}, quietLogger())
	e.Advance(4600, nil)
	for _, r := range e.Results() {
		if r.ObjectID == 2 && r.Tier != difficulty.TierMiss {
			t.Errorf("idle spinner: %v", r)
		}
	}
}

func TestAutoplayPerfect(t *testing.T) {
	b := loadChart(t)
	e := FromBeatmap(b, difficulty.Mods{}, quietLogger())
	e.Advance(10000, Autoplay(e.Objects(), e.Constants()))

	if !e.Done() {
		t.Fatal("not done")
	}
	counts := b.Counts()
	if want := counts.Circles + 2*counts.Sliders + counts.Spinners; len(e.Results()) != want {
		t.Errorf("got %d results, want %d", len(e.Results()), want)
	}
	s := e.Summary()
	if s.Count300 != s.Total() || s.Accuracy != 1 {
		t.Errorf("summary %+v, results %v", s, e.Results())
	}
}

func TestResolvedSliderDropsPath(t *testing.T) {
	b := loadChart(t)
	e := FromBeatmap(b, difficulty.Mods{}, quietLogger())
	inputs := Autoplay(e.Objects(), e.Constants())

	e.Advance(1600, inputs)
	if e.tracks[1].slider == nil {
		t.Fatal("slider in play should have a path")
	}
	e.Advance(10000, nil)
	for i, o := range e.Objects() {
		if o.Kind == dotosu.KindSlider && e.tracks[i].slider != nil {
			t.Errorf("slider %d kept its path after resolving", i)
		}
	}
}

func TestReturnedResultsAreDetached(t *testing.T) {
	c := difficulty.Derive(difficulty.Settings{CircleSize: 4, OverallDifficulty: 5, ApproachRate: 9}, difficulty.Mods{})
	e := New([]dotosu.HitObject{
		{Kind: dotosu.KindCircle, Pos: mgl64.Vec2{100, 100}, Time: 1000},
		{Kind: dotosu.KindCircle, Pos: mgl64.Vec2{200, 100}, Time: 2000},
	}, c, WithWindows(difficulty.HitWindows{Great: 30, Good: 60, Meh: 90}), quietLogger())

	first := e.Advance(1000, []Input{press(100, 100, 1000)})
	if len(first) != 1 {
		t.Fatalf("got %v", first)
	}
	extended := append(first, Result{ObjectID: 99})
	all := append(e.Results(), Result{ObjectID: 98})

	e.Advance(2000, []Input{press(200, 100, 2000)})
	if extended[1].ObjectID != 99 || all[1].ObjectID != 98 {
		t.Errorf("engine overwrote a caller's slice: %v %v", extended, all)
	}
	if r := e.Results(); len(r) != 2 || r[1].ObjectID != 1 {
		t.Errorf("results = %v", r)
	}
}

func TestFrameSplitDeterminism(t *testing.T) {
	b := loadChart(t)
	run := func(step float64) []Result {
		e := FromBeatmap(b, difficulty.Mods{}, quietLogger())
		inputs := Autoplay(e.Objects(), e.Constants())
		// Drop every third input so some objects miss.
		var thinned []Input
		for i, in := range inputs {
			if i%3 != 1 || in.Kind == Move {
				thinned = append(thinned, in)
			}
		}
		e.Advance(0, thinned)
		for now := 0.0; !e.Done(); now += step {
			e.Advance(now, nil)
		}
		out := append([]Result(nil), e.Results()...)
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].ObjectID != out[j].ObjectID {
				return out[i].ObjectID < out[j].ObjectID
			}
			return out[i].Part < out[j].Part
		})
		return out
	}

	fine, coarse := run(1), run(16)
	if len(fine) != len(coarse) {
		t.Fatalf("%d vs %d results", len(fine), len(coarse))
	}
	for i := range fine {
		if fine[i] != coarse[i] {
			t.Errorf("result %d: %v vs %v", i, fine[i], coarse[i])
		}
	}
}

func TestViews(t *testing.T) {
	e := singleCircle() // preempt 600, fade-in 400
	e.Advance(400, nil)
	v := e.Views(400)
	if len(v) != 1 || v[0].ApproachScale != 3 || v[0].Alpha != 0 || v[0].State != Approaching {
		t.Fatalf("views at 400: %+v", v)
	}
	e.Advance(1000, nil)
	v = e.Views(1000)
	if len(v) != 1 || v[0].ApproachScale != 1 || v[0].Alpha != 1 || v[0].Pos != (mgl64.Vec2{100, 100}) {
		t.Errorf("views at 1000: %+v", v)
	}
	e.Advance(1100, nil)
	if v := e.Views(1100); len(v) != 0 {
		t.Errorf("resolved object still visible: %+v", v)
	}
}

func TestViewsSliderBall(t *testing.T) {
	b := loadChart(t)
	e := FromBeatmap(b, difficulty.Mods{}, quietLogger())
	span := 100.0 / 140 * 500
	at := 1500 + span/2
	e.Advance(at, nil)
	for _, v := range e.Views(at) {
		if v.ObjectID == 1 && !v.Pos.ApproxEqualThreshold(mgl64.Vec2{250, 100}, 1e-6) {
			t.Errorf("ball at %v", v.Pos)
		}
	}
}

func TestSummary(t *testing.T) {
	s := summarize([]Result{
		{Tier: difficulty.Tier300},
		{Tier: difficulty.Tier100},
		{Tier: difficulty.TierMiss},
	})
	if s.Count300 != 1 || s.Count100 != 1 || s.Misses != 1 || s.Score != 400 {
		t.Errorf("%+v", s)
	}
	if math.Abs(s.Accuracy-400.0/900) > 1e-12 {
		t.Errorf("accuracy %v", s.Accuracy)
	}
}
