package difficulty

import (
	"math"
	"testing"
)

func TestApproachPreemptContinuousAtFive(t *testing.T) {
	if p := ApproachPreempt(5); p != 1200 {
		t.Fatalf("expected 1200ms at AR5, got %f", p)
	}
	below := 1200 + 600*(5-5.0)/5
	above := 1200 - 750*(5-5.0)/5
	if below != above {
		t.Fatalf("branches disagree at AR5: %f vs %f", below, above)
	}

	eps := 1e-9
	if d := math.Abs(ApproachPreempt(5-eps) - ApproachPreempt(5+eps)); d > 1e-6 {
		t.Errorf("discontinuity %g around AR5", d)
	}
}

func TestApproachPreemptStrictlyDecreasing(t *testing.T) {
	prev := ApproachPreempt(0)
	for i := 1; i <= 1000; i++ {
		ar := float64(i) / 100
		p := ApproachPreempt(ar)
		if p >= prev {
			t.Fatalf("preempt not decreasing at AR%.2f: %f >= %f", ar, p, prev)
		}
		prev = p
	}
}

func TestApproachPreemptKnownValues(t *testing.T) {
	tests := []struct{ ar, want float64 }{
		{0, 1800},
		{5, 1200},
		{9, 600},
		{10, 450},
		{11, 300},
		{-1, 1920},
	}
	for _, tt := range tests {
		if got := ApproachPreempt(tt.ar); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ApproachPreempt(%v) = %v, want %v", tt.ar, got, tt.want)
		}
	}
}

func TestPreemptToARInvertsPreempt(t *testing.T) {
	for _, ar := range []float64{0, 2.5, 5, 7.3, 9, 10} {
		if got := PreemptToAR(ApproachPreempt(ar)); math.Abs(got-ar) > 1e-9 {
			t.Errorf("PreemptToAR(ApproachPreempt(%v)) = %v", ar, got)
		}
	}
}

func TestFadeIn(t *testing.T) {
	tests := []struct{ ar, want float64 }{
		{0, 1200},
		{5, 800},
		{10, 300},
	}
	for _, tt := range tests {
		if got := FadeIn(tt.ar); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("FadeIn(%v) = %v, want %v", tt.ar, got, tt.want)
		}
	}
	if math.Abs(FadeIn(5-1e-9)-FadeIn(5+1e-9)) > 1e-6 {
		t.Error("fade-in discontinuous at AR5")
	}
}

func TestObjectRadius(t *testing.T) {
	if got := ObjectRadius(4); math.Abs(got-36.48) > 1e-9 {
		t.Errorf("expected 36.48, got %f", got)
	}
	if got := ObjectRadius(0); got != 54.4 {
		t.Errorf("expected 54.4, got %f", got)
	}
}

func TestWindowsClampAtZero(t *testing.T) {
	w := Windows(5)
	if w.Great != 50 || w.Good != 100 || w.Meh != 150 {
		t.Errorf("unexpected OD5 windows %+v", w)
	}

	w = Windows(25)
	if w.Great != 0 || w.Good != 0 || w.Meh != 0 {
		t.Errorf("expected all windows clamped to zero, got %+v", w)
	}
}

func TestTierBoundaries(t *testing.T) {
	w := HitWindows{Great: 30, Good: 60, Meh: 90}

	tests := []struct {
		err  float64
		want Tier
	}{
		{0, Tier300},
		{29, Tier300},
		{-30, Tier300},
		{31, Tier100},
		{-60, Tier100},
		{61, Tier50},
		{90, Tier50},
		{-91, TierMiss},
		{95, TierMiss},
	}
	for _, tt := range tests {
		if got := w.Tier(tt.err); got != tt.want {
			t.Errorf("Tier(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestDeriveMods(t *testing.T) {
	s := Settings{CircleSize: 4, OverallDifficulty: 8, ApproachRate: 9}

	hr := Derive(s, Mods{Hardrock: true})
	if math.Abs(hr.CircleSize-5.2) > 1e-9 {
		t.Errorf("HR circle size: got %f", hr.CircleSize)
	}
	if hr.ApproachRate != 10 || hr.OverallDifficulty != 10 {
		t.Errorf("HR should cap AR/OD at 10, got AR%f OD%f", hr.ApproachRate, hr.OverallDifficulty)
	}

	ez := Derive(s, Mods{Easy: true})
	if ez.CircleSize != 2 || ez.ApproachRate != 4.5 || ez.OverallDifficulty != 4 {
		t.Errorf("EZ should halve settings, got %+v", ez)
	}

	nm := Derive(s, Mods{})
	if nm.Preempt != 600 || nm.Windows != Windows(8) {
		t.Errorf("unexpected nomod constants %+v", nm)
	}
	if math.Abs(nm.StackOffset()-nm.CircleRadius/10) > 1e-12 {
		t.Error("stack offset should be a tenth of the radius")
	}
}

func TestOpacity(t *testing.T) {
	c := Derive(Settings{ApproachRate: 5}, Mods{})

	if a := c.Opacity(2000, 2000-1200); a != 0 {
		t.Errorf("expected invisible at preempt start, got %f", a)
	}
	if a := c.Opacity(2000, 2000-800); math.Abs(a-0.5) > 1e-9 {
		t.Errorf("expected half alpha midway through fade-in, got %f", a)
	}
	if a := c.Opacity(2000, 2000); a != 1 {
		t.Errorf("expected full alpha at hit time, got %f", a)
	}

	c.Mods.Hidden = true
	if a := c.Opacity(2000, 2000); a >= 1 {
		t.Errorf("expected hidden to fade the object out, got %f", a)
	}
}
