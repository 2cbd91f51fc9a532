package dotosu

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"osusim/curves"
	"osusim/timing"
)

const (
	EARLY_VERSION_TIMING_OFFSET = 24
	LATEST_VERSION              = 14
	DEFAULT_STACK_LENIENCY      = 0.7
)

type Beatmap struct {
	FormatVersion int
	General       General
	Metadata      Metadata
	Difficulty    Difficulty

	Breaks       []BreakPeriod
	TimingPoints []timing.Point
	HitObjects   []HitObject

	// Diagnostics lists every line that was skipped or repaired.
	Diagnostics []Diagnostic
}

type General struct {
	AudioFilename string
	AudioLeadIn   int
	PreviewTime   int
	SampleSet     string
	SampleVolume  int
	StackLeniency float64
	Mode          int
}

type Metadata struct {
	Title, TitleUnicode            string
	Artist, ArtistUnicode          string
	Creator, Version, Source, Tags string
	BeatmapID, BeatmapSetID        int
	BackgroundFile                 string
}

type Difficulty struct {
	HPDrainRate, CircleSize, OverallDifficulty, ApproachRate float64
	SliderMultiplier, SliderTickRate                         float64
}

type BreakPeriod struct{ Start, End float64 }

type ObjectKind uint8

const (
	KindCircle ObjectKind = iota
	KindSlider
	KindSpinner
)

func (k ObjectKind) String() string {
	switch k {
	case KindSlider:
		return "slider"
	case KindSpinner:
		return "spinner"
	}
	return "circle"
}

type HitSoundFlags uint8

const (
	HitSoundNormal  HitSoundFlags = 1 << iota // 1
	HitSoundWhistle                           // 2
	HitSoundFinish                            // 4
	HitSoundClap                              // 8
)

type SampleSet uint8

const (
	SampleNone SampleSet = iota
	SampleNormal
	SampleSoft
	SampleDrum
)

type HitObjectTypeFlags int

const (
	TypeCircle     HitObjectTypeFlags = 1 << iota // 1
	TypeSlider                                    // 2
	TypeNewCombo                                  // 4
	TypeSpinner                                   // 8
	TypeComboSkip1                                // 16
	TypeComboSkip2                                // 32
	TypeComboSkip3                                // 64
)

type HitSampleSpec struct {
	NormalSet   SampleSet
	AdditionSet SampleSet
	Index       int
	Volume      int
	Filename    string
}

// HitObject is one line of [HitObjects]. Slider is set only for KindSlider,
// EndTime only matters for KindSpinner.
type HitObject struct {
	Kind     ObjectKind
	Pos      mgl64.Vec2
	Time     int
	Type     HitObjectTypeFlags
	HitSound HitSoundFlags
	Sample   HitSampleSpec

	Slider  *SliderParams
	EndTime int

	Stack StackedPosition
}

type SliderParams struct {
	CurveType     curves.Type
	ControlPoints []mgl64.Vec2
	Slides        int
	Length        float64
	EdgeSounds    []HitSoundFlags

	// Fixed at parse time from the timing point active at the slider's start.
	BeatLength   float64
	Velocity     float64 // chart units per beat
	SpanDuration float64
	Duration     float64
}

// StackedPosition is filled in by the stacking pass.
type StackedPosition struct {
	Count int
	Pos   mgl64.Vec2
}

func (o *HitObject) NewCombo() bool { return o.Type&TypeNewCombo != 0 }

// StartTime in milliseconds.
func (o *HitObject) StartTime() float64 { return float64(o.Time) }

// EndTime in milliseconds: start for circles, start plus travel time for
// sliders, the recorded end for spinners.
func (o *HitObject) EndTimeMs() float64 {
	switch o.Kind {
	case KindSlider:
		if o.Slider != nil {
			return float64(o.Time) + o.Slider.Duration
		}
	case KindSpinner:
		return float64(max(o.EndTime, o.Time))
	}
	return float64(o.Time)
}

// StackedPos is where the object is drawn and hit.
func (o *HitObject) StackedPos() mgl64.Vec2 {
	if o.Stack.Count == 0 {
		return o.Pos
	}
	return o.Stack.Pos
}

// Path evaluates the slider curve. It returns nil for other kinds.
func (o *HitObject) Path() *curves.Path {
	if o.Kind != KindSlider || o.Slider == nil {
		return nil
	}
	p := curves.Build(o.Slider.CurveType, o.Pos, o.Slider.ControlPoints)
	if o.Slider.Length > 0 {
		p = p.Clip(o.Slider.Length)
	}
	return p
}

type Counts struct {
	Circles, Sliders, Spinners int
}

func (b *Beatmap) Counts() Counts {
	var c Counts
	for i := range b.HitObjects {
		switch b.HitObjects[i].Kind {
		case KindCircle:
			c.Circles++
		case KindSlider:
			c.Sliders++
		case KindSpinner:
			c.Spinners++
		}
	}
	return c
}

// Length is the end time of the last object in milliseconds.
func (b *Beatmap) Length() float64 {
	end := 0.0
	for i := range b.HitObjects {
		end = max(end, b.HitObjects[i].EndTimeMs())
	}
	return end
}

func (b *Beatmap) TimingIndex() *timing.Index {
	return timing.NewIndex(b.TimingPoints)
}

func (b *Beatmap) Validate() error {
	if b.Metadata.Title == "" && b.Metadata.TitleUnicode == "" {
		return errors.New("missing title")
	}
	if b.Metadata.Artist == "" && b.Metadata.ArtistUnicode == "" {
		return errors.New("missing artist")
	}
	if b.General.AudioFilename == "" {
		return errors.New("missing AudioFilename in [General]")
	}
	return nil
}
