package dotosu

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"osusim/curves"
	"osusim/timing"
)

type section int

const (
	secNone section = iota
	secGeneral
	secMetadata
	secDifficulty
	secEvents
	secTimingPoints
	secHitObjects
)

var sectionNames = [...]string{"", "General", "Metadata", "Difficulty", "Events", "TimingPoints", "HitObjects"}

func (s section) String() string { return sectionNames[s] }

var log logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the logger used to report skipped lines.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	log = l
}

func DecodeFile(path string) (*Beatmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	b, err := Decode(f)
	if pe, ok := err.(*ParseError); ok {
		pe.Path = path
	}
	return b, err
}

func Parse(text string) (*Beatmap, error) {
	return Decode(strings.NewReader(text))
}

type decoder struct {
	b      *Beatmap
	sec    section
	line   int
	offset int
	seenAR bool
	log    logrus.FieldLogger
}

// Decode reads a whole chart. Only a failing reader is fatal; malformed
// lines are skipped and recorded in Beatmap.Diagnostics.
func Decode(r io.Reader) (*Beatmap, error) {
	// UTF-8 with or without BOM, UTF-16 with BOM.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	sc := bufio.NewScanner(transform.NewReader(r, dec))
	const maxLine = 1024 * 1024
	buf := make([]byte, 64*1024)
	sc.Buffer(buf, maxLine)

	d := &decoder{
		b: &Beatmap{
			FormatVersion: LATEST_VERSION,
			General: General{
				SampleSet:     "normal",
				SampleVolume:  100,
				StackLeniency: DEFAULT_STACK_LENIENCY,
			},
			Difficulty: Difficulty{
				SliderMultiplier: 1,
				SliderTickRate:   1,
			},
		},
		log: log,
	}

	headerDone := false
	for sc.Scan() {
		d.line++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !headerDone {
			headerDone = true
			if d.header(line) {
				continue
			}
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			d.enter(line)
			continue
		}
		d.handle(line)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Err: err}
	}

	d.finish()
	return d.b, nil
}

// header consumes the "osu file format vN" line if present.
func (d *decoder) header(line string) bool {
	const prefix = "osu file format v"
	if !strings.HasPrefix(strings.ToLower(line), prefix) {
		return false
	}
	v, err := strconv.Atoi(strings.TrimSpace(line[len(prefix):]))
	if err != nil {
		d.diag(line, fmt.Errorf("bad format version: %w", err))
		return true
	}
	d.b.FormatVersion = v
	if v < 5 {
		d.offset = EARLY_VERSION_TIMING_OFFSET
	}
	return true
}

func (d *decoder) enter(line string) {
	switch strings.ToLower(line) {
	case "[general]":
		d.sec = secGeneral
	case "[metadata]":
		d.sec = secMetadata
	case "[difficulty]":
		d.sec = secDifficulty
	case "[events]":
		d.sec = secEvents
	case "[timingpoints]":
		d.sec = secTimingPoints
	case "[hitobjects]":
		d.sec = secHitObjects
	default:
		d.sec = secNone
	}
}

func (d *decoder) diag(text string, err error) {
	dg := Diagnostic{Line: d.line, Section: d.sec.String(), Text: text, Err: err}
	d.b.Diagnostics = append(d.b.Diagnostics, dg)
	d.log.WithFields(logrus.Fields{
		"line":    dg.Line,
		"section": dg.Section,
	}).Warnf("skipping chart line: %v", err)
}

func (d *decoder) handle(line string) {
	switch d.sec {
	case secGeneral:
		d.general(line)
	case secMetadata:
		d.metadata(line)
	case secDifficulty:
		d.difficulty(line)
	case secEvents:
		d.event(line)
	case secTimingPoints:
		if p, err := d.timingPoint(line); err != nil {
			d.diag(line, err)
		} else {
			d.b.TimingPoints = append(d.b.TimingPoints, p)
		}
	case secHitObjects:
		if o, err := d.hitObject(line); err != nil {
			d.diag(line, err)
		} else {
			d.b.HitObjects = append(d.b.HitObjects, o)
		}
	}
}

func (d *decoder) general(line string) {
	g := &d.b.General
	k, v := splitKeyVal(line)
	switch strings.ToLower(k) {
	case "audiofilename":
		g.AudioFilename = standardisePath(v)
	case "audioleadin":
		g.AudioLeadIn = parseInt(v, 0)
	case "previewtime":
		t := parseInt(v, -1)
		if t != -1 {
			t += d.offset
		}
		g.PreviewTime = t
	case "sampleset":
		g.SampleSet = strings.ToLower(v)
	case "samplevolume":
		g.SampleVolume = parseInt(v, 100)
	case "stackleniency":
		g.StackLeniency = parseFloat(v, DEFAULT_STACK_LENIENCY)
	case "mode":
		g.Mode = parseInt(v, 0)
	}
}

func (d *decoder) metadata(line string) {
	m := &d.b.Metadata
	k, v := splitKeyVal(line)
	switch strings.ToLower(k) {
	case "title":
		m.Title = v
	case "titleunicode":
		m.TitleUnicode = v
	case "artist":
		m.Artist = v
	case "artistunicode":
		m.ArtistUnicode = v
	case "creator":
		m.Creator = v
	case "version":
		m.Version = v
	case "source":
		m.Source = v
	case "tags":
		m.Tags = v
	case "beatmapid":
		m.BeatmapID = parseInt(v, 0)
	case "beatmapsetid":
		m.BeatmapSetID = parseInt(v, 0)
	}
}

func (d *decoder) difficulty(line string) {
	df := &d.b.Difficulty
	k, v := splitKeyVal(line)
	switch strings.ToLower(k) {
	case "hpdrainrate":
		df.HPDrainRate = parseFloat(v, 0)
	case "circlesize":
		df.CircleSize = parseFloat(v, 0)
	case "overalldifficulty":
		df.OverallDifficulty = parseFloat(v, 0)
	case "approachrate":
		df.ApproachRate = parseFloat(v, 0)
		d.seenAR = true
	case "slidermultiplier":
		df.SliderMultiplier = d.positive(line, parseFloat(v, 1))
	case "slidertickrate":
		df.SliderTickRate = d.positive(line, parseFloat(v, 1))
	}
}

func (d *decoder) positive(line string, v float64) float64 {
	if v > 0 && !math.IsNaN(v) {
		return v
	}
	d.diag(line, errBadSliderOption)
	return 1
}

func (d *decoder) event(line string) {
	parts := splitCSV(line)
	if len(parts) < 3 {
		return
	}
	switch strings.ToLower(parts[0]) {
	case "0", "background":
		d.b.Metadata.BackgroundFile = standardisePath(parts[2])
	case "2", "break":
		start, err1 := strconv.ParseFloat(parts[1], 64)
		end, err2 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil {
			d.diag(line, fmt.Errorf("bad break period"))
			return
		}
		start += float64(d.offset)
		end = max(start, end+float64(d.offset))
		d.b.Breaks = append(d.b.Breaks, BreakPeriod{Start: start, End: end})
	}
}

func (d *decoder) timingPoint(line string) (timing.Point, error) {
	parts := splitCSV(line)
	if len(parts) < 2 {
		return timing.Point{}, errTooFewFields
	}
	t, err := parseNumber(parts[0])
	if err != nil {
		return timing.Point{}, fmt.Errorf("time: %w", err)
	}
	beatLen, err := parseNumber(parts[1])
	if err != nil {
		return timing.Point{}, fmt.Errorf("beat length: %w", err)
	}
	if beatLen == 0 {
		return timing.Point{}, errZeroBeatLength
	}

	p := timing.Point{
		Time:         int(t) + d.offset,
		BeatLength:   beatLen,
		Meter:        4,
		SampleSet:    "normal",
		SampleVolume: 100,
		Uninherited:  true,
	}
	if len(parts) >= 3 {
		if m := parseInt(parts[2], 4); m > 0 {
			p.Meter = m
		}
	}
	if len(parts) >= 4 {
		p.SampleSet = normaliseSampleSet(parseInt(parts[3], 1))
	}
	if len(parts) >= 5 {
		p.SampleIndex = parseInt(parts[4], 0)
	}
	if len(parts) >= 6 {
		p.SampleVolume = parseInt(parts[5], 100)
	}
	if len(parts) >= 7 {
		p.Uninherited = strings.TrimSpace(parts[6]) != "0"
	}
	if len(parts) >= 8 {
		e := parseInt(parts[7], 0)
		p.Kiai = e&1 != 0
		p.OmitFirstBar = e&8 != 0
	}
	// A negative beat length on a red line is treated as inherited.
	if beatLen < 0 {
		p.Uninherited = false
	}
	p.SpeedMultiplier = timing.SpeedMultiplierFor(beatLen, p.Uninherited)
	return p, nil
}

func (d *decoder) hitObject(line string) (HitObject, error) {
	parts := splitCSVPreserveTail(line, 11)
	if len(parts) < 4 {
		return HitObject{}, errTooFewFields
	}
	x, err := parseNumber(parts[0])
	if err != nil {
		return HitObject{}, fmt.Errorf("x: %w", err)
	}
	y, err := parseNumber(parts[1])
	if err != nil {
		return HitObject{}, fmt.Errorf("y: %w", err)
	}
	t, err := parseNumber(parts[2])
	if err != nil {
		return HitObject{}, fmt.Errorf("time: %w", err)
	}
	typ, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil {
		return HitObject{}, fmt.Errorf("type: %w", err)
	}

	o := HitObject{
		Pos:      mgl64.Vec2{x, y},
		Time:     int(t) + d.offset,
		Type:     HitObjectTypeFlags(typ),
	}
	if len(parts) >= 5 {
		o.HitSound = HitSoundFlags(parseInt(parts[4], 0))
	}

	switch {
	case o.Type&TypeCircle != 0:
		o.Kind = KindCircle
		if len(parts) >= 6 {
			o.Sample = parseHitSample(parts[5])
		}
	case o.Type&TypeSlider != 0:
		o.Kind = KindSlider
		sp, err := parseSlider(o.Pos, parts)
		if err != nil {
			return HitObject{}, err
		}
		if len(parts) >= 11 {
			o.Sample = parseHitSample(parts[10])
		}
		o.Slider = sp
	case o.Type&TypeSpinner != 0:
		o.Kind = KindSpinner
		o.EndTime = o.Time
		if len(parts) >= 6 && strings.TrimSpace(parts[5]) != "" {
			end, err := parseNumber(parts[5])
			if err != nil {
				return HitObject{}, fmt.Errorf("spinner end: %w", err)
			}
			o.EndTime = max(o.Time, int(end)+d.offset)
		}
		if len(parts) >= 7 {
			o.Sample = parseHitSample(parts[6])
		}
	default:
		return HitObject{}, errUnknownKind
	}
	return o, nil
}

func parseSlider(head mgl64.Vec2, parts []string) (*SliderParams, error) {
	if len(parts) < 7 {
		return nil, errTooFewFields
	}
	ct, cps, err := parseCurve(parts[5])
	if err != nil {
		return nil, err
	}
	slides, err := strconv.Atoi(strings.TrimSpace(parts[6]))
	if err != nil {
		return nil, fmt.Errorf("slides: %w", err)
	}
	sp := &SliderParams{
		CurveType:     ct,
		ControlPoints: cps,
		Slides:        max(1, slides),
	}
	if len(parts) >= 8 {
		sp.Length = parseFloat(parts[7], 0)
	}
	if sp.Length <= 0 || math.IsNaN(sp.Length) {
		sp.Length = curves.Build(ct, head, cps).TotalLength
	}
	if len(parts) >= 9 && strings.TrimSpace(parts[8]) != "" {
		for _, n := range strings.Split(parts[8], "|") {
			sp.EdgeSounds = append(sp.EdgeSounds, HitSoundFlags(parseInt(n, 0)))
		}
	}
	return sp, nil
}

// parseCurve splits "B|x:y|x:y" into its type and control points.
func parseCurve(spec string) (curves.Type, []mgl64.Vec2, error) {
	tokens := strings.Split(strings.TrimSpace(spec), "|")
	ct, err := curves.ParseType(tokens[0])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errMalformedCurve, err)
	}
	cps := make([]mgl64.Vec2, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		xy := strings.Split(strings.TrimSpace(tok), ":")
		if len(xy) != 2 {
			return 0, nil, fmt.Errorf("%w: point %q", errMalformedCurve, tok)
		}
		px, errX := parseNumber(xy[0])
		py, errY := parseNumber(xy[1])
		if errX != nil || errY != nil {
			return 0, nil, fmt.Errorf("%w: point %q", errMalformedCurve, tok)
		}
		cps = append(cps, mgl64.Vec2{px, py})
	}
	return ct, cps, nil
}

// finish runs once every line has been read.
func (d *decoder) finish() {
	b := d.b
	if !d.seenAR {
		b.Difficulty.ApproachRate = b.Difficulty.OverallDifficulty
	}

	sort.SliceStable(b.TimingPoints, func(i, j int) bool {
		return b.TimingPoints[i].Time < b.TimingPoints[j].Time
	})
	ix := timing.NewIndex(b.TimingPoints)

	sm := b.Difficulty.SliderMultiplier
	for i := range b.HitObjects {
		o := &b.HitObjects[i]
		if o.Kind != KindSlider {
			continue
		}
		p := ix.EffectiveAt(float64(o.Time))
		sp := o.Slider
		sp.BeatLength = p.BeatLength
		sp.Velocity = sm * 100 * p.SpeedMultiplier
		sp.SpanDuration = ix.SpanDuration(float64(o.Time), sp.Length, sm)
		sp.Duration = sp.SpanDuration * float64(sp.Slides)
	}

	sort.SliceStable(b.HitObjects, func(i, j int) bool {
		return b.HitObjects[i].Time < b.HitObjects[j].Time
	})
}

func splitKeyVal(line string) (key, val string) {
	i := strings.Index(line, ":")
	if i < 0 {
		return strings.TrimSpace(line), ""
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
}

// parseNumber accepts integers and decimals and rejects NaN and infinities.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func standardisePath(p string) string {
	p = strings.Trim(p, "\"")
	return strings.ReplaceAll(p, "\\", "/")
}

func splitCSV(line string) []string {
	var out []string
	var cur strings.Builder
	inQ := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch c {
		case '"':
			inQ = !inQ
		case ',':
			if inQ {
				cur.WriteByte(c)
			} else {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, strings.TrimSpace(cur.String()))
	return out
}

func splitCSVPreserveTail(line string, n int) []string {
	parts := splitCSV(line)
	if len(parts) <= n {
		return parts
	}
	head := parts[:n-1]
	tail := strings.Join(parts[n-1:], ",")
	return append(head, tail)
}

func normaliseSampleSet(id int) string {
	switch id {
	case 2:
		return "soft"
	case 3:
		return "drum"
	default:
		return "normal"
	}
}

func parseHitSample(s string) HitSampleSpec {
	// normalSet:additionSet:index:volume:filename
	parts := strings.Split(s, ":")
	get := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return HitSampleSpec{
		NormalSet:   toSampleSet(parseInt(get(0), 0)),
		AdditionSet: toSampleSet(parseInt(get(1), 0)),
		Index:       parseInt(get(2), 0),
		Volume:      parseInt(get(3), 0),
		Filename:    strings.Trim(strings.TrimSpace(get(4)), "\""),
	}
}

func toSampleSet(id int) SampleSet {
	switch id {
	case 1:
		return SampleNormal
	case 2:
		return SampleSoft
	case 3:
		return SampleDrum
	}
	return SampleNone
}
