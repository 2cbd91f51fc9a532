// Package playfield maps the 512x384 chart space onto a screen.
package playfield

import "github.com/go-gl/mathgl/mgl64"

const (
	Width  = 512.0
	Height = 384.0

	heightShare    = 0.8
	verticalOffset = 0.02
)

type Rect struct {
	Min, Max mgl64.Vec2
}

func (r Rect) Width() float64  { return r.Max.X() - r.Min.X() }
func (r Rect) Height() float64 { return r.Max.Y() - r.Min.Y() }

// Playfield keeps a 4:3 area 80% as tall as the screen, centred
// horizontally and nudged 2% of its height downwards.
type Playfield struct {
	screen mgl64.Vec2
	scale  float64
	bounds Rect

	toScreen mgl64.Mat3
	toChart  mgl64.Mat3
}

func New(screenW, screenH float64) *Playfield {
	p := &Playfield{}
	p.Resize(screenW, screenH)
	return p
}

func (p *Playfield) Resize(screenW, screenH float64) {
	h := screenH * heightShare
	w := h * Width / Height
	left := (screenW - w) / 2
	top := (screenH-h)/2 + h*verticalOffset

	p.screen = mgl64.Vec2{screenW, screenH}
	p.scale = h / Height
	p.bounds = Rect{Min: mgl64.Vec2{left, top}, Max: mgl64.Vec2{left + w, top + h}}
	p.toScreen = mgl64.Translate2D(left, top).Mul3(mgl64.Scale2D(p.scale, p.scale))
	p.toChart = p.toScreen.Inv()
}

func (p *Playfield) ToScreen(v mgl64.Vec2) mgl64.Vec2 {
	return p.toScreen.Mul3x1(v.Vec3(1)).Vec2()
}

// ToChart inverts ToScreen, for turning pointer positions into Input
// coordinates. A zero-sized screen maps everything to the origin.
func (p *Playfield) ToChart(v mgl64.Vec2) mgl64.Vec2 {
	return p.toChart.Mul3x1(v.Vec3(1)).Vec2()
}

// Size converts a chart-space length such as a circle radius.
func (p *Playfield) Size(chartUnits float64) float64 { return chartUnits * p.scale }

func (p *Playfield) Scale() float64 { return p.scale }

func (p *Playfield) Bounds() Rect { return p.bounds }

func (p *Playfield) Screen() mgl64.Vec2 { return p.screen }
