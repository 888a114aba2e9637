// Package crop maps on-screen selections to native pixels and applies them
// to one or many screenshots.
package crop

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrEmptyRect is returned when a rectangle has no area after clamping
var ErrEmptyRect = errors.New("crop rectangle is empty")

// Rect is a rectangle in displayed (on-screen) coordinates
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Size is the on-screen size an image was displayed at
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Percent is a rectangle expressed as fractions of the displayed size.
// Values are not clamped; clamping happens against each target's own bounds.
type Percent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToPercent expresses r relative to the displayed size
func ToPercent(r Rect, displayed Size) (Percent, error) {
	if displayed.W <= 0 || displayed.H <= 0 {
		return Percent{}, fmt.Errorf("invalid displayed size %vx%v", displayed.W, displayed.H)
	}
	return Percent{
		X: r.X / displayed.W,
		Y: r.Y / displayed.H,
		W: r.W / displayed.W,
		H: r.H / displayed.H,
	}, nil
}

// Native scales the fractions to a target of the given native size and clamps
// the result to the target's bounds.
func (p Percent) Native(native image.Point) (image.Rectangle, error) {
	w, h := float64(native.X), float64(native.Y)
	return Clamp(p.X*w, p.Y*h, p.W*w, p.H*h, native)
}

// Clamp intersects an (x, y, w, h) rectangle with [0,W]x[0,H], rounds to whole
// pixels and rejects anything without positive area.
func Clamp(x, y, w, h float64, native image.Point) (image.Rectangle, error) {
	if w < 0 {
		x, w = x+w, -w
	}
	if h < 0 {
		y, h = y+h, -h
	}

	x0 := math.Round(math.Max(0, x))
	y0 := math.Round(math.Max(0, y))
	x1 := math.Round(math.Min(float64(native.X), x+w))
	y1 := math.Round(math.Min(float64(native.Y), y+h))

	if x1-x0 <= 0 || y1-y0 <= 0 || math.IsNaN(x0+y0+x1+y1) {
		return image.Rectangle{}, ErrEmptyRect
	}
	return image.Rect(int(x0), int(y0), int(x1), int(y1)), nil
}
