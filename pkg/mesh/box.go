package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min r3.Vec `json:"min"`
	Max r3.Vec `json:"max"`
}

// EmptyBox returns the box containing no points. Extending it with any point
// yields a box containing exactly that point.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// IsEmpty reports whether the box contains no points.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend grows the box to contain point p.
func (b Box) Extend(p r3.Vec) Box {
	return Box{
		Min: r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

// Union returns the smallest box containing both a and o.
func (b Box) Union(o Box) Box {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Size returns the box extents along each axis.
func (b Box) Size() r3.Vec {
	if b.IsEmpty() {
		return r3.Vec{}
	}
	return r3.Sub(b.Max, b.Min)
}

// Center returns the box midpoint.
func (b Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// Volume returns the enclosed volume, zero for an empty box.
func (b Box) Volume() float64 {
	s := b.Size()
	return s.X * s.Y * s.Z
}
