package dwg

import "math"

// ---------------------------------------------------------------------------
// Line
// ---------------------------------------------------------------------------

// LineData is a straight segment between two points.
type LineData struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

func (LineData) entityData() {}

// Length returns the segment length.
func (d LineData) Length() float64 {
	return math.Hypot(d.End.X-d.Start.X, d.End.Y-d.Start.Y)
}

// ---------------------------------------------------------------------------
// Polyline
// ---------------------------------------------------------------------------

// PolylineData is a sequence of connected segments. A closed polyline
// repeats no point: the final segment back to Points[0] is implicit.
type PolylineData struct {
	Points []Point `json:"points"`
	Closed bool    `json:"closed"`
}

func (PolylineData) entityData() {}

// Length returns the total path length, including the closing segment for
// closed polylines.
func (d PolylineData) Length() float64 {
	var sum float64
	for i := 1; i < len(d.Points); i++ {
		sum += math.Hypot(d.Points[i].X-d.Points[i-1].X, d.Points[i].Y-d.Points[i-1].Y)
	}
	if d.Closed && len(d.Points) > 2 {
		last := d.Points[len(d.Points)-1]
		sum += math.Hypot(d.Points[0].X-last.X, d.Points[0].Y-last.Y)
	}
	return sum
}

// Area returns the absolute enclosed area of a closed polyline via the
// shoelace formula, or 0 for open polylines.
func (d PolylineData) Area() float64 {
	if !d.Closed || len(d.Points) < 3 {
		return 0
	}
	return math.Abs(d.SignedArea())
}

// SignedArea returns the shoelace area: positive for counter-clockwise
// winding, negative for clockwise.
func (d PolylineData) SignedArea() float64 {
	var sum float64
	n := len(d.Points)
	for i := 0; i < n; i++ {
		a := d.Points[i]
		b := d.Points[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// ---------------------------------------------------------------------------
// Circle
// ---------------------------------------------------------------------------

// CircleData is a full circle.
type CircleData struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
}

func (CircleData) entityData() {}

// Area returns the disc area.
func (d CircleData) Area() float64 {
	return math.Pi * d.Radius * d.Radius
}

// Circumference returns the circle perimeter.
func (d CircleData) Circumference() float64 {
	return 2 * math.Pi * d.Radius
}

// ---------------------------------------------------------------------------
// Arc
// ---------------------------------------------------------------------------

// ArcData is a circular arc. Angles are in degrees, counter-clockwise from
// the positive X axis, following drawing-file convention. An arc sweeps from
// StartAngle to EndAngle counter-clockwise; EndAngle <= StartAngle means the
// sweep crosses 0.
type ArcData struct {
	Center     Point   `json:"center"`
	Radius     float64 `json:"radius"`
	StartAngle float64 `json:"start_angle"`
	EndAngle   float64 `json:"end_angle"`
}

func (ArcData) entityData() {}

// Sweep returns the swept angle in degrees, in (0, 360].
func (d ArcData) Sweep() float64 {
	s := d.EndAngle - d.StartAngle
	for s <= 0 {
		s += 360
	}
	for s > 360 {
		s -= 360
	}
	return s
}

// Length returns the arc length.
func (d ArcData) Length() float64 {
	return d.Radius * d.Sweep() * math.Pi / 180
}
