// Package extrude lifts 2D drawing entities into closed triangle prisms.
// Prisms span [BaseZ, BaseZ+Height] along the drawing's depth axis and are
// wound with outward-facing normals, so enclosed volumes integrate positive.
package extrude

import (
	"fmt"
	"math"

	"github.com/geomech/stratum/pkg/dwg"
	"github.com/geomech/stratum/pkg/mesh"
)

const (
	// DefaultSegments is the circle tessellation used when neither an
	// explicit segment count nor a mesh size is configured.
	DefaultSegments = 16
	// MinSegments and MaxSegments bound mesh-size-derived tessellation.
	MinSegments = 8
	MaxSegments = 64
	// DefaultWallWidth is the slab thickness for bare line traces, matching
	// a typical diaphragm wall section.
	DefaultWallWidth = 0.8
)

// Options control how entities are lifted into solids.
type Options struct {
	Height    float64 `yaml:"height" json:"height"`         // extrusion depth
	WallWidth float64 `yaml:"wall_width" json:"wall_width"` // slab thickness for lines and open paths
	Segments  int     `yaml:"segments" json:"segments"`     // explicit circle tessellation, 0 = derive
	MeshSize  float64 `yaml:"mesh_size" json:"mesh_size"`   // target element size, drives derivation
	BaseZ     float64 `yaml:"base_z" json:"base_z"`         // z where the prism starts
}

// DefaultOptions returns options for a 10-unit-deep extrusion with the
// standard wall section.
func DefaultOptions() Options {
	return Options{Height: 10, WallWidth: DefaultWallWidth}
}

// SegmentsFor resolves the circle tessellation for the given radius.
// An explicit Segments wins; otherwise the count follows the mesh size so
// chord length tracks the target element size.
func (o Options) SegmentsFor(radius float64) int {
	if o.Segments > 0 {
		if o.Segments < 3 {
			return 3
		}
		return o.Segments
	}
	if o.MeshSize > 0 && radius > 0 {
		s := int(math.Round(2 * math.Pi * radius / o.MeshSize))
		if s < MinSegments {
			return MinSegments
		}
		if s > MaxSegments {
			return MaxSegments
		}
		return s
	}
	return DefaultSegments
}

func (o Options) wallWidth() float64 {
	if o.WallWidth > 0 {
		return o.WallWidth
	}
	return DefaultWallWidth
}

// Fragment is one extruded entity together with its provenance.
type Fragment struct {
	Mesh   mesh.Mesh
	Handle string // source entity
	Layer  string
}

// Extrude dispatches on the entity payload and produces its solid fragment.
// Entities that cannot be extruded yield a nil fragment and a warning, never
// an error; parsing normally filters degenerate geometry already.
func Extrude(e dwg.Entity, opts Options) (*Fragment, *dwg.Warning) {
	skip := func(code, format string, args ...any) (*Fragment, *dwg.Warning) {
		return nil, &dwg.Warning{Code: code, Record: -1, Message: fmt.Sprintf(format, args...)}
	}

	var m mesh.Mesh
	switch data := e.Data.(type) {
	case dwg.LineData:
		if data.Length() < 1e-9 {
			return skip(dwg.WarnDegenerateLine, "entity %s: zero-length line", e.Handle)
		}
		m = wallAlong([]dwg.Point{data.Start, data.End}, opts.wallWidth(), opts.BaseZ, opts.Height)

	case dwg.PolylineData:
		if data.Closed {
			prism, err := Prism(data.Points, opts.BaseZ, opts.Height)
			if err != nil {
				return skip(dwg.WarnFlatOutline, "entity %s: %v", e.Handle, err)
			}
			m = prism
		} else {
			if len(data.Points) < 2 {
				return skip(dwg.WarnShortPolyline, "entity %s: open polyline needs 2 points", e.Handle)
			}
			m = wallAlong(data.Points, opts.wallWidth(), opts.BaseZ, opts.Height)
		}

	case dwg.CircleData:
		if data.Radius <= 0 {
			return skip(dwg.WarnBadRadius, "entity %s: radius %g", e.Handle, data.Radius)
		}
		m = Cylinder(data.Center, data.Radius, opts.BaseZ, opts.Height, opts.SegmentsFor(data.Radius))

	case dwg.ArcData:
		if data.Radius <= 0 {
			return skip(dwg.WarnBadRadius, "entity %s: radius %g", e.Handle, data.Radius)
		}
		path := arcToPolyline(data, opts.SegmentsFor(data.Radius))
		m = wallAlong(path, opts.wallWidth(), opts.BaseZ, opts.Height)

	default:
		return skip(dwg.WarnUnknownKind, "entity %s: unsupported payload %T", e.Handle, e.Data)
	}

	if m.IsEmpty() {
		return skip(dwg.WarnDegenerateLine, "entity %s: produced no geometry", e.Handle)
	}
	return &Fragment{Mesh: m, Handle: e.Handle, Layer: e.Layer}, nil
}

// All extrudes every entity in order, collecting fragments and warnings.
func All(entities []dwg.Entity, opts Options) ([]Fragment, []dwg.Warning) {
	var frags []Fragment
	var warns []dwg.Warning
	for _, e := range entities {
		f, warn := Extrude(e, opts)
		if warn != nil {
			warns = append(warns, *warn)
			continue
		}
		frags = append(frags, *f)
	}
	return frags, warns
}

// Prism extrudes a closed outline into a vertical prism spanning
// [baseZ, baseZ+height]. The mesh has exactly 2N vertices: the bottom ring
// then the top ring, both in counter-clockwise plan order. Caps are fan
// triangulated from the first outline point, which assumes the outline is
// star-shaped seen from there; side walls are two triangles per edge.
func Prism(outline []dwg.Point, baseZ, height float64) (mesh.Mesh, error) {
	n := len(outline)
	if n < 3 {
		return mesh.Mesh{}, fmt.Errorf("outline has %d points, need 3", n)
	}
	if height <= 0 {
		return mesh.Mesh{}, fmt.Errorf("height %g is not positive", height)
	}

	pd := dwg.PolylineData{Points: outline, Closed: true}
	if pd.Area() < 1e-9 {
		return mesh.Mesh{}, fmt.Errorf("outline encloses no area")
	}
	// Normalize winding so side normals face outward.
	pts := outline
	if pd.SignedArea() < 0 {
		pts = make([]dwg.Point, n)
		for i, p := range outline {
			pts[n-1-i] = p
		}
	}

	top := baseZ + height
	m := mesh.Mesh{
		Vertices: make([]float32, 0, 2*n*3),
		Faces:    make([]uint32, 0, (4*n-4)*3),
	}
	for _, p := range pts {
		m.Vertices = append(m.Vertices, float32(p.X), float32(p.Y), float32(baseZ))
	}
	for _, p := range pts {
		m.Vertices = append(m.Vertices, float32(p.X), float32(p.Y), float32(top))
	}

	// Side walls.
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		bi, bj := uint32(i), uint32(j)
		ti, tj := uint32(n+i), uint32(n+j)
		m.Faces = append(m.Faces, bi, bj, ti)
		m.Faces = append(m.Faces, bj, tj, ti)
	}
	// Caps: bottom faces -Z, top faces +Z.
	for k := 1; k < n-1; k++ {
		m.Faces = append(m.Faces, 0, uint32(k+1), uint32(k))
	}
	for k := 1; k < n-1; k++ {
		m.Faces = append(m.Faces, uint32(n), uint32(n+k), uint32(n+k+1))
	}

	m.RecomputeNormals()
	return m, nil
}

// Cylinder builds a closed cylinder for a pile section: 2+2s vertices
// (bottom center, top center, bottom ring, top ring) and 4s triangles.
func Cylinder(center dwg.Point, radius, baseZ, height float64, segments int) mesh.Mesh {
	s := segments
	if s < 3 {
		s = 3
	}
	top := baseZ + height

	m := mesh.Mesh{
		Vertices: make([]float32, 0, (2+2*s)*3),
		Faces:    make([]uint32, 0, 4*s*3),
	}
	m.Vertices = append(m.Vertices, float32(center.X), float32(center.Y), float32(baseZ))
	m.Vertices = append(m.Vertices, float32(center.X), float32(center.Y), float32(top))
	for i := 0; i < s; i++ {
		a := 2 * math.Pi * float64(i) / float64(s)
		x := float32(center.X + radius*math.Cos(a))
		y := float32(center.Y + radius*math.Sin(a))
		m.Vertices = append(m.Vertices, x, y, float32(baseZ))
	}
	for i := 0; i < s; i++ {
		a := 2 * math.Pi * float64(i) / float64(s)
		x := float32(center.X + radius*math.Cos(a))
		y := float32(center.Y + radius*math.Sin(a))
		m.Vertices = append(m.Vertices, x, y, float32(top))
	}

	ringB := uint32(2)
	ringT := uint32(2 + s)
	for i := 0; i < s; i++ {
		j := (i + 1) % s
		bi, bj := ringB+uint32(i), ringB+uint32(j)
		ti, tj := ringT+uint32(i), ringT+uint32(j)
		// Side quad.
		m.Faces = append(m.Faces, bi, bj, ti)
		m.Faces = append(m.Faces, bj, tj, ti)
		// Caps: bottom faces -Z, top faces +Z.
		m.Faces = append(m.Faces, 0, bj, bi)
		m.Faces = append(m.Faces, 1, ti, tj)
	}

	m.RecomputeNormals()
	return m
}

// Footprints returns the closed plan outlines an entity occupies: the
// outline itself for a closed polyline, one wall rectangle per segment for
// lines, open paths and arcs, and nil for circles, which are round and get
// cylinder treatment instead.
func Footprints(e dwg.Entity, opts Options) [][]dwg.Point {
	switch data := e.Data.(type) {
	case dwg.LineData:
		return pathFootprints([]dwg.Point{data.Start, data.End}, opts.wallWidth())
	case dwg.PolylineData:
		if data.Closed {
			return [][]dwg.Point{data.Points}
		}
		return pathFootprints(data.Points, opts.wallWidth())
	case dwg.ArcData:
		if data.Radius <= 0 {
			return nil
		}
		return pathFootprints(arcToPolyline(data, opts.SegmentsFor(data.Radius)), opts.wallWidth())
	}
	return nil
}

// pathFootprints returns the wall rectangle around each non-degenerate
// segment of an open path.
func pathFootprints(points []dwg.Point, width float64) [][]dwg.Point {
	var rects [][]dwg.Point
	for i := 1; i < len(points); i++ {
		if r := rectAround(points[i-1], points[i], width); r != nil {
			rects = append(rects, r)
		}
	}
	return rects
}

// wallAlong extrudes a width-wide slab along each segment of an open path
// and merges the per-segment prisms. Segment joints are butted, not mitred.
func wallAlong(points []dwg.Point, width, baseZ, height float64) mesh.Mesh {
	asm := mesh.NewAssembler()
	for _, rect := range pathFootprints(points, width) {
		prism, err := Prism(rect, baseZ, height)
		if err != nil {
			continue
		}
		asm.Append(prism)
	}
	return asm.Mesh()
}

// rectAround returns the CCW corner outline of a width-wide rectangle
// centered on the segment a-b, or nil for a collapsed segment.
func rectAround(a, b dwg.Point, width float64) []dwg.Point {
	dx := b.X - a.X
	dy := b.Y - a.Y
	l := math.Hypot(dx, dy)
	if l < 1e-9 || width <= 0 {
		return nil
	}
	// Half-width offset perpendicular to the segment.
	px := -dy / l * width / 2
	py := dx / l * width / 2
	return []dwg.Point{
		{X: a.X - px, Y: a.Y - py},
		{X: b.X - px, Y: b.Y - py},
		{X: b.X + px, Y: b.Y + py},
		{X: a.X + px, Y: a.Y + py},
	}
}

// arcToPolyline samples an arc into an open polyline. The chord count scales
// with the sweep so a quarter arc gets a quarter of the full-circle segments.
func arcToPolyline(a dwg.ArcData, segments int) []dwg.Point {
	sweep := a.Sweep()
	n := int(math.Ceil(sweep / 360 * float64(segments)))
	if n < 2 {
		n = 2
	}
	pts := make([]dwg.Point, 0, n+1)
	for i := 0; i <= n; i++ {
		deg := a.StartAngle + sweep*float64(i)/float64(n)
		rad := deg * math.Pi / 180
		pts = append(pts, dwg.Point{
			X: a.Center.X + a.Radius*math.Cos(rad),
			Y: a.Center.Y + a.Radius*math.Sin(rad),
		})
	}
	return pts
}
