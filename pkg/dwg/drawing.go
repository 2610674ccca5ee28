package dwg

import (
	"math"
	"sort"
)

// Drawing is the parsed form of a 2D CAD plan: the entity list plus layer
// summaries and any warnings recorded during parsing. It is not mutated
// after parsing; each parse produces a new Drawing.
type Drawing struct {
	Entities []Entity          `json:"entities"`
	Layers   map[string]*Layer `json:"layers"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

// New creates an empty Drawing.
func New() *Drawing {
	return &Drawing{
		Layers: make(map[string]*Layer),
	}
}

// Add appends an entity and updates the layer index. It does not validate;
// use FromEntities or Decode for validated construction.
func (d *Drawing) Add(e Entity) {
	d.Entities = append(d.Entities, e)
	l, ok := d.Layers[e.Layer]
	if !ok {
		l = &Layer{Name: e.Layer, Kind: ClassifyLayer(e.Layer)}
		d.Layers[e.Layer] = l
	}
	l.EntityCount++
}

// Warn records a parse warning.
func (d *Drawing) Warn(code string, record int, message string) {
	d.Warnings = append(d.Warnings, Warning{Code: code, Record: record, Message: message})
}

// EntityCount returns the number of entities.
func (d *Drawing) EntityCount() int {
	return len(d.Entities)
}

// OnLayer returns the entities on the named layer, in drawing order.
func (d *Drawing) OnLayer(name string) []Entity {
	var out []Entity
	for _, e := range d.Entities {
		if e.Layer == name {
			out = append(out, e)
		}
	}
	return out
}

// ByKind returns the entities of the given kind, in drawing order.
func (d *Drawing) ByKind(k EntityKind) []Entity {
	var out []Entity
	for _, e := range d.Entities {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// LayersOfKind returns the layers classified as the given kind, sorted by name.
func (d *Drawing) LayersOfKind(k LayerKind) []*Layer {
	var out []*Layer
	for _, l := range d.Layers {
		if l.Kind == k {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MainOutline returns the closed polyline with the largest enclosed area,
// preferring excavation layers when any exist. Returns false when the
// drawing has no closed outline.
func (d *Drawing) MainOutline() (Entity, bool) {
	pick := func(wantExcavation bool) (Entity, bool) {
		var best Entity
		bestArea := 0.0
		found := false
		for _, e := range d.Entities {
			pd, ok := e.Data.(PolylineData)
			if !ok || !pd.Closed {
				continue
			}
			if wantExcavation && ClassifyLayer(e.Layer) != LayerExcavation {
				continue
			}
			if a := pd.Area(); !found || a > bestArea {
				best, bestArea, found = e, a, true
			}
		}
		return best, found
	}
	if e, ok := pick(true); ok {
		return e, true
	}
	return pick(false)
}

// Rect is a 2D axis-aligned extent.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func emptyRect() Rect {
	inf := math.Inf(1)
	return Rect{MinX: inf, MinY: inf, MaxX: -inf, MaxY: -inf}
}

// IsEmpty reports whether the extent contains no points.
func (r Rect) IsEmpty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

func (r Rect) extend(p Point) Rect {
	return Rect{
		MinX: math.Min(r.MinX, p.X),
		MinY: math.Min(r.MinY, p.Y),
		MaxX: math.Max(r.MaxX, p.X),
		MaxY: math.Max(r.MaxY, p.Y),
	}
}

// Stats summarizes a drawing's geometric content.
type Stats struct {
	EntityCount int            `json:"entity_count"`
	ByKind      map[string]int `json:"by_kind"`
	TotalLength float64        `json:"total_length"` // lines, polylines, arcs
	ClosedArea  float64        `json:"closed_area"`  // sum of closed outline areas
	Extents     Rect           `json:"extents"`
}

// Stats computes summary statistics over all entities.
func (d *Drawing) Stats() Stats {
	s := Stats{
		EntityCount: len(d.Entities),
		ByKind:      make(map[string]int),
		Extents:     emptyRect(),
	}
	for _, e := range d.Entities {
		s.ByKind[e.Kind.String()]++
		switch data := e.Data.(type) {
		case LineData:
			s.TotalLength += data.Length()
			s.Extents = s.Extents.extend(data.Start).extend(data.End)
		case PolylineData:
			s.TotalLength += data.Length()
			s.ClosedArea += data.Area()
			for _, p := range data.Points {
				s.Extents = s.Extents.extend(p)
			}
		case CircleData:
			s.TotalLength += data.Circumference()
			s.ClosedArea += data.Area()
			s.Extents = s.Extents.extend(Point{X: data.Center.X - data.Radius, Y: data.Center.Y - data.Radius})
			s.Extents = s.Extents.extend(Point{X: data.Center.X + data.Radius, Y: data.Center.Y + data.Radius})
		case ArcData:
			s.TotalLength += data.Length()
			// Conservative: use the full circle's extent rather than
			// solving for the swept quadrants.
			s.Extents = s.Extents.extend(Point{X: data.Center.X - data.Radius, Y: data.Center.Y - data.Radius})
			s.Extents = s.Extents.extend(Point{X: data.Center.X + data.Radius, Y: data.Center.Y + data.Radius})
		}
	}
	return s
}
